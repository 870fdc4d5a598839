package vmap

import "testing"

func TestIDStringContinentVsInstance(t *testing.T) {
	continent := ID{MapID: 0}
	if got, want := continent.String(), "0"; got != want {
		t.Fatalf("continent String() = %q, want %q", got, want)
	}

	instance := ID{MapID: 533, InstanceID: 42}
	if got, want := instance.String(), "533/42"; got != want {
		t.Fatalf("instance String() = %q, want %q", got, want)
	}
}

func TestIDHashStable(t *testing.T) {
	a := ID{MapID: 1, InstanceID: 2}
	b := ID{MapID: 1, InstanceID: 2}
	if a.hash() != b.hash() {
		t.Fatalf("equal ids produced different hashes")
	}

	c := ID{MapID: 1, InstanceID: 3}
	if a.hash() == c.hash() {
		t.Fatalf("distinct ids produced the same hash")
	}
}

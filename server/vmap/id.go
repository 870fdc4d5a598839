package vmap

import "github.com/segmentio/fasthash/fnv1a"

// ID is the composite key identifying a single live Map. InstanceID is 0 for
// maps that are not instanceable (continents and other shared world maps).
type ID struct {
	MapID      uint32
	InstanceID uint32
}

// String returns a human-readable representation of the ID, used in log
// fields and admin console output.
func (id ID) String() string {
	if id.InstanceID == 0 {
		return itoa(id.MapID)
	}
	return itoa(id.MapID) + "/" + itoa(id.InstanceID)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// hash combines MapID and InstanceID into a single 64-bit key suitable for
// the fast integer-keyed statistic registry (see statistic.go). It is not
// used for correctness, only to avoid pointer/struct-keyed maps on a hot
// read path shared by the freeze detector and the admin console.
func (id ID) hash() int64 {
	h := fnv1a.HashUint32(id.MapID)
	h = fnv1a.AddUint32(h, id.InstanceID)
	return int64(h)
}

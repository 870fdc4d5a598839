package vmap

import "testing"

func TestStatisticsBeginEndTracksAverage(t *testing.T) {
	s := newStatistics()
	id := ID{MapID: 1}

	s.begin(id)
	s.end(id, 100, 40)
	if got := s.get(id).AvgDurationMS; got != 40 {
		t.Fatalf("avg duration after first sample = %d, want 40", got)
	}

	s.begin(id)
	s.end(id, 200, 80)
	stat := s.get(id)
	if stat.LastUpdateMS != 200 {
		t.Fatalf("last update = %d, want 200", stat.LastUpdateMS)
	}
	// EMA: 40 - 40/4 + 80/4 = 30 + 20 = 50
	if stat.AvgDurationMS != 50 {
		t.Fatalf("avg duration after second sample = %d, want 50", stat.AvgDurationMS)
	}
}

func TestStatisticsIncrementBreak(t *testing.T) {
	s := newStatistics()
	id := ID{MapID: 7}

	if got := s.incrementBreak(id); got != 1 {
		t.Fatalf("first incrementBreak = %d, want 1", got)
	}
	if got := s.incrementBreak(id); got != 2 {
		t.Fatalf("second incrementBreak = %d, want 2", got)
	}
	if got := s.get(id).BreakCount; got != 2 {
		t.Fatalf("BreakCount = %d, want 2", got)
	}
}

func TestStatisticsForget(t *testing.T) {
	s := newStatistics()
	id := ID{MapID: 9}
	s.begin(id)
	s.end(id, 1, 1)
	s.forget(id)
	if got := s.get(id); got != (Statistic{}) {
		t.Fatalf("expected zero value after forget, got %+v", got)
	}
}

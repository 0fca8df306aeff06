package scheduler

import "testing"

func TestAdvanceFiresDueEventsInOrder(t *testing.T) {
	var fired []Kind
	s := New(func(s *Scheduler, kind Kind, args Args) {
		fired = append(fired, kind)
	})
	s.Schedule(2, 10, nil, false, 0)
	s.Schedule(1, 5, nil, false, 0)
	s.Schedule(3, 5, nil, false, 0) // ties with kind 1, scheduled after -> fires after

	s.Advance(4)
	if len(fired) != 0 {
		t.Fatalf("nothing should fire before cycle 5, got %v", fired)
	}
	s.Advance(10) // now = 14
	if got := fired; len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 2 {
		t.Fatalf("fired order = %v, want [1 3 2]", got)
	}
}

func TestNowNeverDecreases(t *testing.T) {
	s := New(nil)
	s.Advance(5)
	if s.Now() != 5 {
		t.Fatalf("now = %d want 5", s.Now())
	}
	s.Advance(0)
	if s.Now() != 5 {
		t.Fatalf("now decreased: %d", s.Now())
	}
}

func TestCancelIsNoOpAfterFire(t *testing.T) {
	s := New(func(s *Scheduler, kind Kind, args Args) {})
	h := s.Schedule(1, 1, nil, false, 0)
	s.Advance(1)
	s.Cancel(h) // should not panic
}

func TestRepeatReschedulesAtPlusPeriod(t *testing.T) {
	var times []Cycles
	s := New(func(s *Scheduler, kind Kind, args Args) {
		times = append(times, s.Now())
	})
	s.Schedule(1, 3, nil, true, 3)
	s.Advance(10) // fires at 3, 6, 9
	if len(times) != 3 {
		t.Fatalf("expected 3 fires, got %d: %v", len(times), times)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	fired := false
	s := New(func(s *Scheduler, kind Kind, args Args) { fired = true })
	h := s.Schedule(1, 5, nil, false, 0)
	s.Cancel(h)
	s.Advance(10)
	if fired {
		t.Fatalf("cancelled event fired")
	}
}

func TestNegativeDelayFiresOnNextAdvance(t *testing.T) {
	fired := false
	s := New(func(s *Scheduler, kind Kind, args Args) { fired = true })
	s.Schedule(1, -5, nil, false, 0)
	s.Advance(0)
	if !fired {
		t.Fatalf("event with negative delay did not fire on Advance")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New(func(s *Scheduler, kind Kind, args Args) {})
	s.Schedule(1, 10, "a", true, 4)
	s.Schedule(2, 20, "b", false, 0)
	s.Advance(1)

	snaps := s.Snapshot()
	now := s.Now()

	s2 := New(func(s *Scheduler, kind Kind, args Args) {})
	s2.Restore(now, snaps)

	if s2.Now() != now {
		t.Fatalf("restored now = %d want %d", s2.Now(), now)
	}
	if s2.Pending() != len(snaps) {
		t.Fatalf("restored pending = %d want %d", s2.Pending(), len(snaps))
	}
	at, ok := s2.NextEventAt()
	if !ok || at != snaps[0].At {
		t.Fatalf("restored next event at = %d,%v want %d", at, ok, snaps[0].At)
	}
}

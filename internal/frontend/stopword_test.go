package frontend

import "testing"

func TestStopDebounce_FalseTrigger(t *testing.T) {
	d := NewStopDebounce(DefaultConfig())
	if got := d.Step(true, true); got != OutcomeArmed {
		t.Fatalf("keyword: got %s, want armed", got)
	}
	for i := range 9 {
		if got := d.Step(false, true); got != OutcomeNone {
			t.Fatalf("speaking frame %d: got %s, want none", i+1, got)
		}
	}
	if got := d.Step(false, true); got != OutcomeAborted {
		t.Errorf("speaking frame 10: got %s, want aborted", got)
	}
	if d.Pending() {
		t.Error("still pending after abort")
	}
}

func TestStopDebounce_Confirm(t *testing.T) {
	d := NewStopDebounce(DefaultConfig())
	d.Step(true, false)
	for i := range 9 {
		if got := d.Step(false, false); got != OutcomeNone {
			t.Fatalf("silent frame %d: got %s, want none", i+1, got)
		}
	}
	if got := d.Step(false, false); got != OutcomeConfirmed {
		t.Errorf("silent frame 10: got %s, want confirmed", got)
	}
	if got := d.Step(false, false); got != OutcomeNone {
		t.Errorf("after confirm: got %s, want none", got)
	}
}

func TestStopDebounce_CountersAreCumulative(t *testing.T) {
	d := NewStopDebounce(DefaultConfig())
	d.Step(true, false)
	// Nine speaking and nine silent frames interleaved: no verdict yet.
	for i := range 18 {
		if got := d.Step(false, i%2 == 0); got != OutcomeNone {
			t.Fatalf("frame %d: got %s, want none", i+1, got)
		}
	}
	if got := d.Step(false, false); got != OutcomeConfirmed {
		t.Errorf("tenth silent frame: got %s, want confirmed", got)
	}
}

func TestStopDebounce_RearmResetsCounters(t *testing.T) {
	d := NewStopDebounce(DefaultConfig())
	d.Step(true, false)
	for range 9 {
		d.Step(false, false)
	}
	if got := d.Step(true, false); got != OutcomeArmed {
		t.Fatalf("re-arm: got %s, want armed", got)
	}
	for i := range 9 {
		if got := d.Step(false, false); got != OutcomeNone {
			t.Fatalf("silent frame %d after re-arm: got %s, want none", i+1, got)
		}
	}
	if got := d.Step(false, false); got != OutcomeConfirmed {
		t.Errorf("got %s, want confirmed", got)
	}
}

func TestStopDebounce_IdleIgnoresFrames(t *testing.T) {
	d := NewStopDebounce(DefaultConfig())
	for range 30 {
		if got := d.Step(false, false); got != OutcomeNone {
			t.Fatalf("idle: got %s, want none", got)
		}
	}
}

func TestStopDebounce_PendingExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPendingFrames = 20
	d := NewStopDebounce(cfg)

	// A keyword hit on every frame keeps re-arming.
	for i := range 19 {
		if got := d.Step(true, true); got != OutcomeArmed {
			t.Fatalf("frame %d: got %s, want armed", i+1, got)
		}
	}
	if got := d.Step(true, true); got != OutcomeExpired {
		t.Errorf("frame 20: got %s, want expired", got)
	}
	if d.Pending() {
		t.Error("still pending after expiry")
	}
}

func TestStopDebounce_NoExpiryWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPendingFrames = 0
	d := NewStopDebounce(cfg)
	for i := range 500 {
		if got := d.Step(true, true); got != OutcomeArmed {
			t.Fatalf("frame %d: got %s, want armed", i+1, got)
		}
	}
}

package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(timeout time.Duration) *CircuitBreaker {
	return New(Config{
		Name:             "store",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          timeout,
	})
}

func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	boom := errors.New("connection refused")
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Call %d = %v, want %v", i, err, boom)
		}
	}
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after trip = %v, want %v", got, StateOpen)
	}
}

func TestClosedPassesCallsThrough(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	calls := 0
	for i := 0; i < 5; i++ {
		if err := cb.Call(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Call = %v, want nil", err)
		}
	}
	if calls != 5 {
		t.Errorf("fn ran %d times, want 5", calls)
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := newTestBreaker(time.Minute)
	boom := errors.New("timeout")

	// Two failures, a success, two more failures: never three in a row.
	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })

	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}
}

func TestOpenFailsFast(t *testing.T) {
	cb := newTestBreaker(time.Minute)
	tripBreaker(t, cb)

	ran := false
	err := cb.Call(func() error { ran = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Call while open = %v, want ErrCircuitOpen", err)
	}
	if ran {
		t.Error("fn ran while the breaker was open")
	}
}

func TestProbesAfterCoolOff(t *testing.T) {
	cb := newTestBreaker(20 * time.Millisecond)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("probe after cool-off = %v, want nil", err)
	}
	if got := cb.GetState(); got != StateHalfOpen {
		t.Errorf("state after one probe = %v, want %v", got, StateHalfOpen)
	}
}

func TestClosesAfterEnoughProbes(t *testing.T) {
	cb := newTestBreaker(20 * time.Millisecond)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	cb.Call(func() error { return nil })
	cb.Call(func() error { return nil })

	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state after probes = %v, want %v", got, StateClosed)
	}
}

func TestFailedProbeReopens(t *testing.T) {
	cb := newTestBreaker(20 * time.Millisecond)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	boom := errors.New("still down")
	cb.Call(func() error { return boom })

	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want %v", got, StateOpen)
	}
	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Call after reopen = %v, want ErrCircuitOpen", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	cb := New(Config{Name: "defaults"})
	if cb.failureThreshold != 5 || cb.successThreshold != 2 || cb.timeout != 60*time.Second {
		t.Errorf("defaults = (%d, %d, %v), want (5, 2, 1m0s)",
			cb.failureThreshold, cb.successThreshold, cb.timeout)
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	} {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}

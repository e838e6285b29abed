package reliability

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, CoolDown: time.Minute})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Execute() error = %v, want boom", err)
		}
	}

	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	// While open the function must not run
	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	if ran {
		t.Error("function ran while breaker open")
	}
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Execute() error = %v, want ErrBreakerOpen", err)
	}

	var openErr *BreakerOpenError
	if !errors.As(err, &openErr) {
		t.Fatal("error should be a *BreakerOpenError")
	}
	if openErr.Failures != 3 {
		t.Errorf("Failures = %d, want 3", openErr.Failures)
	}
	if !errors.Is(openErr.LastError, boom) {
		t.Errorf("LastError = %v, want boom", openErr.LastError)
	}
	if openErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", openErr.RetryAfter)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, CoolDown: time.Minute})

	boom := errors.New("boom")
	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })

	if b.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed (success should reset the count)", b.State())
	}
}

func TestBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		MaxFailures:      2,
		CoolDown:         20 * time.Millisecond,
		SuccessThreshold: 2,
	})

	boom := errors.New("boom")
	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	// First probe succeeds, breaker stays half-open
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute() error = %v, want nil", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State() = %v, want half-open", b.State())
	}

	// Second success closes it
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		MaxFailures:      2,
		CoolDown:         20 * time.Millisecond,
		SuccessThreshold: 2,
	})

	boom := errors.New("boom")
	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })

	time.Sleep(30 * time.Millisecond)

	b.Execute(func() error { return boom })
	if b.State() != BreakerOpen {
		t.Errorf("State() = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	type change struct{ from, to BreakerState }
	var changes []change

	b := NewBreaker(BreakerConfig{
		MaxFailures:      1,
		CoolDown:         10 * time.Millisecond,
		SuccessThreshold: 1,
		OnStateChange: func(from, to BreakerState) {
			changes = append(changes, change{from, to})
		},
	})

	b.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	b.Execute(func() error { return nil })

	want := []change{
		{BreakerClosed, BreakerOpen},
		{BreakerOpen, BreakerHalfOpen},
		{BreakerHalfOpen, BreakerClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d state changes, want %d: %v", len(changes), len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, CoolDown: time.Minute})

	b.Execute(func() error { return errors.New("boom") })
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed after reset", b.State())
	}

	ran := false
	if err := b.Execute(func() error { ran = true; return nil }); err != nil {
		t.Errorf("Execute() after reset error = %v, want nil", err)
	}
	if !ran {
		t.Error("function should run after reset")
	}
}

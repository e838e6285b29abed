package reliability

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is rejecting calls.
var ErrBreakerOpen = errors.New("breaker is open")

// BreakerOpenError carries the rejection details. It unwraps to
// ErrBreakerOpen.
type BreakerOpenError struct {
	Failures   int
	LastError  error
	RetryAfter time.Duration
}

func (e *BreakerOpenError) Error() string {
	msg := fmt.Sprintf("breaker is open after %d consecutive failures", e.Failures)
	if e.LastError != nil {
		msg += fmt.Sprintf(", last error: %v", e.LastError)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %v", e.RetryAfter.Round(time.Second))
	}
	return msg
}

func (e *BreakerOpenError) Unwrap() error {
	return ErrBreakerOpen
}

// BreakerState is the breaker's position in the closed/open/half-open
// cycle.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the
	// breaker.
	MaxFailures int
	// CoolDown is how long the breaker stays open before probing with a
	// half-open call.
	CoolDown time.Duration
	// SuccessThreshold is the consecutive success count that closes the
	// breaker from half-open.
	SuccessThreshold int
	// OnStateChange, when set, observes every transition.
	OnStateChange func(from, to BreakerState)
}

// Breaker rejects calls fast once the protected operation keeps
// failing, then probes for recovery after a cool-down.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewBreaker builds a closed breaker, applying defaults for unset
// config fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &Breaker{cfg: cfg, state: BreakerClosed}
}

// Execute runs fn through the breaker. While open it returns a
// *BreakerOpenError without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) > b.cfg.CoolDown {
			b.transition(BreakerHalfOpen)
			b.successes = 0
			b.mu.Unlock()
			return nil
		}
		retryAfter := b.cfg.CoolDown - time.Since(b.openedAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		err := &BreakerOpenError{
			Failures:   b.failures,
			LastError:  b.lastError,
			RetryAfter: retryAfter,
		}
		b.mu.Unlock()
		return err
	}

	b.mu.Unlock()
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		b.lastError = err
		if b.failures >= b.cfg.MaxFailures && b.state != BreakerOpen {
			b.transition(BreakerOpen)
			b.openedAt = time.Now()
		}
		return
	}

	b.successes++
	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(BreakerClosed)
			b.failures = 0
			b.successes = 0
		}
	case BreakerOpen:
		// A success can slip in if the call started before the breaker
		// opened. Treat it as a probe.
		b.transition(BreakerHalfOpen)
		b.successes = 1
	}
}

// transition must be called with mu held. The callback runs outside the
// lock.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange == nil || from == to {
		return
	}
	b.mu.Unlock()
	b.cfg.OnStateChange(from, to)
	b.mu.Lock()
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
	b.lastError = nil
	b.openedAt = time.Time{}
}

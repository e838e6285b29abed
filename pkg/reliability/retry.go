package reliability

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// jitterFactor returns a multiplier in [0.75, 1.25) so concurrent
// retry loops spread out instead of waking together.
func jitterFactor() float64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 1.0
	}
	n := binary.BigEndian.Uint64(b[:]) >> 11 // 53 bits
	return 0.75 + float64(n)/float64(uint64(1)<<53)*0.5
}

// Policy drives exponential backoff with jitter around a fallible
// operation. Which errors are worth another attempt is the caller's
// decision, supplied through Retryable.
type Policy struct {
	// MaxRetries bounds re-invocations after the initial attempt.
	// MaxRetries=3 means up to 4 invocations total.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Each later wait is
	// the previous one times Multiplier, capped at MaxDelay, with a
	// ±25% jitter applied.
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Retryable classifies errors. A nil predicate retries nothing, so
	// every error is terminal.
	Retryable func(error) bool
}

// Execute invokes fn until it succeeds, returns a non-retryable error,
// the retry budget runs out, or ctx is done. The exhaustion error wraps
// the last attempt's error.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := p.BaseDelay

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(delay) * jitterFactor())

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay = time.Duration(float64(delay) * p.Multiplier)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", p.MaxRetries, lastErr)
}

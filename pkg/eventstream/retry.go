package eventstream

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// RetryPolicy bounds redelivery of a failing event before it is moved to its
// dead-letter topic.
type RetryPolicy struct {
	// MaxAttempts is the number of handler calls per event (defaults to 5).
	MaxAttempts int

	// Backoff is the wait before the second attempt; it doubles after each
	// further failure (defaults to 200ms).
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts (defaults to 10s).
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// Deliver calls handler until it succeeds, the attempts run out or ctx is
// done. It returns the number of attempts made and the last handler error.
func (p RetryPolicy) Deliver(ctx context.Context, handler Handler, event *Event) (int, error) {
	p = p.withDefaults()
	wait := p.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = handler(ctx, event); err == nil {
			return attempt, nil
		}
		if attempt >= p.MaxAttempts {
			return attempt, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, p.MaxBackoff)
	}
}

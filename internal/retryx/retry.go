// Package retryx runs an operation a bounded number of times with
// exponential backoff between attempts.
package retryx

import (
	"context"
	"time"
)

const (
	// DefaultAttempts is the per-part attempt budget of the client uploader.
	DefaultAttempts = 3
	// DefaultBaseDelay doubles after every failed attempt.
	DefaultBaseDelay = time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy configures Do.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	// Retriable decides whether an error deserves another attempt.
	// Nil retries everything.
	Retriable func(error) bool
	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	Sleep   Sleeper
}

// Backoff returns base * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// Do calls fn until it succeeds, the attempts are exhausted or the error is
// not retriable. The last error is returned. Attempt numbering starts at 1 so
// the first sleep is BaseDelay*2.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retriable != nil && !p.Retriable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := Backoff(p.BaseDelay, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

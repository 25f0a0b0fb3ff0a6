package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how long to wait between attempts.
//
// The first wait is Interval; every following wait grows by Step, so a zero
// Step gives a fixed interval and a positive Step a linear one. MaxWait caps
// the accumulated time spent sleeping; zero means wait forever.
type Policy struct {
	Interval time.Duration
	Step     time.Duration
	MaxWait  time.Duration
}

// Fixed returns an unbounded policy that always waits interval.
func Fixed(interval time.Duration) Policy {
	return Policy{Interval: interval}
}

// Linear returns a policy waiting interval, 2*interval, 3*interval, ...
// until maxWait has been spent.
func Linear(interval, maxWait time.Duration) Policy {
	return Policy{Interval: interval, Step: interval, MaxWait: maxWait}
}

// WithMaxWait returns a copy of p with the accumulated-wait ceiling set.
func (p Policy) WithMaxWait(d time.Duration) Policy {
	p.MaxWait = d
	return p
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config holds per-call retry settings.
type Config struct {
	Sleep  Sleeper
	Notify func(attempt int, wait time.Duration, err error)
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// WithSleeper replaces the timer-based sleep, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Config) {
		if s != nil {
			c.Sleep = s
		}
	}
}

// WithNotify registers a callback invoked before every wait.
func WithNotify(fn func(attempt int, wait time.Duration, err error)) Option {
	return func(c *Config) {
		c.Notify = fn
	}
}

// TimeoutError is returned once the accumulated wait reaches the policy's
// MaxWait. It is not retried by callers.
type TimeoutError struct {
	Waited   time.Duration
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("timed out after waiting %s (%d attempts)", e.Waited, e.Attempts)
	}
	return fmt.Sprintf("timed out after waiting %s (%d attempts): %v", e.Waited, e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// IsTimeout reports whether err carries a TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// Do runs operation until it returns nil.
//
// A non-nil error schedules another attempt after the policy's next wait.
// Errors wrapped with Fatal stop immediately. After each wait the waited
// total is compared with MaxWait and, once reached, Do returns a
// TimeoutError without making another attempt.
func Do(ctx context.Context, p Policy, operation func(context.Context) error, opts ...Option) error {
	cfg := &Config{Sleep: Sleep}
	for _, opt := range opts {
		opt(cfg)
	}

	wait := p.Interval
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			return err
		}

		if cfg.Notify != nil {
			cfg.Notify(attempt, wait, err)
		}
		if err := cfg.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, err)
		}
		waited += wait
		wait += p.Step

		if p.MaxWait > 0 && waited >= p.MaxWait {
			return &TimeoutError{Waited: waited, Attempts: attempt, Last: err}
		}
	}
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable).
// Operations that encounter fatal errors will not be retried.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}

package openstack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/wangkuntian/pipeman/internal/util/retry"
)

// ShowFunc fetches a resource and reports its current status.
type ShowFunc[T any] func(ctx context.Context, id string) (T, string, error)

// statusMismatch is the retryable outcome of one poll.
type statusMismatch struct {
	id       string
	status   string
	expected string
}

func (e *statusMismatch) Error() string {
	return fmt.Sprintf("%s is %q, waiting for %q", e.id, e.status, e.expected)
}

// PollUntil calls show until the reported status equals expected, sleeping
// per policy between attempts. A failing show stops polling immediately.
// Bounded policies end with a *retry.TimeoutError.
func PollUntil[T any](ctx context.Context, id string, show ShowFunc[T], expected string, policy retry.Policy, opts ...retry.Option) (T, error) {
	var last T
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		res, status, err := show(ctx, id)
		if err != nil {
			return retry.Fatal(err)
		}
		last = res
		if status != expected {
			return &statusMismatch{id: id, status: status, expected: expected}
		}
		return nil
	}, opts...)

	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return last, fatal.Err
	}
	return last, err
}

// wait polls one resource kind, logging each wait and counting attempts.
func wait[T any](ctx context.Context, c *Client, kind, id, expected string, policy retry.Policy, show ShowFunc[T]) (T, error) {
	log := c.log.WithValues(kind, id)
	log.Info("wait for status", "status", expected)

	counted := func(ctx context.Context, id string) (T, string, error) {
		c.metrics.RecordPollAttempt(kind)
		return show(ctx, id)
	}
	res, err := PollUntil(ctx, id, counted, expected, policy,
		retry.WithSleeper(c.sleep),
		retry.WithNotify(waitLogger(log)),
	)
	if err != nil {
		return res, fmt.Errorf("wait %s %s become %s: %w", kind, id, expected, err)
	}
	log.Info("status reached", "status", expected)
	return res, nil
}

func waitLogger(log logr.Logger) func(int, time.Duration, error) {
	return func(attempt int, d time.Duration, err error) {
		log.Info("waiting", "attempt", attempt, "wait", d, "reason", err.Error())
	}
}

func (c *Client) resourcePolicy() retry.Policy {
	return retry.Fixed(c.timeouts.ResourcePoll)
}

func (c *Client) serverPolicy() retry.Policy {
	return retry.Linear(c.timeouts.ServerPoll, c.timeouts.ServerPollMaxWait)
}

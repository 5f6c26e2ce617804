// Package retry runs remote operations with bounded attempts and exponential
// backoff. Only transport-level failures are retried; application errors and
// context cancellation surface immediately.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"time"
)

// Policy controls attempt count and spacing. The zero value normalizes to
// 3 attempts, a 1s initial delay and a 2.0 backoff factor.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = time.Second
	}
	if p.Backoff <= 0 {
		p.Backoff = 2.0
	}
	return p
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so the executor treats it as retryable even when
// its type alone would not qualify.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err looks like a transport failure worth
// another attempt. Cancelled contexts never qualify; deadline errors do,
// because per-request client timeouts surface that way (the executor stops
// anyway once the caller's context is done).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Do runs op up to MaxAttempts times, sleeping between attempts with the
// delay multiplied by Backoff after each failure. The final attempt's error
// is returned unchanged. The sleep is interrupted when ctx ends.
func Do[T any](ctx context.Context, logger *slog.Logger, p Policy, label string, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()
	var zero T
	delay := p.Delay
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "op", label, "attempt", attempt)
			}
			return res, nil
		}
		// A dead caller context means the failure is the cancellation
		// itself; retrying cannot help.
		if ctx.Err() != nil {
			return zero, err
		}
		if attempt >= p.MaxAttempts || !IsTransient(err) {
			return zero, err
		}
		logger.Warn("operation failed, retrying",
			"op", label,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * p.Backoff)
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, logger *slog.Logger, p Policy, label string, op func(context.Context) error) error {
	_, err := Do(ctx, logger, p, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), testLogger(), Policy{}, "op", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Delay: 5 * time.Millisecond, Backoff: 2.0}
	calls := 0
	start := time.Now()
	got, err := Do(context.Background(), testLogger(), policy, "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", MarkTransient(errors.New("connection reset"))
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	// Two waits: 5ms then 10ms.
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDoExhaustionReturnsOriginalError(t *testing.T) {
	boom := errors.New("boom")
	marked := MarkTransient(boom)
	calls := 0
	_, err := Do(context.Background(), testLogger(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, "op", func(context.Context) (int, error) {
		calls++
		return 0, marked
	})
	assert.Equal(t, 3, calls)
	// The final failure comes back unchanged, not wrapped.
	assert.Same(t, marked, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, "boom", err.Error())
}

func TestDoDoesNotRetryApplicationErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("item not found")
	_, err := Do(context.Background(), testLogger(), Policy{MaxAttempts: 5, Delay: time.Millisecond}, "op", func(context.Context) (int, error) {
		calls++
		return 0, wantErr
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, wantErr, err)
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, Delay: time.Minute}
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, testLogger(), policy, "op", func(context.Context) (int, error) {
			calls++
			return 0, MarkTransient(errors.New("flaky"))
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}
}

func TestDoReturnsCancellationErrorUnchanged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, testLogger(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("request aborted: %w", ctx.Err())
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun(t *testing.T) {
	calls := 0
	err := Run(context.Background(), testLogger(), Policy{MaxAttempts: 2, Delay: time.Millisecond}, "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return MarkTransient(errors.New("try again"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("bad input"), false},
		{"marked transient", MarkTransient(errors.New("x")), true},
		{"wrapped marked transient", fmt.Errorf("call failed: %w", MarkTransient(errors.New("x"))), true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"eof", io.EOF, true},
		{"context canceled", context.Canceled, false},
		{"url error wrapping cancellation", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}, false},
		{"deadline exceeded counts as timeout", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
	assert.Equal(t, 2.0, p.Backoff)

	custom := Policy{MaxAttempts: 5, Delay: 250 * time.Millisecond, Backoff: 1.5}.normalized()
	assert.Equal(t, custom, Policy{MaxAttempts: 5, Delay: 250 * time.Millisecond, Backoff: 1.5})
}

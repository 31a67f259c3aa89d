package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(60))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	var retried []int

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
		}
		return nil
	}, IsTransient, func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	permanent := errors.New("invalid recipient")
	calls := 0

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return permanent
	}, IsTransient, nil)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	transient := errors.New("i/o timeout")
	calls := 0

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return transient
	}, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}

	err := Do(ctx, p, func(context.Context) error {
		return errors.New("unavailable")
	}, nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ReportsGrowingDelays(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}
	var delays []time.Duration

	err := Do(context.Background(), p, func(context.Context) error {
		return errors.New("busy")
	}, nil, func(_ int, _ error, next time.Duration) {
		delays = append(delays, next)
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, delays)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"grpc unavailable", status.Error(codes.Unavailable, "broker down"), true},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad job key"), false},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"connection reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), true},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), true},
		{"aws throttling", &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded"}, true},
		{"aws rejected", &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified"}, false},
		{"plain error", errors.New("template missing"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

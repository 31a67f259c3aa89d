// internal/common/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy defines exponential backoff behavior for transient failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy mirrors the client defaults used across workers.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Backoff returns the delay before the given retry (1-based), doubling from
// BaseDelay and capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i <= attempt; i++ {
		delay = p.capped(jujuretry.DoubleDelay(delay, i))
		if delay == p.MaxDelay {
			break
		}
	}
	return delay
}

func (p Policy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// OnRetry is called before sleeping between attempts.
type OnRetry func(attempt int, err error, next time.Duration)

// Clock drives the sleeps between attempts.
var Clock clock.Clock = clock.WallClock

// Do runs fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. A nil isRetryable retries every error.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, isRetryable func(error) bool, onRetry OnRetry) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Nanosecond
	}

	var lastErr, fatal error
	lastAttempt := 0
	err := jujuretry.Call(jujuretry.CallArgs{
		Func: func() error {
			return fn(ctx)
		},
		IsFatalError: func(err error) bool {
			if isRetryable != nil && !isRetryable(err) {
				fatal = err
				return true
			}
			return false
		},
		NotifyFunc: func(err error, attempt int) {
			lastErr = err
			lastAttempt = attempt
		},
		BackoffFunc: func(prev time.Duration, attempt int) time.Duration {
			next := p.capped(jujuretry.DoubleDelay(prev, attempt))
			if onRetry != nil {
				onRetry(attempt, lastErr, next)
			}
			return next
		},
		Attempts: attempts,
		Delay:    delay,
		MaxDelay: p.MaxDelay,
		Clock:    Clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case fatal != nil:
		return fatal
	case jujuretry.IsRetryStopped(err):
		return fmt.Errorf("cancelled after %d attempts: %w", lastAttempt, ctx.Err())
	case jujuretry.IsAttemptsExceeded(err):
		return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	default:
		return err
	}
}

var transientCodes = map[codes.Code]bool{
	codes.Unavailable:       true,
	codes.DeadlineExceeded:  true,
	codes.ResourceExhausted: true,
	codes.Aborted:           true,
}

// IsTransient reports whether err is a network, gRPC or AWS failure that a
// later attempt can get past.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if s, ok := status.FromError(err); ok && transientCodes[s.Code()] {
		return true
	}

	return awsretry.IsErrorRetryables(awsretry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary
}

package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
)

// Operation is a retryable unit of work. Flows use the helper for their own
// flaky sub-operations; the flow itself is never retried on failure.
type Operation func(ctx context.Context) error

// Config controls attempt count, delay growth, and jitter for a single Do call.
type Config struct {
	Attempts      int
	Delay         time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
	OnError       bool
	// OpName appears in retry log lines to identify the operation.
	OpName string
}

// Helper executes operations with retry semantics.
type Helper struct {
	log        gatelog.Logger
	randSource *rand.Rand
}

// NewHelper creates a retry helper. Panics if the logger is nil.
func NewHelper(log gatelog.Logger) *Helper {
	if log == nil {
		panic("retry.NewHelper requires a non-nil logger")
	}
	return &Helper{
		log:        log,
		randSource: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs op up to cfg.Attempts times, sleeping between attempts with
// exponential backoff and optional jitter. Context cancellation aborts both
// pending attempts and in-progress delays.
func (h *Helper) Do(ctx context.Context, cfg Config, op Operation) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.BackoffFactor < 1.0 {
		cfg.BackoffFactor = 1.0
	}
	if cfg.Jitter < 0.0 {
		cfg.Jitter = 0.0
	} else if cfg.Jitter > 1.0 {
		cfg.Jitter = 1.0
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.MaxDelay < 0 {
		cfg.MaxDelay = 0
	}

	var lastErr error
	logPrefix := ""
	if cfg.OpName != "" {
		logPrefix = fmt.Sprintf("op=%s ", cfg.OpName)
	}

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			h.log.Warnf("%sRetry attempt %d/%d cancelled before start: %v", logPrefix, attempt, cfg.Attempts, ctx.Err())
			if lastErr == nil {
				return ctx.Err()
			}
			return fmt.Errorf("retry cancelled after %d attempts with last error: %w (context: %v)", attempt-1, lastErr, ctx.Err())
		default:
		}

		err := op(ctx)
		lastErr = err

		if err == nil {
			if attempt > 1 {
				h.log.Infof("%sOperation succeeded on attempt %d/%d", logPrefix, attempt, cfg.Attempts)
			}
			return nil
		}

		if attempt == cfg.Attempts || !cfg.OnError {
			break
		}

		currentBaseDelay := float64(cfg.Delay)
		if cfg.BackoffFactor > 1.0 && attempt > 0 {
			currentBaseDelay *= math.Pow(cfg.BackoffFactor, float64(attempt-1))
		}
		if currentBaseDelay > float64(math.MaxInt64) {
			currentBaseDelay = float64(math.MaxInt64)
		}
		waitDelay := time.Duration(currentBaseDelay)

		if cfg.Jitter > 0.0 {
			jitterFactor := cfg.Jitter * (h.randSource.Float64()*2.0 - 1.0)
			waitDelay += time.Duration(float64(waitDelay) * jitterFactor)
			if waitDelay < 0 {
				waitDelay = 0
			}
		}
		if cfg.MaxDelay > 0 && waitDelay > cfg.MaxDelay {
			waitDelay = cfg.MaxDelay
		}

		h.log.Warnf("%sOperation failed on attempt %d/%d (retrying in %v): %v",
			logPrefix, attempt, cfg.Attempts, waitDelay.Truncate(time.Millisecond), err)

		select {
		case <-time.After(waitDelay):
		case <-ctx.Done():
			h.log.Warnf("%sRetry delay for attempt %d/%d cancelled: %v", logPrefix, attempt+1, cfg.Attempts, ctx.Err())
			return fmt.Errorf("retry delay cancelled after attempt %d with error: %w (context: %v)", attempt, lastErr, ctx.Err())
		}
	}

	if lastErr != nil {
		h.log.Errorf("%sOperation failed definitively after %d attempts: %v", logPrefix, cfg.Attempts, lastErr)
		return lastErr
	}

	return gateerrors.NewConfigError("retry loop finished unexpectedly without success or error", nil)
}

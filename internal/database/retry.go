package database

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
)

// BaseBackoff is the first retry delay; it doubles on every attempt.
var BaseBackoff = 50 * time.Millisecond

// WithRetry runs fn until it succeeds, fails permanently, or maxRetries
// retryable failures have been seen. Exhaustion wraps ErrConflict.
func WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	backoff := BaseBackoff

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		class := ClassifyError(err)
		if class == ErrorClassPermanent {
			return err
		}

		if attempt >= maxRetries {
			return fmt.Errorf("%w: max retries (%d) exceeded: %v", ErrConflict, maxRetries, err)
		}

		metrics.TxRetries.WithLabelValues(class.String()).Inc()
		logger.WithCtx(ctx).Warn("retrying transaction",
			"attempt", attempt+1,
			"class", class.String(),
			"error", err,
		)

		jitter := time.Duration(0)
		if quarter := int64(backoff / 4); quarter > 0 {
			jitter = time.Duration(rand.Int63n(quarter))
		}

		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
	}
}

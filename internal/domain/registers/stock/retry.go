package stock

import (
	"context"
	"math/rand/v2"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// atomically runs fn in a ledger transaction. A fresh transaction is retried
// with exponential backoff while it fails with a concurrency conflict; inside
// an existing transaction fn simply joins it and the outermost caller retries.
func (s *Service) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txm.InTransaction(ctx) {
		return fn(ctx)
	}

	delay := s.cfg.RetryBaseDelay
	for attempt := 1; ; attempt++ {
		err := s.txm.RunInTransaction(ctx, fn)
		if err == nil || !apperror.IsConcurrencyConflict(err) || attempt >= s.cfg.RetryAttempts {
			return err
		}

		s.observer.ConflictRetried()
		logger.Warn(ctx, "ledger write conflicted, retrying", "attempt", attempt, "error", err)

		wait := delay
		if delay > 0 {
			wait += rand.N(delay/2 + 1)
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		delay *= 2
	}
}

package services

import (
	"context"
	"errors"

	"waste-auction/internal/domain"
)

const defaultMaxAttempts = 5

// withConflictRetry reruns fn while it reports a lost conditional update.
// fn must re-read everything it validates. After attempts runs the last
// conflict is returned to the caller.
func withConflictRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

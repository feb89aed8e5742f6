package uow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn up to attempts times while it fails with a concurrency
// conflict, backing off exponentially between tries. fn should open its own
// unit of work so each attempt rereads current state. Other errors are
// returned immediately.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && !IsConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}

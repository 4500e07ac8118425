package port

import "context"

type DedupStore interface {
	// SetIdempotency claims key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a claim so the same key can be used again
	ReleaseIdempotency(ctx context.Context, key string) error
}

package ports

import (
	"context"
	"time"
)

// Store is the revocation list for bearer token ids
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

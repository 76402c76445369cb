package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MessageCache interface {
	StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
}

// DeliveryLock keeps two processes from calling a provider for the same
// message at once.
type DeliveryLock interface {
	// Claim reports whether this process now holds the claim for id.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

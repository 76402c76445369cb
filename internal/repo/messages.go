package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the row was not in any of the expected statuses when
	// the update ran.
	ErrConflict = errors.New("status changed concurrently")
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id uuid.UUID) (model.Message, error)
	// Update writes every mutable column of m, provided the stored status is
	// one of expected. It sets m.UpdatedAt.
	Update(ctx context.Context, m *model.Message, expected ...model.Status) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	ListPending(ctx context.Context, ownerID uuid.UUID) ([]model.Message, error)
	ListByRecipient(ctx context.Context, ownerID, recipientID uuid.UUID, limit int) ([]model.Message, error)
	ListSent(ctx context.Context, limit, offset int) ([]model.Message, error)
}

type RecipientRepository interface {
	Get(ctx context.Context, ownerID, recipientID uuid.UUID) (model.Recipient, error)
}

const defaultListLimit = 50

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

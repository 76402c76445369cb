package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

type PostgresRecipientRepo struct {
	db *sql.DB
}

func NewPostgresRecipientRepo(db *sql.DB) *PostgresRecipientRepo {
	return &PostgresRecipientRepo{db: db}
}

// Get returns the recipient only when it belongs to ownerID.
func (r *PostgresRecipientRepo) Get(ctx context.Context, ownerID, recipientID uuid.UUID) (model.Recipient, error) {
	var rc model.Recipient
	var phone sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name_encrypted, phone_encrypted, created_at
		FROM recipients
		WHERE id = $1 AND owner_id = $2
	`, recipientID, ownerID).Scan(&rc.ID, &rc.OwnerID, &rc.NameEncrypted, &phone, &rc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", recipientID, ErrNotFound)
	}
	if err != nil {
		return model.Recipient{}, err
	}

	rc.PhoneEncrypted = phone.String
	rc.CreatedAt = rc.CreatedAt.UTC()
	return rc, nil
}

func (r *PostgresRecipientRepo) Create(ctx context.Context, rc *model.Recipient) error {
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = nowUTC()
	}

	var phone sql.NullString
	if rc.PhoneEncrypted != "" {
		phone = sql.NullString{String: rc.PhoneEncrypted, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipients (id, owner_id, name_encrypted, phone_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rc.ID, rc.OwnerID, rc.NameEncrypted, phone, rc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

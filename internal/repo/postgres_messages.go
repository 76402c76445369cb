package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

const messageColumns = `id, owner_id, recipient_id, content, message_type, template_variables,
	status, requires_approval, approved_at, rejected_at, rejection_reason,
	scheduled_send_at, sent_at, delivered_at, read_at, channel,
	recipient_phone, provider_message_id, failure_reason,
	generated_by_model, model_id, prompt_used, created_at, updated_at`

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	vars, err := encodeVars(m.TemplateVariables)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`,
		m.ID, m.OwnerID, m.RecipientID, m.Content, m.MessageType, vars,
		string(m.Status), m.RequiresApproval, nullTime(m.ApprovedAt), nullTime(m.RejectedAt), nullString(m.RejectionReason),
		nullTime(m.ScheduledSendAt), nullTime(m.SentAt), nullTime(m.DeliveredAt), nullTime(m.ReadAt), m.Channel,
		nullString(m.RecipientPhone), nullString(m.ProviderMessageID), nullString(m.FailureReason),
		m.GeneratedByModel, nullString(m.ModelID), nullString(m.PromptUsed), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepo) Get(ctx context.Context, id uuid.UUID) (model.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, err
}

func (r *PostgresMessageRepo) Update(ctx context.Context, m *model.Message, expected ...model.Status) error {
	if len(expected) == 0 {
		return errors.New("update needs at least one expected status")
	}

	vars, err := encodeVars(m.TemplateVariables)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	args := []any{
		m.ID, m.Content, m.MessageType, vars, string(m.Status),
		nullTime(m.ApprovedAt), nullTime(m.RejectedAt), nullString(m.RejectionReason),
		nullTime(m.ScheduledSendAt), nullTime(m.SentAt), nullTime(m.DeliveredAt), nullTime(m.ReadAt),
		m.Channel, nullString(m.RecipientPhone), nullString(m.ProviderMessageID), nullString(m.FailureReason),
		m.GeneratedByModel, nullString(m.ModelID), nullString(m.PromptUsed), now,
	}
	placeholders := make([]string, len(expected))
	for i, s := range expected {
		args = append(args, string(s))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET content = $2,
		    message_type = $3,
		    template_variables = $4,
		    status = $5,
		    approved_at = $6,
		    rejected_at = $7,
		    rejection_reason = $8,
		    scheduled_send_at = $9,
		    sent_at = $10,
		    delivered_at = $11,
		    read_at = $12,
		    channel = $13,
		    recipient_phone = $14,
		    provider_message_id = $15,
		    failure_reason = $16,
		    generated_by_model = $17,
		    model_id = $18,
		    prompt_used = $19,
		    updated_at = $20
		WHERE id = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, m.ID)
	}
	m.UpdatedAt = now
	return nil
}

func (r *PostgresMessageRepo) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM messages WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("message %s is %s: %w", id, current, ErrConflict)
}

func (r *PostgresMessageRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'scheduled' AND scheduled_send_at <= $1
		ORDER BY scheduled_send_at ASC
		LIMIT $2
	`, now.UTC(), limit)
}

func (r *PostgresMessageRepo) ListPending(ctx context.Context, ownerID uuid.UUID) ([]model.Message, error) {
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE owner_id = $1 AND status IN ('draft', 'pending_approval')
		ORDER BY created_at DESC
	`, ownerID)
}

func (r *PostgresMessageRepo) ListByRecipient(ctx context.Context, ownerID, recipientID uuid.UUID, limit int) ([]model.Message, error) {
	limit, _ = normalizePage(limit, 0)
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE owner_id = $1 AND recipient_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, ownerID, recipientID, limit)
}

func (r *PostgresMessageRepo) ListSent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status IN ('sent', 'delivered', 'read', 'replied')
		ORDER BY sent_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *PostgresMessageRepo) query(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (model.Message, error) {
	var m model.Message
	var status string
	var vars []byte
	var approved, rejected, scheduled, sent, delivered, read sql.NullTime
	var reason, phone, providerID, failure, modelID, prompt sql.NullString

	if err := s.Scan(
		&m.ID, &m.OwnerID, &m.RecipientID, &m.Content, &m.MessageType, &vars,
		&status, &m.RequiresApproval, &approved, &rejected, &reason,
		&scheduled, &sent, &delivered, &read, &m.Channel,
		&phone, &providerID, &failure,
		&m.GeneratedByModel, &modelID, &prompt, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return model.Message{}, err
	}

	m.Status = model.Status(status)
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &m.TemplateVariables); err != nil {
			return model.Message{}, fmt.Errorf("decode template variables: %w", err)
		}
	}

	m.ApprovedAt = timeFrom(approved)
	m.RejectedAt = timeFrom(rejected)
	m.ScheduledSendAt = timeFrom(scheduled)
	m.SentAt = timeFrom(sent)
	m.DeliveredAt = timeFrom(delivered)
	m.ReadAt = timeFrom(read)
	m.RejectionReason = stringFrom(reason)
	m.RecipientPhone = stringFrom(phone)
	m.ProviderMessageID = stringFrom(providerID)
	m.FailureReason = stringFrom(failure)
	m.ModelID = stringFrom(modelID)
	m.PromptUsed = stringFrom(prompt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func encodeVars(vars map[string]string) (any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode template variables: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timeFrom(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func stringFrom(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

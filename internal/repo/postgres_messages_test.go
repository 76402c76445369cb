package repo

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

var messageColumnNames = []string{
	"id", "owner_id", "recipient_id", "content", "message_type", "template_variables",
	"status", "requires_approval", "approved_at", "rejected_at", "rejection_reason",
	"scheduled_send_at", "sent_at", "delivered_at", "read_at", "channel",
	"recipient_phone", "provider_message_id", "failure_reason",
	"generated_by_model", "model_id", "prompt_used", "created_at", "updated_at",
}

func newMock(t *testing.T) (*PostgresMessageRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresMessageRepo(db), mock
}

func scheduledRow(id uuid.UUID, due time.Time) []driver.Value {
	created := due.Add(-time.Hour)
	return []driver.Value{
		id.String(), uuid.NewString(), uuid.NewString(), "hello", "check_in", []byte(`{"1":"Dana"}`),
		"scheduled", true, created, nil, nil,
		due, nil, nil, nil, "whatsapp",
		"+972501234567", nil, nil,
		false, nil, nil, created, created,
	}
}

func TestPostgresMessageRepo_Create(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(0, 1))

	m := &model.Message{Status: model.Draft, Content: "hi", Channel: "whatsapp"}
	require.NoError(t, r.Create(context.Background(), m))

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMessageRepo_Get(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	id := uuid.New()
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(messageColumnNames).AddRow(scheduledRow(id, due)...))

	m, err := r.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, m.ID)
	assert.Equal(t, model.Scheduled, m.Status)
	assert.Equal(t, "Dana", m.TemplateVariables["1"])
	require.NotNil(t, m.ScheduledSendAt)
	assert.True(t, m.ScheduledSendAt.Equal(due))
	require.NotNil(t, m.RecipientPhone)
	assert.Equal(t, "+972501234567", *m.RecipientPhone)
	assert.Nil(t, m.SentAt)
	assert.Nil(t, m.ProviderMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMessageRepo_Get_NotFound(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	mock.ExpectQuery("FROM messages").WillReturnRows(sqlmock.NewRows(messageColumnNames))

	_, err := r.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMessageRepo_Update_ChecksExpectedStatus(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	m := &model.Message{ID: uuid.New(), Status: model.Cancelled}

	args := make([]driver.Value, 20)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args = append(args, "scheduled")

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status IN ($21)")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Update(context.Background(), m, model.Scheduled))
	assert.False(t, m.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMessageRepo_Update_Conflict(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	m := &model.Message{ID: uuid.New(), Status: model.Sent}

	mock.ExpectExec(regexp.QuoteMeta("status IN ($21, $22)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM messages WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

	err := r.Update(context.Background(), m, model.Approved, model.Scheduled)
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "cancelled")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMessageRepo_Update_Missing(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	mock.ExpectExec("UPDATE messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM messages").WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := r.Update(context.Background(), &model.Message{ID: uuid.New()}, model.Draft)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMessageRepo_Update_NeedsExpected(t *testing.T) {
	t.Parallel()

	r, _ := newMock(t)
	require.Error(t, r.Update(context.Background(), &model.Message{ID: uuid.New()}))
}

func TestPostgresMessageRepo_ListDue(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(messageColumnNames).
		AddRow(scheduledRow(uuid.New(), now.Add(-time.Minute))...).
		AddRow(scheduledRow(uuid.New(), now)...)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'scheduled' AND scheduled_send_at <= $1")).
		WithArgs(now, 10).
		WillReturnRows(rows)

	got, err := r.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = r.ListDue(context.Background(), now, 0)
	require.Error(t, err)
}

func TestPostgresMessageRepo_ListSent_DefaultsPage(t *testing.T) {
	t.Parallel()

	r, mock := newMock(t)
	mock.ExpectQuery("ORDER BY sent_at DESC").
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(messageColumnNames))

	got, err := r.ListSent(context.Background(), 0, -3)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecipientRepo_Get(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	owner, id := uuid.New(), uuid.New()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM recipients").
		WithArgs(id, owner).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name_encrypted", "phone_encrypted", "created_at"}).
			AddRow(id.String(), owner.String(), "v1:name", nil, created))

	rc, err := NewPostgresRecipientRepo(db).Get(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, "v1:name", rc.NameEncrypted)
	assert.Empty(t, rc.PhoneEncrypted)

	mock.ExpectQuery("FROM recipients").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = NewPostgresRecipientRepo(db).Get(context.Background(), uuid.New(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS recipients")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, schema, "WHERE status = 'scheduled'")
}

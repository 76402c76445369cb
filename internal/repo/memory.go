package repo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

// MemoryMessageRepo keeps messages in process memory. It backs tests and
// local runs without a database.
type MemoryMessageRepo struct {
	mu   sync.RWMutex
	msgs map[uuid.UUID]model.Message
	now  func() time.Time
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{msgs: make(map[uuid.UUID]model.Message), now: nowUTC}
}

func (r *MemoryMessageRepo) Create(_ context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if _, ok := r.msgs[m.ID]; ok {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	now := r.now()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.msgs[m.ID] = m.Clone()
	return nil
}

func (r *MemoryMessageRepo) Get(_ context.Context, id uuid.UUID) (model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.msgs[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (r *MemoryMessageRepo) Update(_ context.Context, m *model.Message, expected ...model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.msgs[m.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", m.ID, ErrNotFound)
	}
	if !slices.Contains(expected, cur.Status) {
		return fmt.Errorf("message %s is %s: %w", m.ID, cur.Status, ErrConflict)
	}

	m.CreatedAt = cur.CreatedAt
	m.UpdatedAt = r.now()
	r.msgs[m.ID] = m.Clone()
	return nil
}

func (r *MemoryMessageRepo) ListDue(_ context.Context, now time.Time, limit int) ([]model.Message, error) {
	out := r.filter(func(m model.Message) bool {
		return m.Status == model.Scheduled && m.ScheduledSendAt != nil && !m.ScheduledSendAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledSendAt.Before(*out[j].ScheduledSendAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) ListPending(_ context.Context, ownerID uuid.UUID) ([]model.Message, error) {
	out := r.filter(func(m model.Message) bool {
		return m.OwnerID == ownerID && (m.Status == model.Draft || m.Status == model.PendingApproval)
	})
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryMessageRepo) ListByRecipient(_ context.Context, ownerID, recipientID uuid.UUID, limit int) ([]model.Message, error) {
	limit, _ = normalizePage(limit, 0)
	out := r.filter(func(m model.Message) bool {
		return m.OwnerID == ownerID && m.RecipientID == recipientID
	})
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) ListSent(_ context.Context, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	out := r.filter(func(m model.Message) bool {
		switch m.Status {
		case model.Sent, model.Delivered, model.Read, model.Replied:
			return m.SentAt != nil
		}
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(*out[j].SentAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) filter(keep func(model.Message) bool) []model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Message
	for _, m := range r.msgs {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}

func sortNewestFirst(msgs []model.Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
}

type MemoryRecipientRepo struct {
	mu         sync.RWMutex
	recipients map[uuid.UUID]model.Recipient
}

func NewMemoryRecipientRepo() *MemoryRecipientRepo {
	return &MemoryRecipientRepo{recipients: make(map[uuid.UUID]model.Recipient)}
}

func (r *MemoryRecipientRepo) Create(_ context.Context, rc *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = nowUTC()
	}
	r.recipients[rc.ID] = *rc
	return nil
}

func (r *MemoryRecipientRepo) Get(_ context.Context, ownerID, recipientID uuid.UUID) (model.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.recipients[recipientID]
	if !ok || rc.OwnerID != ownerID {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", recipientID, ErrNotFound)
	}
	return rc, nil
}

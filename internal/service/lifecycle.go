package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/audit"
	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
	"github.com/LeventeLantos/scheduled-messaging/internal/template"
)

type DraftRequest struct {
	OwnerID     uuid.UUID
	RecipientID uuid.UUID
	MessageType string
	// Content is used as-is when set; otherwise it is generated.
	Content           string
	Context           map[string]string
	TemplateVariables map[string]string
	Channel           string
	RecipientPhone    string
}

// SendRequest carries the owner's final edits at send time. Nil fields keep
// the stored value.
type SendRequest struct {
	Content        *string
	RecipientPhone *string
	SendAt         *time.Time
}

func (s *MessageService) CreateDraft(ctx context.Context, req DraftRequest) (model.Message, error) {
	m := model.Message{
		OwnerID:           req.OwnerID,
		RecipientID:       req.RecipientID,
		MessageType:       req.MessageType,
		TemplateVariables: req.TemplateVariables,
		Status:            model.Draft,
		RequiresApproval:  s.requireApproval,
		Channel:           req.Channel,
	}
	if m.Channel == "" {
		m.Channel = defaultChannel
	}

	err := s.prepareDraft(ctx, &m, req)
	if err == nil {
		err = s.messages.Create(ctx, &m)
	}
	s.record(ctx, req.OwnerID.String(), audit.ActionCreate, "", m, err)
	if err != nil {
		return model.Message{}, err
	}

	s.countTransition("", model.Draft)
	s.log.Info("draft created",
		zap.Stringer("message_id", m.ID),
		zap.String("message_type", m.MessageType),
		zap.Bool("generated", m.GeneratedByModel),
	)
	return m, nil
}

func (s *MessageService) prepareDraft(ctx context.Context, m *model.Message, req DraftRequest) error {
	if _, err := channel.ParseKind(m.Channel); err != nil {
		return err
	}

	recipient, err := s.recipients.Get(ctx, req.OwnerID, req.RecipientID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrMissingRecipient, req.RecipientID)
	}
	if err != nil {
		return err
	}

	if req.RecipientPhone != "" {
		normalized, err := s.phones.Normalize(req.RecipientPhone)
		if err != nil {
			return err
		}
		m.RecipientPhone = &normalized
	}

	switch {
	case strings.TrimSpace(req.Content) != "":
		m.Content = req.Content
	case s.fixedTemplate(req.MessageType):
		tpl, _ := s.templates.Lookup(req.MessageType)
		m.Content = template.Substitute(tpl.Body, req.TemplateVariables)
	default:
		if err := s.generate(ctx, m, recipient, req.Context); err != nil {
			return err
		}
	}

	return s.checkContent(m.Content)
}

func (s *MessageService) generate(ctx context.Context, m *model.Message, recipient model.Recipient, extra map[string]string) error {
	if s.generator == nil {
		return ErrNoGenerator
	}

	name := ""
	if s.cipher != nil && recipient.NameEncrypted != "" {
		var err error
		if name, err = s.cipher.Decrypt(recipient.NameEncrypted); err != nil {
			return fmt.Errorf("decrypt recipient name: %w", err)
		}
	}

	prompt := s.templates.Prompt(m.MessageType, name, extra)
	text, err := s.generator.Generate(ctx, prompt, extra)
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}

	m.Content = text
	m.GeneratedByModel = true
	m.PromptUsed = &prompt
	if id := s.generator.Model(); id != "" {
		m.ModelID = &id
	}
	return nil
}

func (s *MessageService) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if n := utf8.RuneCountInString(content); n > s.contentMax {
		return fmt.Errorf("%w: %d > %d characters", ErrContentTooLong, n, s.contentMax)
	}
	return nil
}

func (s *MessageService) EditDraft(ctx context.Context, ownerID, id uuid.UUID, content string) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionEdit, func(m *model.Message) error {
		if m.Status != model.Draft && m.Status != model.PendingApproval {
			return fmt.Errorf("%w: cannot edit a %s message as a draft", model.ErrInvalidTransition, m.Status)
		}
		if err := s.checkContent(content); err != nil {
			return err
		}
		m.Content = content
		return nil
	})
}

func (s *MessageService) RequestApproval(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionRequestApproval, func(m *model.Message) error {
		if m.Status != model.Draft {
			return &model.TransitionError{From: m.Status, To: model.PendingApproval}
		}
		return m.Transition(model.PendingApproval)
	})
}

func (s *MessageService) Approve(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionApprove, func(m *model.Message) error {
		if err := approvable(m, model.Approved); err != nil {
			return err
		}
		m.ApprovedAt = model.TimePtr(s.clock())
		return nil
	})
}

func (s *MessageService) Reject(ctx context.Context, ownerID, id uuid.UUID, reason string) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionReject, func(m *model.Message) error {
		if err := approvable(m, model.Rejected); err != nil {
			return err
		}
		m.RejectedAt = model.TimePtr(s.clock())
		if reason != "" {
			m.RejectionReason = &reason
		}
		return nil
	})
}

// approvable moves a draft or pending message to an approval decision.
func approvable(m *model.Message, to model.Status) error {
	if m.Status != model.Draft && m.Status != model.PendingApproval {
		return &model.TransitionError{From: m.Status, To: to}
	}
	return m.Transition(to)
}

// SendOrSchedule finalizes a draft. A missing or past SendAt approves and
// delivers now; a future one schedules the message without calling any
// provider.
func (s *MessageService) SendOrSchedule(ctx context.Context, ownerID, id uuid.UUID, req SendRequest) (model.Message, error) {
	now := s.clock()
	immediate := req.SendAt == nil || !req.SendAt.After(now)

	action := audit.ActionSchedule
	if immediate {
		action = audit.ActionApprove
	}

	m, err := s.mutate(ctx, ownerID, id, action, func(m *model.Message) error {
		if m.Status != model.Draft {
			return fmt.Errorf("%w: only a draft can be sent or scheduled, message is %s", model.ErrInvalidTransition, m.Status)
		}
		if err := s.applyEdits(m, req.Content, req.RecipientPhone); err != nil {
			return err
		}

		m.ApprovedAt = model.TimePtr(now)
		if immediate {
			return m.Transition(model.Approved)
		}
		if err := m.Transition(model.Scheduled); err != nil {
			return err
		}
		m.ScheduledSendAt = model.TimePtr(*req.SendAt)
		return nil
	})
	if err != nil || !immediate {
		if err == nil {
			s.log.Info("message scheduled",
				zap.Stringer("message_id", m.ID),
				zap.Time("scheduled_send_at", *m.ScheduledSendAt),
			)
		}
		return m, err
	}

	return s.Deliver(ctx, id)
}

// SendApproved delivers a message that was approved on its own.
func (s *MessageService) SendApproved(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	m, err := s.load(ctx, ownerID, id)
	if err != nil {
		return model.Message{}, err
	}
	if m.Status != model.Approved {
		return m, fmt.Errorf("%w: only an approved message can be sent, message is %s", model.ErrInvalidTransition, m.Status)
	}
	return s.Deliver(ctx, id)
}

func (s *MessageService) Cancel(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionCancel, func(m *model.Message) error {
		if m.Status != model.Scheduled {
			return &model.TransitionError{From: m.Status, To: model.Cancelled}
		}
		return m.Transition(model.Cancelled)
	})
}

// EditScheduled changes a scheduled message in place. Only the provided
// fields change; the message stays scheduled.
func (s *MessageService) EditScheduled(ctx context.Context, ownerID, id uuid.UUID, req SendRequest) (model.Message, error) {
	return s.mutate(ctx, ownerID, id, audit.ActionReschedule, func(m *model.Message) error {
		if m.Status != model.Scheduled {
			return fmt.Errorf("%w: only a scheduled message can be rescheduled, message is %s", model.ErrInvalidTransition, m.Status)
		}
		if err := s.applyEdits(m, req.Content, req.RecipientPhone); err != nil {
			return err
		}
		if req.SendAt != nil {
			m.ScheduledSendAt = model.TimePtr(*req.SendAt)
		}
		return m.Transition(model.Scheduled)
	})
}

func (s *MessageService) applyEdits(m *model.Message, content, recipientPhone *string) error {
	if content != nil && !s.fixedTemplate(m.MessageType) {
		if err := s.checkContent(*content); err != nil {
			return err
		}
		m.Content = *content
	}
	if recipientPhone != nil {
		normalized, err := s.phones.Normalize(*recipientPhone)
		if err != nil {
			return err
		}
		m.RecipientPhone = &normalized
	}
	return nil
}

// mutate loads a message, applies fn and writes the result back only if the
// status did not change in between.
func (s *MessageService) mutate(
	ctx context.Context,
	ownerID, id uuid.UUID,
	action audit.Action,
	fn func(m *model.Message) error,
) (model.Message, error) {
	m, err := s.load(ctx, ownerID, id)
	if err != nil {
		return model.Message{}, err
	}

	from := m.Status
	next := m.Clone()
	err = fn(&next)
	if err == nil {
		err = s.messages.Update(ctx, &next, from)
	}
	if err != nil {
		s.record(ctx, ownerID.String(), action, from, m, err)
		return m, err
	}

	s.record(ctx, ownerID.String(), action, from, next, nil)
	s.countTransition(from, next.Status)
	return next, nil
}

func (s *MessageService) Get(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	return s.load(ctx, ownerID, id)
}

func (s *MessageService) ListPending(ctx context.Context, ownerID uuid.UUID) ([]model.Message, error) {
	return s.messages.ListPending(ctx, ownerID)
}

func (s *MessageService) History(ctx context.Context, ownerID, recipientID uuid.UUID, limit int) ([]model.Message, error) {
	return s.messages.ListByRecipient(ctx, ownerID, recipientID, limit)
}

func (s *MessageService) ListSent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	return s.messages.ListSent(ctx, limit, offset)
}

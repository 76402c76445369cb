package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/audit"
	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
)

// Deliver is the only path that calls a provider. It is idempotent: a
// message already in a terminal status is returned unchanged. Delivery
// failures are recorded on the message, so the returned error is only ever
// a storage error.
func (s *MessageService) Deliver(ctx context.Context, id uuid.UUID) (model.Message, error) {
	v, err, _ := s.inflight.Do(id.String(), func() (any, error) {
		return s.deliver(ctx, id)
	})
	if err != nil {
		return model.Message{}, err
	}
	return v.(model.Message), nil
}

func (s *MessageService) deliver(ctx context.Context, id uuid.UUID) (model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return model.Message{}, err
	}
	if !s.deliverable(m) {
		return m, nil
	}

	if s.lock != nil {
		claimed, err := s.lock.Claim(ctx, id)
		switch {
		case err != nil:
			s.log.Warn("delivery claim unavailable, continuing without it", zap.Stringer("message_id", id), zap.Error(err))
		case !claimed:
			s.log.Info("delivery claimed by another process", zap.Stringer("message_id", id))
			return m, nil
		default:
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(ctx), id); err != nil {
					s.log.Warn("release delivery claim", zap.Stringer("message_id", id), zap.Error(err))
				}
			}()
			// Another process may have finished between the first read and the claim.
			if m, err = s.messages.Get(ctx, id); err != nil {
				return model.Message{}, err
			}
			if !s.deliverable(m) {
				return m, nil
			}
		}
	}

	// The provider call and the outcome write outlive the caller.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	defer cancel()

	from := m.Status
	res := s.send(ctx, m)

	next := m.Clone()
	now := s.clock()
	if res.OK() {
		_ = next.Transition(model.Sent)
		next.SentAt = model.TimePtr(now)
		next.ProviderMessageID = &res.ProviderID
		next.FailureReason = nil
	} else {
		_ = next.Transition(model.Failed)
		reason := res.Error
		if res.Err != nil {
			reason = channel.Classify(res.Err)
		}
		next.FailureReason = &reason
	}

	saved, written, err := s.persistOutcome(ctx, from, next)
	if err != nil {
		return model.Message{}, err
	}
	if !written {
		return saved, nil
	}

	s.record(ctx, systemActor, audit.ActionDeliver, from, saved, outcomeErr(saved))
	s.countTransition(from, saved.Status)
	if saved.Status == model.Sent {
		s.cacheSent(ctx, saved)
		s.log.Info("message sent",
			zap.Stringer("message_id", saved.ID),
			zap.String("channel", saved.Channel),
			zap.String("provider_message_id", *saved.ProviderMessageID),
		)
	} else if saved.Status == model.Failed {
		s.log.Warn("message delivery failed",
			zap.Stringer("message_id", saved.ID),
			zap.String("channel", saved.Channel),
			zap.String("reason", *saved.FailureReason),
		)
	}
	return saved, nil
}

// deliverable reports whether m may go to a provider now. Terminal messages
// are a silent no-op; drafts and pending messages are never sent.
func (s *MessageService) deliverable(m model.Message) bool {
	switch {
	case m.Status == model.Approved, m.Status == model.Scheduled:
		return true
	case m.Status.IsTerminal():
		return false
	}
	s.log.Warn("refusing to deliver unapproved message",
		zap.Stringer("message_id", m.ID),
		zap.String("status", string(m.Status)),
	)
	return false
}

func (s *MessageService) send(ctx context.Context, m model.Message) channel.Result {
	to, reason := s.resolvePhone(ctx, m)
	if reason != "" {
		return channel.Result{Status: channel.StatusFailed, Error: reason}
	}

	adapter, err := s.router.Adapter(m.Channel)
	if err != nil {
		return channel.Failed(err)
	}

	req := channel.SendRequest{
		To:                to,
		Body:              m.Content,
		TemplateVariables: m.TemplateVariables,
	}
	if tpl, ok := s.templates.Lookup(m.MessageType); ok && tpl.Fixed {
		req.ContentTemplateID = tpl.ContentSID
	}
	return adapter.Send(ctx, req)
}

// resolvePhone returns the destination number, or a failure reason when
// there is none.
func (s *MessageService) resolvePhone(ctx context.Context, m model.Message) (string, string) {
	if m.RecipientPhone != nil && *m.RecipientPhone != "" {
		return *m.RecipientPhone, ""
	}

	recipient, err := s.recipients.Get(ctx, m.OwnerID, m.RecipientID)
	if err != nil || recipient.PhoneEncrypted == "" || s.cipher == nil {
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.log.Warn("recipient lookup failed", zap.Stringer("message_id", m.ID), zap.Error(err))
		}
		return "", reasonNoPhone
	}

	raw, err := s.cipher.Decrypt(recipient.PhoneEncrypted)
	if err != nil {
		s.log.Warn("decrypt recipient phone", zap.Stringer("message_id", m.ID), zap.Error(err))
		return "", reasonNoPhone
	}
	normalized, err := s.phones.Normalize(raw)
	if err != nil {
		return "", channel.ReasonInvalidRecipient
	}
	return normalized, ""
}

// persistOutcome writes the delivery result and reports whether this call
// wrote it. If the message was cancelled while the provider call was in
// flight, the real outcome still wins.
func (s *MessageService) persistOutcome(ctx context.Context, from model.Status, next model.Message) (model.Message, bool, error) {
	err := s.messages.Update(ctx, &next, from)
	if err == nil {
		return next, true, nil
	}
	if !errors.Is(err, ErrConflict) {
		return model.Message{}, false, err
	}

	current, gerr := s.messages.Get(ctx, next.ID)
	if gerr != nil {
		return model.Message{}, false, gerr
	}
	if current.Status != model.Cancelled {
		s.log.Warn("delivery outcome already recorded elsewhere",
			zap.Stringer("message_id", next.ID),
			zap.String("status", string(current.Status)),
		)
		return current, false, nil
	}

	s.log.Warn("delivery completed after cancellation, recording real outcome",
		zap.Stringer("message_id", next.ID),
		zap.String("outcome", string(next.Status)),
	)
	if err := s.messages.Update(ctx, &next, model.Cancelled); err != nil {
		return model.Message{}, false, err
	}
	return next, true, nil
}

func (s *MessageService) cacheSent(ctx context.Context, m model.Message) {
	if s.sentCache == nil {
		return
	}
	if err := s.sentCache.StoreSent(ctx, m.ID, *m.ProviderMessageID, *m.SentAt); err != nil {
		s.log.Warn("cache sent message", zap.Stringer("message_id", m.ID), zap.Error(err))
	}
}

func outcomeErr(m model.Message) error {
	if m.Status == model.Failed && m.FailureReason != nil {
		return errors.New(*m.FailureReason)
	}
	return nil
}

// Expire fails a scheduled message whose due time passed too long ago.
func (s *MessageService) Expire(ctx context.Context, id uuid.UUID) (model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return model.Message{}, err
	}
	if m.Status != model.Scheduled {
		return m, nil
	}

	next := m.Clone()
	if err := next.Transition(model.Failed); err != nil {
		return m, err
	}
	reason := reasonWindowMissed
	next.FailureReason = &reason

	if err := s.messages.Update(ctx, &next, model.Scheduled); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.messages.Get(ctx, id)
		}
		return model.Message{}, fmt.Errorf("expire message %s: %w", id, err)
	}
	s.record(ctx, systemActor, audit.ActionDeliver, m.Status, next, errors.New(reason))
	s.countTransition(m.Status, next.Status)
	return next, nil
}

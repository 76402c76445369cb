package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Draft           Status = "draft"
	PendingApproval Status = "pending_approval"
	Approved        Status = "approved"
	Scheduled       Status = "scheduled"
	Sent            Status = "sent"
	Delivered       Status = "delivered"
	Read            Status = "read"
	Replied         Status = "replied"
	Rejected        Status = "rejected"
	Cancelled       Status = "cancelled"
	Failed          Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	Draft, PendingApproval, Approved, Scheduled,
	Sent, Delivered, Read, Replied,
	Rejected, Cancelled, Failed,
}

// IsTerminal reports whether no delivery can ever follow this status.
// Delivered, read and replied are refinements of sent and count as terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case Sent, Delivered, Read, Replied, Rejected, Cancelled, Failed:
		return true
	}
	return false
}

// ContentEditable reports whether the message body may still change.
func (s Status) ContentEditable() bool {
	return s == Draft || s == PendingApproval || s == Scheduled
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Message struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"ownerId"`
	RecipientID uuid.UUID `json:"recipientId"`

	Content           string            `json:"content"`
	MessageType       string            `json:"messageType"`
	TemplateVariables map[string]string `json:"templateVariables,omitempty"`

	Status Status `json:"status"`

	RequiresApproval bool       `json:"requiresApproval"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	RejectedAt       *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason  *string    `json:"rejectionReason,omitempty"`

	ScheduledSendAt   *time.Time `json:"scheduledSendAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	Channel           string     `json:"channel"`
	RecipientPhone    *string    `json:"recipientPhone,omitempty"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	FailureReason     *string    `json:"failureReason,omitempty"`

	GeneratedByModel bool    `json:"generatedByModel"`
	ModelID          *string `json:"modelId,omitempty"`
	PromptUsed       *string `json:"promptUsed,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (m Message) Clone() Message {
	out := m
	out.ApprovedAt = cloneTime(m.ApprovedAt)
	out.RejectedAt = cloneTime(m.RejectedAt)
	out.ScheduledSendAt = cloneTime(m.ScheduledSendAt)
	out.SentAt = cloneTime(m.SentAt)
	out.DeliveredAt = cloneTime(m.DeliveredAt)
	out.ReadAt = cloneTime(m.ReadAt)
	out.RejectionReason = cloneString(m.RejectionReason)
	out.RecipientPhone = cloneString(m.RecipientPhone)
	out.ProviderMessageID = cloneString(m.ProviderMessageID)
	out.FailureReason = cloneString(m.FailureReason)
	out.ModelID = cloneString(m.ModelID)
	out.PromptUsed = cloneString(m.PromptUsed)
	if m.TemplateVariables != nil {
		out.TemplateVariables = make(map[string]string, len(m.TemplateVariables))
		for k, v := range m.TemplateVariables {
			out.TemplateVariables[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func StringPtr(s string) *string {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	u := UTC(t)
	return &u
}

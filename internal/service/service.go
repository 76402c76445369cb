package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/LeventeLantos/scheduled-messaging/internal/audit"
	"github.com/LeventeLantos/scheduled-messaging/internal/cache"
	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
	"github.com/LeventeLantos/scheduled-messaging/internal/phone"
	"github.com/LeventeLantos/scheduled-messaging/internal/repo"
	"github.com/LeventeLantos/scheduled-messaging/internal/template"
)

type Generator interface {
	Generate(ctx context.Context, prompt string, context map[string]string) (string, error)
	Model() string
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Router interface {
	Adapter(name string) (channel.Adapter, error)
}

type Templates interface {
	Lookup(messageType string) (template.Template, bool)
	Prompt(messageType, recipientName string, extra map[string]string) string
}

type Option func(*MessageService)

func WithGenerator(g Generator) Option             { return func(s *MessageService) { s.generator = g } }
func WithCipher(c Cipher) Option                   { return func(s *MessageService) { s.cipher = c } }
func WithAudit(a audit.Logger) Option              { return func(s *MessageService) { s.audit = a } }
func WithMetrics(m *metrics.Metrics) Option        { return func(s *MessageService) { s.metrics = m } }
func WithSentCache(c cache.MessageCache) Option    { return func(s *MessageService) { s.sentCache = c } }
func WithDeliveryLock(l cache.DeliveryLock) Option { return func(s *MessageService) { s.lock = l } }
func WithTemplates(t Templates) Option             { return func(s *MessageService) { s.templates = t } }
func WithClock(now func() time.Time) Option        { return func(s *MessageService) { s.now = now } }
func WithContentMax(n int) Option                  { return func(s *MessageService) { s.contentMax = n } }
func WithRequireApproval(b bool) Option            { return func(s *MessageService) { s.requireApproval = b } }
func WithBatchSize(n int) Option                   { return func(s *MessageService) { s.batchSize = n } }
func WithConcurrency(n int) Option                 { return func(s *MessageService) { s.concurrency = n } }
func WithMaxStaleness(d time.Duration) Option      { return func(s *MessageService) { s.maxStaleness = d } }
func WithSendTimeout(d time.Duration) Option       { return func(s *MessageService) { s.sendTimeout = d } }

// MessageService owns every status change of a message. Nothing is sent
// except through Deliver.
type MessageService struct {
	messages   repo.MessageRepository
	recipients repo.RecipientRepository
	router     Router
	phones     phone.Normalizer
	log        *zap.Logger

	generator Generator
	cipher    Cipher
	audit     audit.Logger
	metrics   *metrics.Metrics
	sentCache cache.MessageCache
	lock      cache.DeliveryLock
	templates Templates
	now       func() time.Time

	contentMax      int
	requireApproval bool
	batchSize       int
	concurrency     int
	maxStaleness    time.Duration
	sendTimeout     time.Duration

	inflight singleflight.Group
}

func NewMessageService(
	messages repo.MessageRepository,
	recipients repo.RecipientRepository,
	router Router,
	phones phone.Normalizer,
	log *zap.Logger,
	opts ...Option,
) *MessageService {
	s := &MessageService{
		messages:        messages,
		recipients:      recipients,
		router:          router,
		phones:          phones,
		log:             log,
		audit:           audit.Nop{},
		templates:       template.Default(),
		now:             time.Now,
		contentMax:      defaultContentMax,
		requireApproval: true,
		batchSize:       defaultBatchSize,
		concurrency:     defaultConcurrency,
		sendTimeout:     defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MessageService) clock() time.Time {
	return model.UTC(s.now())
}

// load fetches a message and hides it from owners other than its own.
func (s *MessageService) load(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return model.Message{}, err
	}
	if m.OwnerID != ownerID {
		return model.Message{}, ErrNotFound
	}
	return m, nil
}

// fixedTemplate reports whether the message type must go out as a
// provider template regardless of its content.
func (s *MessageService) fixedTemplate(messageType string) bool {
	t, ok := s.templates.Lookup(messageType)
	return ok && t.Fixed
}

func (s *MessageService) record(ctx context.Context, actor string, action audit.Action, from model.Status, m model.Message, opErr error) {
	e := audit.Entry{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceTypeMessage,
		ResourceID:   m.ID.String(),
		OldStatus:    string(from),
		NewStatus:    string(m.Status),
		Details:      map[string]string{"preview": audit.Preview(m.Content)},
		Success:      opErr == nil,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	s.audit.LogAction(ctx, e)
}

func (s *MessageService) countTransition(from, to model.Status) {
	if s.metrics == nil || from == to {
		return
	}
	s.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

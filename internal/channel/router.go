package channel

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/client"
	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
)

const (
	ProviderTwilio   = "twilio"
	ProviderGreenAPI = "green_api"
)

type Config struct {
	// WhatsAppProvider is "twilio" or "green_api".
	WhatsAppProvider string

	TwilioBaseURL string
	Twilio        client.TwilioCredentials
	TwilioFrom    string

	GreenAPIBaseURL    string
	GreenAPIInstanceID string
	GreenAPIToken      string

	WebhookURL string
}

type (
	TwilioFactory   func(baseURL string, creds client.TwilioCredentials, from string) (*client.TwilioClient, error)
	GreenAPIFactory func(baseURL, instanceID, token string) (*client.GreenAPIClient, error)
	WebhookFactory  func(url string) *client.WebhookClient
)

type Option func(*Router)

func WithTwilioFactory(f TwilioFactory) Option     { return func(r *Router) { r.newTwilio = f } }
func WithGreenAPIFactory(f GreenAPIFactory) Option { return func(r *Router) { r.newGreenAPI = f } }
func WithWebhookFactory(f WebhookFactory) Option   { return func(r *Router) { r.newWebhook = f } }

// Router resolves a channel name to an adapter. Adapters are built once per
// kind; a kind without credentials gets a DevLogAdapter.
type Router struct {
	cfg      Config
	renderer Renderer
	log      *zap.Logger
	metrics  *metrics.Metrics

	newTwilio   TwilioFactory
	newGreenAPI GreenAPIFactory
	newWebhook  WebhookFactory

	mu       sync.Mutex
	adapters map[Kind]Adapter
}

func NewRouter(cfg Config, renderer Renderer, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Router {
	r := &Router{
		cfg:         cfg,
		renderer:    renderer,
		log:         log,
		metrics:     m,
		newTwilio:   client.NewTwilioClient,
		newGreenAPI: client.NewGreenAPIClient,
		newWebhook:  client.NewWebhookClient,
		adapters:    make(map[Kind]Adapter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Adapter(name string) (Adapter, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}

	a, err := r.build(kind)
	if err != nil {
		return nil, err
	}
	a = Instrument(kind, a, r.metrics)
	r.adapters[kind] = a
	return a, nil
}

func (r *Router) build(kind Kind) (Adapter, error) {
	switch kind {
	case WhatsApp:
		return r.buildWhatsApp()
	case Webhook:
		if r.cfg.WebhookURL == "" {
			r.log.Warn("webhook url not configured, using dev-log adapter")
			return NewDevLogAdapter(kind, r.log), nil
		}
		return NewWebhookAdapter(r.newWebhook(r.cfg.WebhookURL), r.log), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, kind)
}

func (r *Router) buildWhatsApp() (Adapter, error) {
	provider := strings.ToLower(r.cfg.WhatsAppProvider)
	if provider == "" {
		provider = ProviderTwilio
	}

	switch provider {
	case ProviderTwilio:
		if !r.cfg.Twilio.Complete() || r.cfg.TwilioFrom == "" {
			r.log.Warn("twilio credentials not configured, using dev-log adapter")
			return NewDevLogAdapter(WhatsApp, r.log), nil
		}
		c, err := r.newTwilio(r.cfg.TwilioBaseURL, r.cfg.Twilio, whatsAppAddress(r.cfg.TwilioFrom))
		if err != nil {
			return nil, fmt.Errorf("build twilio client: %w", err)
		}
		return NewWhatsAppAdapter(c, r.log), nil

	case ProviderGreenAPI:
		if r.cfg.GreenAPIInstanceID == "" || r.cfg.GreenAPIToken == "" {
			r.log.Warn("green api credentials not configured, using dev-log adapter")
			return NewDevLogAdapter(WhatsApp, r.log), nil
		}
		c, err := r.newGreenAPI(r.cfg.GreenAPIBaseURL, r.cfg.GreenAPIInstanceID, r.cfg.GreenAPIToken)
		if err != nil {
			return nil, fmt.Errorf("build green api client: %w", err)
		}
		return NewGreenAPIAdapter(c, r.renderer, r.log), nil
	}

	r.log.Warn("unknown whatsapp provider, using dev-log adapter", zap.String("provider", provider))
	return NewDevLogAdapter(WhatsApp, r.log), nil
}

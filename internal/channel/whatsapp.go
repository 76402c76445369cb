package channel

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/client"
)

type twilioSender interface {
	Send(ctx context.Context, msg client.TwilioMessage) (string, error)
}

// WhatsAppAdapter sends through the Twilio WhatsApp Business API.
type WhatsAppAdapter struct {
	client twilioSender
	log    *zap.Logger
}

func NewWhatsAppAdapter(c twilioSender, log *zap.Logger) *WhatsAppAdapter {
	return &WhatsAppAdapter{client: c, log: log}
}

func (a *WhatsAppAdapter) Name() string { return "twilio" }

func (a *WhatsAppAdapter) Send(ctx context.Context, req SendRequest) Result {
	to := whatsAppAddress(req.To)
	msg := client.TwilioMessage{To: to}
	if req.Templated() {
		msg.ContentSID = req.ContentTemplateID
		msg.ContentVariables = req.TemplateVariables
	} else {
		msg.Body = req.Body
	}

	sid, err := a.client.Send(ctx, msg)
	if err != nil {
		a.log.Error("whatsapp send failed", zap.String("to", to), zap.Error(err))
		return Failed(err)
	}

	a.log.Info("whatsapp sent",
		zap.String("sid", sid),
		zap.String("to", to),
		zap.String("content_sid", req.ContentTemplateID),
	)
	return Sent(sid)
}

func whatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

type greenAPISender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) (string, error)
}

// Renderer turns a provider template into plain text for transports
// without template support.
type Renderer interface {
	Render(contentTemplateID string, vars map[string]string) string
}

// GreenAPIAdapter sends plain-text WhatsApp messages through Green API.
// Templated requests are rendered to text first.
type GreenAPIAdapter struct {
	client   greenAPISender
	renderer Renderer
	log      *zap.Logger
}

func NewGreenAPIAdapter(c greenAPISender, r Renderer, log *zap.Logger) *GreenAPIAdapter {
	return &GreenAPIAdapter{client: c, renderer: r, log: log}
}

func (a *GreenAPIAdapter) Name() string { return "green_api" }

func (a *GreenAPIAdapter) Send(ctx context.Context, req SendRequest) Result {
	text := req.Body
	if req.Templated() {
		text = a.renderer.Render(req.ContentTemplateID, req.TemplateVariables)
	}
	if strings.TrimSpace(text) == "" {
		return Failed(errEmptyBody)
	}

	id, err := a.client.SendMessage(ctx, req.To, text)
	if err != nil {
		a.log.Error("green api send failed", zap.String("to", req.To), zap.Error(err))
		return Failed(err)
	}

	a.log.Info("green api sent", zap.String("id_message", id), zap.String("to", req.To))
	return Sent(id)
}

package channel

import (
	"context"

	"go.uber.org/zap"
)

type webhookSender interface {
	Send(ctx context.Context, phoneNumber, message string) (string, error)
	SendTemplate(ctx context.Context, phoneNumber, templateID string, vars map[string]string) (string, error)
}

type WebhookAdapter struct {
	client webhookSender
	log    *zap.Logger
}

func NewWebhookAdapter(c webhookSender, log *zap.Logger) *WebhookAdapter {
	return &WebhookAdapter{client: c, log: log}
}

func (a *WebhookAdapter) Name() string { return "webhook" }

func (a *WebhookAdapter) Send(ctx context.Context, req SendRequest) Result {
	var (
		id  string
		err error
	)
	if req.Templated() {
		id, err = a.client.SendTemplate(ctx, req.To, req.ContentTemplateID, req.TemplateVariables)
	} else {
		id, err = a.client.Send(ctx, req.To, req.Body)
	}
	if err != nil {
		a.log.Error("webhook send failed", zap.String("to", req.To), zap.Error(err))
		return Failed(err)
	}
	return Sent(id)
}

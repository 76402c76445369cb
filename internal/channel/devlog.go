package channel

import (
	"context"

	"go.uber.org/zap"
)

const DevLogProviderID = "dev-log"

// DevLogAdapter logs the payload instead of sending it. It performs no
// network I/O and always reports success.
type DevLogAdapter struct {
	kind Kind
	log  *zap.Logger
}

func NewDevLogAdapter(kind Kind, log *zap.Logger) *DevLogAdapter {
	return &DevLogAdapter{kind: kind, log: log}
}

func (a *DevLogAdapter) Name() string { return "dev_log" }

func (a *DevLogAdapter) Send(_ context.Context, req SendRequest) Result {
	if req.Templated() {
		a.log.Info("dev-log template (not sent)",
			zap.String("channel", string(a.kind)),
			zap.String("to", req.To),
			zap.String("content_template_id", req.ContentTemplateID),
			zap.Any("template_variables", req.TemplateVariables),
		)
	} else {
		a.log.Info("dev-log message (not sent)",
			zap.String("channel", string(a.kind)),
			zap.String("to", req.To),
			zap.String("body", req.Body),
		)
	}
	return Sent(DevLogProviderID)
}

// Package audit records who changed which message and how.
package audit

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/logger"
)

type Action string

const (
	ActionCreate          Action = "message.create"
	ActionEdit            Action = "message.edit"
	ActionRequestApproval Action = "message.request_approval"
	ActionApprove         Action = "message.approve"
	ActionReject          Action = "message.reject"
	ActionSchedule        Action = "message.schedule"
	ActionReschedule      Action = "message.reschedule"
	ActionCancel          Action = "message.cancel"
	ActionDeliver         Action = "message.deliver"
)

type Entry struct {
	Actor        string
	Action       Action
	ResourceType string
	ResourceID   string
	OldStatus    string
	NewStatus    string
	Details      map[string]string
	Success      bool
	Error        string
}

type Logger interface {
	LogAction(ctx context.Context, e Entry)
}

// ZapLogger writes audit entries to a dedicated named zap logger.
type ZapLogger struct {
	log *zap.Logger
}

func NewZapLogger(log *zap.Logger) *ZapLogger {
	return &ZapLogger{log: log.Named("audit")}
}

func (z *ZapLogger) LogAction(ctx context.Context, e Entry) {
	fields := []zap.Field{
		zap.String("actor", e.Actor),
		zap.String("action", string(e.Action)),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		zap.Bool("success", e.Success),
	}
	if e.OldStatus != "" || e.NewStatus != "" {
		fields = append(fields, zap.String("old_status", e.OldStatus), zap.String("new_status", e.NewStatus))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}

	l := logger.With(ctx, z.log)
	if e.Success {
		l.Info("audit", fields...)
		return
	}
	l.Warn("audit", fields...)
}

// Nop discards entries.
type Nop struct{}

func (Nop) LogAction(context.Context, Entry) {}

const previewRunes = 24

// Preview returns a short, digit-masked excerpt of message content that is
// safe to place in audit details.
func Preview(content string) string {
	masked := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return '#'
		}
		return r
	}, strings.TrimSpace(content))

	if utf8.RuneCountInString(masked) <= previewRunes {
		return masked
	}
	return string([]rune(masked)[:previewRunes]) + "..."
}

package channel

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/LeventeLantos/scheduled-messaging/internal/client"
)

const (
	ReasonTemplateRequired = "outside delivery window - template required"
	ReasonInvalidRecipient = "invalid recipient number"
	ReasonRateLimited      = "provider rate limited"
	ReasonTimeout          = "provider timeout"
	ReasonUnknownChannel   = "unknown channel"
)

var errEmptyBody = errors.New("empty message body")

// Twilio error codes with a known, actionable meaning.
const (
	twilioOutsideWindow = 63016
	twilioInvalidTo     = 21211
	twilioNotWhatsApp   = 21614
	twilioRateLimited   = 20429
)

// Classify maps a transport error to a failure reason an owner can act on.
// Unknown errors keep their text behind a generic prefix.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrUnknownChannel) {
		return ReasonUnknownChannel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var perr *client.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case twilioOutsideWindow:
			return ReasonTemplateRequired
		case twilioInvalidTo, twilioNotWhatsApp:
			return ReasonInvalidRecipient
		case twilioRateLimited:
			return ReasonRateLimited
		}
		if perr.StatusCode == http.StatusTooManyRequests {
			return ReasonRateLimited
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "outside the allowed window"), strings.Contains(lower, "24 hour"):
		return ReasonTemplateRequired
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return ReasonRateLimited
	}

	return "delivery failed: " + err.Error()
}

// Package channel provides the uniform send contract over delivery
// transports and the router that picks one per channel.
package channel

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	WhatsApp Kind = "whatsapp"
	Webhook  Kind = "webhook"
)

// Kinds is the closed set of supported channels.
var Kinds = []Kind{WhatsApp, Webhook}

var ErrUnknownChannel = errors.New("unknown channel")

func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (supported: %v)", ErrUnknownChannel, name, Kinds)
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

type SendRequest struct {
	To   string
	Body string
	// ContentTemplateID selects a provider-approved template; Body is then ignored.
	ContentTemplateID string
	TemplateVariables map[string]string
}

func (r SendRequest) Templated() bool {
	return r.ContentTemplateID != ""
}

type Result struct {
	Status     Status
	ProviderID string
	Error      string
	// Err keeps the transport error for classification.
	Err error
}

func Sent(providerID string) Result {
	return Result{Status: StatusSent, ProviderID: providerID}
}

func Failed(err error) Result {
	return Result{Status: StatusFailed, Error: err.Error(), Err: err}
}

func (r Result) OK() bool {
	return r.Status == StatusSent
}

// Adapter sends one message through one transport. Send never panics on
// provider errors; failures come back as a failed Result.
type Adapter interface {
	Name() string
	Send(ctx context.Context, req SendRequest) Result
}

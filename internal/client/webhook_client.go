package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient posts messages to a generic HTTP endpoint that answers 202
// with a messageId.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookRequest struct {
	PhoneNumber       string            `json:"phoneNumber"`
	Message           string            `json:"message,omitempty"`
	TemplateID        string            `json:"templateId,omitempty"`
	TemplateVariables map[string]string `json:"templateVariables,omitempty"`
}

type webhookResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (c *WebhookClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	return c.post(ctx, webhookRequest{PhoneNumber: phoneNumber, Message: message})
}

func (c *WebhookClient) SendTemplate(ctx context.Context, phoneNumber, templateID string, vars map[string]string) (string, error) {
	return c.post(ctx, webhookRequest{PhoneNumber: phoneNumber, TemplateID: templateID, TemplateVariables: vars})
}

func (c *WebhookClient) post(ctx context.Context, payload webhookRequest) (string, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", &ProviderError{
			Provider:   "webhook",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status code: %d body=%q", resp.StatusCode, string(body)),
		}
	}

	var wr webhookResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if wr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return wr.MessageID, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeneratorClient asks a text-generation service for draft content.
type GeneratorClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewGeneratorClient(url, apiKey, model string) *GeneratorClient {
	return &GeneratorClient{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type generateRequest struct {
	Model   string            `json:"model,omitempty"`
	Prompt  string            `json:"prompt"`
	Context map[string]string `json:"context,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *GeneratorClient) Model() string {
	return c.model
}

func (c *GeneratorClient) Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Context: genCtx})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator: unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	text := strings.TrimSpace(gr.Text)
	if text == "" {
		return "", fmt.Errorf("generator returned empty text body=%q", string(body))
	}
	return text, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const GreenAPIBaseURL = "https://api.green-api.com"

// GreenAPIClient sends plain-text WhatsApp messages through Green API.
// It has no template support.
type GreenAPIClient struct {
	baseURL    string
	instanceID string
	token      string
	client     *http.Client
}

func NewGreenAPIClient(baseURL, instanceID, token string) (*GreenAPIClient, error) {
	if instanceID == "" || token == "" {
		return nil, errors.New("green api requires an instance id and a token")
	}
	if baseURL == "" {
		baseURL = GreenAPIBaseURL
	}
	return &GreenAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// ChatID converts an E.164 number to a Green API chat id.
func ChatID(e164 string) string {
	return strings.TrimPrefix(e164, "+") + "@c.us"
}

type greenAPIRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type greenAPIResponse struct {
	IDMessage string `json:"idMessage"`
}

func (c *GreenAPIClient) SendMessage(ctx context.Context, phoneNumber, message string) (string, error) {
	if phoneNumber == "" {
		return "", errors.New("green api: empty phone number")
	}
	reqBody, err := json.Marshal(greenAPIRequest{ChatID: ChatID(phoneNumber), Message: message})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/waInstance%s/sendMessage/%s", c.baseURL, c.instanceID, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
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

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: "green_api", StatusCode: resp.StatusCode, Message: string(body)}
	}

	var gr greenAPIResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if gr.IDMessage == "" {
		return "", fmt.Errorf("missing idMessage in response body=%q", string(body))
	}
	return gr.IDMessage, nil
}

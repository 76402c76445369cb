package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const TwilioBaseURL = "https://api.twilio.com"

type TwilioCredentials struct {
	AccountSID string
	// APIKeySID and APIKeySecret are preferred over AuthToken when both are set.
	APIKeySID    string
	APIKeySecret string
	AuthToken    string
}

func (c TwilioCredentials) Complete() bool {
	if c.AccountSID == "" {
		return false
	}
	return (c.APIKeySID != "" && c.APIKeySecret != "") || c.AuthToken != ""
}

func (c TwilioCredentials) basicAuth() (user, pass string, err error) {
	switch {
	case c.APIKeySID != "" && c.APIKeySecret != "":
		return c.APIKeySID, c.APIKeySecret, nil
	case c.AuthToken != "":
		return c.AccountSID, c.AuthToken, nil
	}
	return "", "", errors.New("twilio requires an API key pair or an auth token")
}

// TwilioClient talks to the Twilio Programmable Messaging API.
type TwilioClient struct {
	baseURL string
	creds   TwilioCredentials
	from    string
	client  *http.Client
}

// NewTwilioClient builds a client sending from the given number. WhatsApp
// numbers carry the "whatsapp:" prefix.
func NewTwilioClient(baseURL string, creds TwilioCredentials, from string) (*TwilioClient, error) {
	if _, _, err := creds.basicAuth(); err != nil {
		return nil, err
	}
	if creds.AccountSID == "" {
		return nil, errors.New("twilio account sid is required")
	}
	if baseURL == "" {
		baseURL = TwilioBaseURL
	}
	return &TwilioClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		from:    from,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type TwilioMessage struct {
	To string
	// Body is ignored when ContentSID is set.
	Body             string
	ContentSID       string
	ContentVariables map[string]string
}

type twilioResponse struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	ErrorMsg  string `json:"error_message"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (c *TwilioClient) From() string {
	return c.from
}

func (c *TwilioClient) Send(ctx context.Context, msg TwilioMessage) (string, error) {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", msg.To)
	if msg.ContentSID != "" {
		form.Set("ContentSid", msg.ContentSID)
		if msg.ContentVariables != nil {
			vars, err := json.Marshal(msg.ContentVariables)
			if err != nil {
				return "", err
			}
			form.Set("ContentVariables", string(vars))
		}
	} else {
		form.Set("Body", msg.Body)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.creds.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	user, pass, _ := c.creds.basicAuth()
	req.SetBasicAuth(user, pass)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te twilioError
		if err := json.Unmarshal(body, &te); err != nil || te.Message == "" {
			return "", &ProviderError{Provider: "twilio", StatusCode: resp.StatusCode, Message: string(body)}
		}
		return "", &ProviderError{Provider: "twilio", StatusCode: resp.StatusCode, Code: te.Code, Message: te.Message}
	}

	var tr twilioResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if tr.ErrorCode != nil && *tr.ErrorCode != 0 {
		return "", &ProviderError{Provider: "twilio", StatusCode: resp.StatusCode, Code: *tr.ErrorCode, Message: tr.ErrorMsg}
	}
	if tr.SID == "" {
		return "", fmt.Errorf("missing sid in response body=%q", string(body))
	}
	return tr.SID, nil
}

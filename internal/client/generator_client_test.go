package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorClient_Generate(t *testing.T) {
	t.Parallel()

	var (
		auth string
		req  generateRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := ioReadAll(r)
		_ = json.Unmarshal(b, &req)
		_, _ = w.Write([]byte(`{"text":"  How did the exercise go?  "}`))
	}))
	defer srv.Close()

	c := NewGeneratorClient(srv.URL, "key", "model-x")
	text, err := c.Generate(context.Background(), "write a follow up", map[string]string{"topic": "breathing"})
	require.NoError(t, err)

	assert.Equal(t, "How did the exercise go?", text)
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "model-x", req.Model)
	assert.Equal(t, "write a follow up", req.Prompt)
	assert.Equal(t, "breathing", req.Context["topic"])
}

func TestGeneratorClient_EmptyText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	_, err := NewGeneratorClient(srv.URL, "", "").Generate(context.Background(), "p", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty text")
}

func TestGeneratorClient_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGeneratorClient(srv.URL, "", "").Generate(context.Background(), "p", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

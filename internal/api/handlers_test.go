package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
	"github.com/LeventeLantos/scheduled-messaging/internal/phone"
	"github.com/LeventeLantos/scheduled-messaging/internal/repo"
	"github.com/LeventeLantos/scheduled-messaging/internal/scheduler"
	"github.com/LeventeLantos/scheduled-messaging/internal/service"
	"github.com/LeventeLantos/scheduled-messaging/internal/template"
)

// fakeMessages only implements ListSent; other calls panic on the nil embed.
type fakeMessages struct {
	Messages

	gotLimit  int
	gotOffset int

	items []model.Message
	err   error
}

func (f *fakeMessages) ListSent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.items, f.err
}

func newTestServer(t *testing.T, m Messages) (*scheduler.Scheduler, http.Handler) {
	t.Helper()

	// Long interval so only the immediate tick happens (noop anyway).
	s, err := scheduler.New(time.Hour, func(context.Context) {}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	h := NewHandler(s, m, zap.NewNop())
	return s, Router(h, nil)
}

type lifecycleEnv struct {
	mux       http.Handler
	msgs      *repo.MemoryMessageRepo
	owner     uuid.UUID
	recipient uuid.UUID
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()

	msgs := repo.NewMemoryMessageRepo()
	recipients := repo.NewMemoryRecipientRepo()
	owner := uuid.New()
	rc := model.Recipient{OwnerID: owner, NameEncrypted: "n"}
	if err := recipients.Create(context.Background(), &rc); err != nil {
		t.Fatalf("create recipient: %v", err)
	}

	router := channel.NewRouter(channel.Config{}, template.Default(), zap.NewNop(), nil)
	svc := service.NewMessageService(msgs, recipients, router, phone.NewNormalizer("+972"), zap.NewNop())

	s, err := scheduler.New(time.Hour, func(context.Context) {}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	return &lifecycleEnv{
		mux:       Router(NewHandler(s, svc, zap.NewNop()), reg),
		msgs:      msgs,
		owner:     owner,
		recipient: rc.ID,
	}
}

func (e *lifecycleEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(OwnerHeader, e.owner.String())
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *lifecycleEnv) createDraft(t *testing.T) model.Message {
	t.Helper()

	rr := e.do(t, http.MethodPost, "/v1/messages", map[string]any{
		"recipientId":    e.recipient,
		"messageType":    "follow_up",
		"content":        "How did the exercise go?",
		"recipientPhone": "050-123-4567",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%q", rr.Code, rr.Body.String())
	}
	return decodeMessage(t, rr)
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) model.Message {
	t.Helper()

	var m model.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode message: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	s, mux := newTestServer(t, &fakeMessages{})
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	s, mux := newTestServer(t, &fakeMessages{})
	defer s.Stop()

	for _, step := range []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/v1/scheduler/status", false},
		{http.MethodPost, "/v1/scheduler/start", true},
		{http.MethodGet, "/v1/scheduler/status", true},
		{http.MethodPost, "/v1/scheduler/stop", false},
	} {
		req := httptest.NewRequest(step.method, step.path, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d body=%q", step.method, step.path, rr.Code, rr.Body.String())
		}
		body := decodeJSON(t, rr)
		if running, ok := body["running"].(bool); !ok || running != step.want {
			t.Fatalf("%s %s: expected running=%v, got %v", step.method, step.path, step.want, body)
		}
	}
}

func TestListSentMessages_DefaultsAndArgs(t *testing.T) {
	fm := &fakeMessages{
		items: []model.Message{
			{ID: uuid.New(), RecipientPhone: model.StringPtr("+361"), Content: "a", Status: model.Sent},
		},
	}

	s, mux := newTestServer(t, fm)
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/sent", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if fm.gotLimit != 50 || fm.gotOffset != 0 {
		t.Fatalf("expected limit=50 offset=0, got limit=%d offset=%d", fm.gotLimit, fm.gotOffset)
	}

	body := decodeJSON(t, rr)
	items, ok := body["items"].([]any)
	if !ok {
		t.Fatalf("expected items array, got %T %v", body["items"], body)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestListSentMessages_ParsesLimitOffset(t *testing.T) {
	fm := &fakeMessages{}
	s, mux := newTestServer(t, fm)
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/sent?limit=10&offset=5", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if fm.gotLimit != 10 || fm.gotOffset != 5 {
		t.Fatalf("expected limit=10 offset=5, got limit=%d offset=%d", fm.gotLimit, fm.gotOffset)
	}
}

func TestListSentMessages_InvalidLimitOffsetFallsBackToDefaults(t *testing.T) {
	fm := &fakeMessages{}
	s, mux := newTestServer(t, fm)
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/sent?limit=abc&offset=zzz", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if fm.gotLimit != 50 || fm.gotOffset != 0 {
		t.Fatalf("expected defaults limit=50 offset=0, got limit=%d offset=%d", fm.gotLimit, fm.gotOffset)
	}
}

func TestListSentMessages_StoreErrorReturns500(t *testing.T) {
	fm := &fakeMessages{err: errors.New("db down")}
	s, mux := newTestServer(t, fm)
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/sent", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "db down") {
		t.Fatalf("expected error body to contain store error, got %q", rr.Body.String())
	}
}

func TestRouterRoot(t *testing.T) {
	s, mux := newTestServer(t, &fakeMessages{})
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "scheduled-messaging" {
		t.Fatalf("expected body %q, got %q", "scheduled-messaging", got)
	}
}

func TestMessageRoutesRequireOwner(t *testing.T) {
	e := newLifecycleEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/pending", nil)
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestLifecycle_ScheduleEditCancel(t *testing.T) {
	e := newLifecycleEnv(t)
	m := e.createDraft(t)

	if m.Status != model.Draft || m.RecipientPhone == nil || *m.RecipientPhone != "+972501234567" {
		t.Fatalf("unexpected draft: %+v", m)
	}

	rr := e.do(t, http.MethodPost, "/v1/messages/"+m.ID.String()+"/send", map[string]any{
		"sendAt": "2099-01-01T10:00:00",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	scheduled := decodeMessage(t, rr)
	want := time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC)
	if scheduled.Status != model.Scheduled || scheduled.ScheduledSendAt == nil || !scheduled.ScheduledSendAt.Equal(want) {
		t.Fatalf("expected scheduled at %v, got %+v", want, scheduled)
	}

	rr = e.do(t, http.MethodPatch, "/v1/messages/"+m.ID.String()+"/schedule", map[string]any{
		"sendAt": "2099-01-02T10:00:00+02:00",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reschedule: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := decodeMessage(t, rr); !got.ScheduledSendAt.Equal(time.Date(2099, 1, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reschedule time %v", got.ScheduledSendAt)
	}

	rr = e.do(t, http.MethodPost, "/v1/messages/"+m.ID.String()+"/cancel", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/v1/messages/"+m.ID.String()+"/cancel", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second cancel: expected 409, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestLifecycle_SendNowThroughDevLog(t *testing.T) {
	e := newLifecycleEnv(t)
	m := e.createDraft(t)

	rr := e.do(t, http.MethodPost, "/v1/messages/"+m.ID.String()+"/send", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	sent := decodeMessage(t, rr)
	if sent.Status != model.Sent || sent.ProviderMessageID == nil || *sent.ProviderMessageID != channel.DevLogProviderID {
		t.Fatalf("expected sent through dev-log, got %+v", sent)
	}

	rr = e.do(t, http.MethodGet, "/v1/messages/"+m.ID.String(), nil)
	if rr.Code != http.StatusOK || decodeMessage(t, rr).Status != model.Sent {
		t.Fatalf("get: unexpected %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestLifecycle_ApproveRejectAndPending(t *testing.T) {
	e := newLifecycleEnv(t)
	a := e.createDraft(t)
	b := e.createDraft(t)

	rr := e.do(t, http.MethodGet, "/v1/messages/pending", nil)
	if items := decodeJSON(t, rr)["items"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(items))
	}

	if rr := e.do(t, http.MethodPost, "/v1/messages/"+a.ID.String()+"/submit", nil); rr.Code != http.StatusOK {
		t.Fatalf("submit: %d %q", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/v1/messages/"+a.ID.String()+"/approve", nil); rr.Code != http.StatusOK {
		t.Fatalf("approve: %d %q", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/v1/messages/"+a.ID.String()+"/deliver", nil); rr.Code != http.StatusOK {
		t.Fatalf("deliver: %d %q", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/v1/messages/"+b.ID.String()+"/reject", map[string]string{"reason": "too long"})
	if rr.Code != http.StatusOK {
		t.Fatalf("reject: %d %q", rr.Code, rr.Body.String())
	}
	if got := decodeMessage(t, rr); got.RejectionReason == nil || *got.RejectionReason != "too long" {
		t.Fatalf("expected rejection reason, got %+v", got)
	}

	if rr := e.do(t, http.MethodPost, "/v1/messages/"+b.ID.String()+"/approve", nil); rr.Code != http.StatusConflict {
		t.Fatalf("approve rejected: expected 409, got %d", rr.Code)
	}

	rr = e.do(t, http.MethodGet, "/v1/recipients/"+e.recipient.String()+"/messages", nil)
	if items := decodeJSON(t, rr)["items"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 history items, got %d", len(items))
	}
}

func TestOptionalBodies_ChunkedEmptyBody(t *testing.T) {
	e := newLifecycleEnv(t)
	send := e.createDraft(t)
	reject := e.createDraft(t)

	for _, path := range []string{
		"/v1/messages/" + send.ID.String() + "/send",
		"/v1/messages/" + reject.ID.String() + "/reject",
	} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
		req.ContentLength = -1
		req.Header.Set(OwnerHeader, e.owner.String())
		rr := httptest.NewRecorder()
		e.mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 for empty chunked body, got %d body=%q", path, rr.Code, rr.Body.String())
		}
	}

	rr := e.do(t, http.MethodPost, "/v1/messages/"+uuid.NewString()+"/send", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newLifecycleEnv(t)
	m := e.createDraft(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown message", http.MethodGet, "/v1/messages/" + uuid.NewString(), nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/messages/not-a-uuid", nil, http.StatusBadRequest},
		{"bad phone", http.MethodPost, "/v1/messages/" + m.ID.String() + "/send", map[string]string{"recipientPhone": "12"}, http.StatusUnprocessableEntity},
		{"empty edit", http.MethodPut, "/v1/messages/" + m.ID.String(), map[string]string{"content": " "}, http.StatusUnprocessableEntity},
		{"unknown recipient", http.MethodPost, "/v1/messages", map[string]any{"recipientId": uuid.New(), "content": "x"}, http.StatusUnprocessableEntity},
		{"unknown channel", http.MethodPost, "/v1/messages", map[string]any{"recipientId": e.recipient, "content": "x", "channel": "fax"}, http.StatusUnprocessableEntity},
		{"bad timestamp", http.MethodPost, "/v1/messages/" + m.ID.String() + "/send", map[string]string{"sendAt": "tomorrow"}, http.StatusBadRequest},
		{"cancel draft", http.MethodPost, "/v1/messages/" + m.ID.String() + "/cancel", nil, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(t, tc.method, tc.path, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%q", tc.want, rr.Code, rr.Body.String())
			}
			if _, ok := decodeJSON(t, rr)["error"]; !ok {
				t.Fatalf("expected error field in %q", rr.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newLifecycleEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "messaging_sweep_duration_seconds") {
		t.Fatalf("expected sweep histogram in metrics output")
	}
}

package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LeventeLantos/scheduled-messaging/internal/audit"
	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/crypto"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
	"github.com/LeventeLantos/scheduled-messaging/internal/phone"
	"github.com/LeventeLantos/scheduled-messaging/internal/repo"
	"github.com/LeventeLantos/scheduled-messaging/internal/service"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type spyAdapter struct {
	mu      sync.Mutex
	calls   []channel.SendRequest
	result  channel.Result
	started chan struct{}
	release chan struct{}
}

func newSpyAdapter() *spyAdapter {
	return &spyAdapter{result: channel.Sent("SM-test")}
}

func (a *spyAdapter) Name() string { return "spy" }

func (a *spyAdapter) Send(_ context.Context, req channel.SendRequest) channel.Result {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	started, release := a.started, a.release
	a.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return a.result
}

func (a *spyAdapter) Calls() []channel.SendRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]channel.SendRequest(nil), a.calls...)
}

type fakeRouter map[string]channel.Adapter

func (r fakeRouter) Adapter(name string) (channel.Adapter, error) {
	if _, err := channel.ParseKind(name); err != nil {
		return nil, err
	}
	a, ok := r[name]
	if !ok {
		return nil, channel.ErrUnknownChannel
	}
	return a, nil
}

type auditSpy struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *auditSpy) LogAction(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *auditSpy) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

type fixture struct {
	svc        *service.MessageService
	msgs       *repo.MemoryMessageRepo
	recipients *repo.MemoryRecipientRepo
	adapter    *spyAdapter
	audit      *auditSpy
	box        *crypto.Box
	owner      uuid.UUID
	recipient  model.Recipient
}

var (
	boxOnce sync.Once
	testBox *crypto.Box
)

func sharedBox(t *testing.T) *crypto.Box {
	t.Helper()
	boxOnce.Do(func() {
		b, err := crypto.NewBox("test-key", "test-salt")
		if err != nil {
			panic(err)
		}
		testBox = b
	})
	return testBox
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()

	f := &fixture{
		msgs:       repo.NewMemoryMessageRepo(),
		recipients: repo.NewMemoryRecipientRepo(),
		adapter:    newSpyAdapter(),
		audit:      &auditSpy{},
		box:        sharedBox(t),
		owner:      uuid.New(),
	}

	name, err := f.box.Encrypt("Dana")
	require.NoError(t, err)
	phoneEnc, err := f.box.Encrypt("050-123-4567")
	require.NoError(t, err)

	f.recipient = model.Recipient{OwnerID: f.owner, NameEncrypted: name, PhoneEncrypted: phoneEnc}
	require.NoError(t, f.recipients.Create(context.Background(), &f.recipient))

	base := []service.Option{
		service.WithCipher(f.box),
		service.WithAudit(f.audit),
		service.WithClock(func() time.Time { return testNow }),
	}
	f.svc = service.NewMessageService(
		f.msgs,
		f.recipients,
		fakeRouter{"whatsapp": f.adapter},
		phone.NewNormalizer("+972"),
		zaptest.NewLogger(t),
		append(base, opts...)...,
	)
	return f
}

// seed stores a message directly in the given status.
func (f *fixture) seed(t *testing.T, status model.Status, edit ...func(*model.Message)) model.Message {
	t.Helper()

	m := model.Message{
		OwnerID:        f.owner,
		RecipientID:    f.recipient.ID,
		Content:        "How did the breathing exercise go?",
		MessageType:    "follow_up",
		Status:         status,
		Channel:        "whatsapp",
		RecipientPhone: model.StringPtr("+972501234567"),
	}
	if status == model.Scheduled {
		m.ScheduledSendAt = model.TimePtr(testNow.Add(-time.Minute))
	}
	for _, fn := range edit {
		fn(&m)
	}
	require.NoError(t, f.msgs.Create(context.Background(), &m))
	return m
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) model.Message {
	t.Helper()

	m, err := f.msgs.Get(context.Background(), id)
	require.NoError(t, err)
	return m
}

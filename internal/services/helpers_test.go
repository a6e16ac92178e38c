package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/db"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handles *db.Handles
	store   *store.SQLStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	h, err := db.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	s, err := store.New(h.SQL)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, h.MigrateDB(&models.ReplyJob{}))
	return &testEnv{handles: h, store: s}
}

func (e *testEnv) tenant(t *testing.T, name, whatsapp string) models.TenantWithCredentials {
	t.Helper()
	ctx := context.Background()
	pub, err := e.store.CreateTenant(ctx, models.NewTenant{Name: name, Email: name + "@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	if whatsapp != "" {
		require.NoError(t, e.store.UpdateTenantMessaging(ctx, pub.ID, models.MessagingCredentials{
			WhatsAppNumber: whatsapp,
			AccountSID:     "AC" + name,
			AuthToken:      "token-" + name,
		}))
	}
	full, err := e.store.GetTenant(ctx, pub.ID)
	require.NoError(t, err)
	return full
}

// stubChatModel answers with a fixed reply and records what it was given.
type stubChatModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	inputs  [][]*schema.Message
	options []*model.Options
}

func (m *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, input)
	m.options = append(m.options, model.GetCommonOptions(nil, opts...))
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (m *stubChatModel) lastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

type sentMessage struct {
	From, To, Body string
	TenantID       int64
}

// fakeSender records provider calls. It serves as a twilio.Sender and as the service senders.
type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeSender) SendMessage(ctx context.Context, from, to, body string) (*twilio.MessageResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{From: from, To: to, Body: body})
	return &twilio.MessageResource{SID: "SM1", Status: "queued"}, nil
}

func (f *fakeSender) Send(ctx context.Context, to, body string, tenantID int64, from string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{From: from, To: to, Body: body, TenantID: tenantID})
	return nil
}

func (f *fakeSender) SendReply(ctx context.Context, to, body string, tenantID int64, from string) error {
	return f.Send(ctx, to, body, tenantID, from)
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type publishedEvent struct {
	Type           string
	TenantID       int64
	ConversationID int64
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, tenantID, conversationID int64, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, TenantID: tenantID, ConversationID: conversationID})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

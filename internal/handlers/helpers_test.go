package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/db"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/services"
	"concierge-whatsapp/internal/store"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

const testReply = "Avec plaisir, je m'en occupe."

type fixedModel struct{}

func (fixedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(testReply, nil), nil
}

func (fixedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

// blockingModel holds every generation until release is closed.
type blockingModel struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingModel() *blockingModel {
	return &blockingModel{started: make(chan struct{}), release: make(chan struct{})}
}

func (m *blockingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.once.Do(func() { close(m.started) })
	select {
	case <-m.release:
		return schema.AssistantMessage(testReply, nil), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *blockingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type sent struct {
	From, To, Body string
}

// providerStub stands in for the messaging REST client of every tenant.
type providerStub struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (p *providerStub) SendMessage(ctx context.Context, from, to, body string) (*twilio.MessageResource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.sent = append(p.sent, sent{From: from, To: to, Body: body})
	return &twilio.MessageResource{SID: "SM1", Status: "queued"}, nil
}

func (p *providerStub) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *providerStub) messages() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.sent...)
}

type memoryWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (w *memoryWriter) PutJSON(ctx context.Context, key string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[key] = data
	return nil
}

type testServer struct {
	store      *store.SQLStore
	auth       *services.AuthService
	dispatcher *services.ReplyDispatcher
	provider   *providerStub
	archive    *memoryWriter
	handler    http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	return newTestServerWithModel(t, opts, fixedModel{})
}

func newTestServerWithModel(t *testing.T, opts Options, cm model.BaseChatModel) *testServer {
	t.Helper()
	h, err := db.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	s, err := store.New(h.SQL)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, h.MigrateDB(&models.ReplyJob{}))

	provider := &providerStub{}
	outbound := services.NewOutboundSender(twilio.NewRegistry(), s, func(accountSID, authToken string) (twilio.Sender, error) {
		return provider, nil
	})
	auth := services.NewAuthService(s, services.NewSessionStore(time.Hour), services.AuthConfig{
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin123",
		ResetTokenTTL: time.Hour,
	})
	resolver := services.NewTenantResolver(s, false)
	generator := services.NewReplyGenerator(s, cm, services.GeneratorConfig{})
	dispatcher := services.NewReplyDispatcher(h.Gorm, s, generator, outbound, nil, services.DispatcherConfig{Workers: 1, QueueSize: 8})
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	writer := &memoryWriter{}
	srv := NewServer(Deps{
		Store:         s,
		Auth:          auth,
		Ingest:        services.NewIngestService(s, resolver, nil),
		Dispatcher:    dispatcher,
		Conversations: services.NewConversationService(s, outbound),
		Outbound:      outbound,
		Archive:       services.NewArchiveService(s, writer, nil),
		Onboarding:    services.NewOnboarding("whatsapp:+14155238886"),
	}, opts)

	return &testServer{
		store:      s,
		auth:       auth,
		dispatcher: dispatcher,
		provider:   provider,
		archive:    writer,
		handler:    srv.Router(),
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// tenant creates a tenant with password "secret123" and returns it with a session token.
func (ts *testServer) tenant(t *testing.T, name, whatsapp string) (models.TenantWithCredentials, string) {
	t.Helper()
	ctx := context.Background()
	pub, err := ts.auth.CreateTenant(ctx, name, name+"@example.com", "secret123")
	require.NoError(t, err)
	if whatsapp != "" {
		require.NoError(t, ts.store.UpdateTenantMessaging(ctx, pub.ID, models.MessagingCredentials{
			WhatsAppNumber: whatsapp,
			AccountSID:     "AC" + name,
			AuthToken:      "token-" + name,
		}))
	}
	token, _, err := ts.auth.TenantLogin(ctx, name+"@example.com", "secret123")
	require.NoError(t, err)
	full, err := ts.store.GetTenant(ctx, pub.ID)
	require.NoError(t, err)
	return full, token
}

func (ts *testServer) admin(t *testing.T) string {
	t.Helper()
	token, err := ts.auth.AdminLogin("admin@example.com", "admin123")
	require.NoError(t, err)
	return token
}

// conversation creates a routed conversation with one client message.
func (ts *testServer) conversation(t *testing.T, tenantID int64, phone string) models.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, _, err := ts.store.GetOrCreateConversation(ctx, phone, tenantID)
	require.NoError(t, err)
	require.NoError(t, ts.store.SetPhoneRouting(ctx, phone, tenantID))
	_, err = ts.store.AppendMessage(ctx, models.NewMessage{ConversationID: conv.ID, Sender: models.SenderClient, Body: "Bonjour"})
	require.NoError(t, err)
	return conv
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/api/admin/auth/login", "", map[string]string{"email": "admin@example.com", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/auth/login", "", map[string]string{"email": "ADMIN@example.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string            `json:"token"`
		Admin map[string]string `json:"admin"`
	}
	decodeBody(t, rec, &login)
	assert.Equal(t, "admin@example.com", login.Admin["email"])

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/admin/auth/check", login.Token, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/admin/auth/logout", login.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/admin/auth/check", login.Token, nil).Code)

	_, tenantToken := ts.tenant(t, "parc", "")
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/admin/tenants", tenantToken, nil).Code)
}

func TestAdminTenantLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/tenants", admin, map[string]string{"name": "Le Parc", "email": "parc@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/tenants", admin, map[string]string{
		"name":           "Le Parc",
		"email":          "parc@example.com",
		"password":       "parc123",
		"whatsappNumber": "whatsapp: 14155238886",
		"accountSid":     "ACparc",
		"authToken":      "token",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token\"")
	var created struct {
		Tenant models.TenantPublic `json:"tenant"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "whatsapp:+14155238886", created.Tenant.WhatsAppNumber)

	rec = ts.do(t, http.MethodPost, "/api/admin/tenants", admin, map[string]string{"name": "Bis", "email": "parc@example.com", "password": "parc123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/test/whatsapp-config", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg struct {
		Tenants            []tenantMessagingStatus `json:"tenants"`
		InitializedClients []int64                 `json:"initializedClients"`
	}
	decodeBody(t, rec, &cfg)
	require.Len(t, cfg.Tenants, 1)
	assert.True(t, cfg.Tenants[0].HasAuthToken)
	assert.True(t, cfg.Tenants[0].ClientInitialized)
	assert.Equal(t, []int64{created.Tenant.ID}, cfg.InitializedClients)
	assert.NotContains(t, rec.Body.String(), "ACparc")

	path := fmt.Sprintf("/api/admin/tenants/%d", created.Tenant.ID)
	rec = ts.do(t, http.MethodPut, path, admin, map[string]string{"name": "Résidence Le Parc", "email": "parc@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	_, _, err := ts.auth.TenantLogin(context.Background(), "parc@example.com", "parc123")
	assert.NoError(t, err, "an update without password keeps the password")

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, admin, nil).Code)

	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/test/whatsapp-config", admin, nil), &cfg)
	assert.Empty(t, cfg.InitializedClients)
}

func TestAdminUpdateWhatsAppKeepsToken(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	tenant, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")

	rec := ts.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/tenants/%d/whatsapp", tenant.ID), admin, map[string]string{
		"whatsappNumber": "33123456789",
		"accountSid":     "ACnew",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ClientInitialized bool `json:"clientInitialized"`
	}
	decodeBody(t, rec, &body)
	assert.True(t, body.ClientInitialized)

	got, err := ts.store.GetTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+33123456789", got.WhatsAppNumber)
	assert.Equal(t, "ACnew", got.TwilioAccountSID)
	assert.Equal(t, "token-parc", got.TwilioAuthToken)
}

func TestPasswordResetThroughAPI(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	tenant, session := ts.tenant(t, "parc", "")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/tenants/%d/reset-token", tenant.ID), admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	decodeBody(t, rec, &issued)
	require.NotEmpty(t, issued.Token)
	_, err := time.Parse(time.RFC3339, issued.ExpiresAt)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/auth/password-reset", "", map[string]string{"token": "wrong", "password": "nouveau123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/auth/password-reset", "", map[string]string{"token": issued.Token, "password": "nouveau123"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/auth/me", session, nil).Code)
	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "parc@example.com", "password": "nouveau123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminConversations(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	parc, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")
	jardins, _ := ts.tenant(t, "jardins", "")
	conv := ts.conversation(t, parc.ID, "whatsapp:+33611111111")
	ts.conversation(t, jardins.ID, "whatsapp:+33622222222")

	var convs []models.ConversationSummary
	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/conversations", admin, nil), &convs)
	assert.Len(t, convs, 2)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/conversations/%d/send", conv.ID), admin, map[string]string{"message": "Bonjour de l'équipe"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.provider.messages(), 1)
	assert.Equal(t, "whatsapp:+14155238886", ts.provider.messages()[0].From)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/conversations/%d/auto-reply", conv.ID), admin, map[string]bool{"autoReply": false})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/admin/conversations/9999/messages", admin, nil).Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/statistics?tenantId=%d", jardins.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.Statistics
	decodeBody(t, rec, &st)
	assert.Equal(t, int64(1), st.TotalConversations)

	rec = ts.do(t, http.MethodDelete, "/api/admin/conversations", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset struct {
		Archived      bool   `json:"archived"`
		ArchiveKey    string `json:"archiveKey"`
		Conversations int    `json:"conversations"`
	}
	decodeBody(t, rec, &reset)
	assert.True(t, reset.Archived)
	assert.Equal(t, 2, reset.Conversations)
	assert.Contains(t, ts.archive.objects, reset.ArchiveKey)

	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/conversations", admin, nil), &convs)
	assert.Empty(t, convs)
}

func TestAdminRoutingAndTestConversation(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	parc, _ := ts.tenant(t, "parc", "")

	rec := ts.do(t, http.MethodPost, "/api/admin/phone-routing", admin, map[string]interface{}{"phone": "33611111111", "tenantId": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/admin/phone-routing", admin, map[string]interface{}{"phone": "33611111111", "tenantId": parc.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var routes []models.PhoneRouting
	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/phone-routing", admin, nil), &routes)
	require.Len(t, routes, 1)
	assert.Equal(t, "whatsapp:+33611111111", routes[0].Phone)
	assert.Equal(t, "parc", routes[0].TenantName)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/admin/phone-routing/whatsapp:+33611111111", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/admin/phone-routing?phone=33611111111", admin, nil).Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/test-conversation", admin, map[string]interface{}{"tenantId": parc.ID, "phone": "+33 6 99", "message": "Test"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, parc.ID, created.Conversation.TenantID)
}

func TestAdminFAQsAndFeatureRequests(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	parc, _ := ts.tenant(t, "parc", "")

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/admin/faqs", admin, map[string]string{"question": "q", "answer": "a"}).Code)
	rec := ts.do(t, http.MethodPost, "/api/admin/faqs", admin, map[string]interface{}{"tenantId": parc.ID, "question": "Parking ?", "answer": "Niveau -1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var faq models.FAQ
	decodeBody(t, rec, &faq)
	assert.Equal(t, parc.ID, faq.TenantID)

	var faqs []models.FAQ
	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/faqs", admin, nil), &faqs)
	assert.Len(t, faqs, 1)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/faqs/%d", faq.ID), admin, nil).Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/feature-requests", admin, map[string]string{"title": "Multi-langue", "priority": "high"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var fr models.FeatureRequest
	decodeBody(t, rec, &fr)
	assert.Nil(t, fr.TenantID)

	path := fmt.Sprintf("/api/admin/feature-requests/%d", fr.ID)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPatch, path, admin, map[string]string{"status": "done"}).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, path, admin, map[string]string{"status": "in_progress"}).Code)

	var frs []models.FeatureRequest
	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/feature-requests", admin, nil), &frs)
	require.Len(t, frs, 1)
	assert.Equal(t, models.FeatureStatusInProgress, frs[0].Status)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, admin, nil).Code)
}

func TestOnboardingQR(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	tenant, _ := ts.tenant(t, "parc", "")
	path := fmt.Sprintf("/api/admin/tenants/%d", tenant.ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, path+"/onboarding-qr", admin, nil).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, path+"/sandbox", admin, map[string]string{"sandboxJoinCode": "join happy-tiger"}).Code)

	rec := ts.do(t, http.MethodGet, path+"/onboarding-qr", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var qr map[string]string
	decodeBody(t, rec, &qr)
	assert.Equal(t, "https://wa.me/14155238886?text=join%20happy-tiger", qr["joinUrl"])
	assert.True(t, strings.HasPrefix(qr["qrCode"], "data:image/png;base64,"))

	rec = ts.do(t, http.MethodGet, path+"/onboarding-qr?format=png", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestJobEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.admin(t)
	tenant, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")
	conv := ts.conversation(t, tenant.ID, "whatsapp:+33611111111")

	job, err := ts.dispatcher.Enqueue(context.Background(), services.ReplyRequest{
		TenantID:       tenant.ID,
		ConversationID: conv.ID,
		ClientPhone:    conv.Phone,
		ClientMessage:  "Bonjour",
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := ts.dispatcher.Get(context.Background(), job.ID)
		return err == nil && j.Done()
	}, 5*time.Second, 20*time.Millisecond)

	rec := ts.do(t, http.MethodGet, "/api/admin/jobs/status", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st services.DispatcherStatus
	decodeBody(t, rec, &st)
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Workers)

	var jobs []models.ReplyJob
	decodeBody(t, ts.do(t, http.MethodGet, "/api/admin/jobs?status=sent", admin, nil), &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, testReply, jobs[0].Reply)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/admin/jobs?limit=-1", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/admin/jobs/9999", admin, nil).Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/jobs/%d/retry", job.ID), admin, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return len(ts.provider.messages()) == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestSetupEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/api/setup/tenant", "", map[string]string{"name": "Le Parc", "email": "parc@example.com", "password": "parc123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/setup/tenant", "", map[string]string{"name": "Autre", "email": "autre@example.com", "password": "autre123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/setup/seed", "", nil).Code)
}

func TestSetupSeed(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/api/setup/seed", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Seeded services.SeedSummary `json:"seeded"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Seeded.Tenants)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "parc@conciergerie.fr", "password": "parc123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t, Options{CORSOrigins: []string{"https://dashboard.example.com"}})

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "connected", health["database"])
	assert.Equal(t, "sqlite", health["backend"])

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "concierge_http_requests_total")

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	out := httptest.NewRecorder()
	ts.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)
	assert.Equal(t, "https://dashboard.example.com", out.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	out = httptest.NewRecorder()
	ts.handler.ServeHTTP(out, req)
	assert.Empty(t, out.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/nope", "", nil).Code)
}

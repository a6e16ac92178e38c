package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound(from, to, body string) url.Values {
	return url.Values{
		"From":       {from},
		"To":         {to},
		"Body":       {body},
		"MessageSid": {"SM" + strings.Repeat("0", 32)},
	}
}

// sign reproduces the provider's webhook signature: HMAC-SHA1 over the URL followed by
// every parameter name and value sorted by name, base64 encoded.
func sign(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(ts *testServer, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(twilio.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookStoresAndReplies(t *testing.T) {
	ts := newTestServer(t, Options{})
	tenant, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")

	rec := postWebhook(ts, inbound("whatsapp: 33612345678", "whatsapp:+14155238886", "Bonjour, un taxi ?"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<Response></Response>", rec.Body.String())

	require.Eventually(t, func() bool { return len(ts.provider.messages()) == 1 }, 5*time.Second, 20*time.Millisecond)
	msg := ts.provider.messages()[0]
	assert.Equal(t, "whatsapp:+33612345678", msg.To)
	assert.Equal(t, "whatsapp:+14155238886", msg.From)
	assert.Equal(t, testReply, msg.Body)

	convs, err := ts.store.ListConversations(context.Background(), &tenant.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "whatsapp:+33612345678", convs[0].Phone)

	msgs, err := ts.store.ListMessages(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].IsAI)
	assert.True(t, msgs[1].IsAI)
	assert.Equal(t, testReply, msgs[1].Body)
}

func TestWebhookHonorsAutoReplyOff(t *testing.T) {
	ts := newTestServer(t, Options{})
	tenant, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")
	conv := ts.conversation(t, tenant.ID, "whatsapp:+33612345678")
	require.NoError(t, ts.store.SetAutoReply(context.Background(), conv.ID, false))

	rec := postWebhook(ts, inbound("whatsapp:+33612345678", "whatsapp:+14155238886", "Merci"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	jobs, err := ts.dispatcher.List(context.Background(), services.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	msgs, err := ts.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Empty(t, ts.provider.messages())
}

func TestWebhookAcknowledgesUnroutable(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := postWebhook(ts, inbound("whatsapp:+33612345678", "whatsapp:+14155238886", "Allo"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<Response></Response>", rec.Body.String())

	rec = postWebhook(ts, inbound("", "whatsapp:+14155238886", "Allo"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookSignature(t *testing.T) {
	ts := newTestServer(t, Options{WebhookAuthToken: "hook-secret", PublicBaseURL: "https://concierge.example.com/"})
	ts.tenant(t, "parc", "whatsapp:+14155238886")
	form := inbound("whatsapp:+33612345678", "whatsapp:+14155238886", "Bonjour")

	rec := postWebhook(ts, form, "bogus")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postWebhook(ts, form, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sig := sign("hook-secret", "https://concierge.example.com/webhook/whatsapp", form)
	rec = postWebhook(ts, form, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAcknowledgesBeforeGenerating(t *testing.T) {
	cm := newBlockingModel()
	ts := newTestServerWithModel(t, Options{}, cm)
	t.Cleanup(func() { close(cm.release) })
	ts.tenant(t, "parc", "whatsapp:+14155238886")

	rec := postWebhook(ts, inbound("whatsapp:+33612345678", "whatsapp:+14155238886", "Un taxi pour 18h ?"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<Response></Response>", rec.Body.String())

	select {
	case <-cm.started:
	case <-time.After(5 * time.Second):
		t.Fatal("reply generation never started")
	}
	assert.Empty(t, ts.provider.messages())
	jobs, err := ts.dispatcher.List(context.Background(), services.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Done())
}

func TestWebhookStorageFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.tenant(t, "parc", "whatsapp:+14155238886")
	require.NoError(t, ts.store.DB().Close())

	rec := postWebhook(ts, inbound("whatsapp:+33612345678", "whatsapp:+14155238886", "Bonjour"), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, ts.provider.messages())
}

func TestWebhookCanonicalizesDoubledPrefix(t *testing.T) {
	ts := newTestServer(t, Options{})
	tenant, _ := ts.tenant(t, "parc", "whatsapp:+14155238886")

	rec := postWebhook(ts, inbound("WhatsApp:whatsapp:+33612345678", "whatsapp:+14155238886", "Bonjour"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool { return len(ts.provider.messages()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "whatsapp:+33612345678", ts.provider.messages()[0].To)

	convs, err := ts.store.ListConversations(context.Background(), &tenant.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "whatsapp:+33612345678", convs[0].Phone)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.tenant(t, "parc", "whatsapp:+14155238886")

	rec := postWebhook(ts, inbound("whatsapp:+33612345678", "whatsapp:+14155238886", strings.Repeat("a", maxWebhookBody)), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	convs, err := ts.store.ListConversations(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

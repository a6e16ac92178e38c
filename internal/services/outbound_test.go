package services

import (
	"context"
	"errors"
	"testing"

	"concierge-whatsapp/internal/adapters/twilio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFactory hands out one shared fake client and counts constructions.
type countingFactory struct {
	client *fakeSender
	built  []string
}

func (f *countingFactory) build(accountSID, authToken string) (twilio.Sender, error) {
	f.built = append(f.built, accountSID)
	return f.client, nil
}

func TestInitClientsRegistersConfiguredTenants(t *testing.T) {
	env := newTestEnv(t)
	configured := env.tenant(t, "parc", "whatsapp:+14155238886")
	bare := env.tenant(t, "jardins", "")

	f := &countingFactory{client: &fakeSender{}}
	s := NewOutboundSender(twilio.NewRegistry(), env.store, f.build)
	require.NoError(t, s.InitClients(context.Background()))

	assert.Equal(t, []int64{configured.ID}, s.Registry().Tenants())
	_, ok := s.Registry().Get(bare.ID)
	assert.False(t, ok)
}

func TestSendUsesRegisteredClient(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.tenant(t, "parc", "whatsapp:+14155238886")
	client := &fakeSender{}
	reg := twilio.NewRegistry()
	reg.Register(tenant.ID, client, "whatsapp:+14155238886")

	f := &countingFactory{client: &fakeSender{}}
	s := NewOutboundSender(reg, env.store, f.build)
	require.NoError(t, s.Send(context.Background(), "33612345678", "Bonjour", tenant.ID, ""))

	sent := client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "whatsapp:+33612345678", sent[0].To)
	assert.Equal(t, "whatsapp:+14155238886", sent[0].From)
	assert.Empty(t, f.built)
}

func TestSendBuildsClientLazily(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.tenant(t, "parc", "whatsapp:+14155238886")
	f := &countingFactory{client: &fakeSender{}}
	s := NewOutboundSender(twilio.NewRegistry(), env.store, f.build)

	require.NoError(t, s.SendReply(context.Background(), "whatsapp:+33612345678", "un", tenant.ID, tenant.WhatsAppNumber))
	require.NoError(t, s.SendReply(context.Background(), "whatsapp:+33612345678", "deux", tenant.ID, tenant.WhatsAppNumber))

	assert.Equal(t, []string{"ACparc"}, f.built)
	assert.Len(t, f.client.messages(), 2)
}

func TestSendFallsBackToDefaultClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.tenant(t, "parc", "")
	f := &countingFactory{client: &fakeSender{}}
	reg := twilio.NewRegistry()
	s := NewOutboundSender(reg, env.store, f.build)

	err := s.Send(ctx, "whatsapp:+33612345678", "x", tenant.ID, "")
	assert.ErrorIs(t, err, ErrNoProviderClient)

	def := &fakeSender{}
	reg.SetDefault(def, "whatsapp:+14155238886")
	require.NoError(t, s.Send(ctx, "whatsapp:+33612345678", "x", tenant.ID, ""))
	sent := def.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "whatsapp:+14155238886", sent[0].From)
	assert.Empty(t, f.built)
}

func TestSendReturnsProviderError(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.tenant(t, "parc", "whatsapp:+14155238886")
	apiErr := &twilio.APIError{Code: 21211, Message: "invalid To", HTTPStatus: 400}
	client := &fakeSender{err: apiErr}
	reg := twilio.NewRegistry()
	reg.Register(tenant.ID, client, tenant.WhatsAppNumber)
	s := NewOutboundSender(reg, env.store, (&countingFactory{}).build)

	err := s.Send(context.Background(), "whatsapp:+33612345678", "x", tenant.ID, "")
	var got *twilio.APIError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 21211, got.Code)
}

func TestRegisterRemovesIncompleteTenant(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.tenant(t, "parc", "whatsapp:+14155238886")
	f := &countingFactory{client: &fakeSender{}}
	s := NewOutboundSender(twilio.NewRegistry(), env.store, f.build)

	require.NoError(t, s.Register(tenant))
	_, ok := s.Registry().Get(tenant.ID)
	require.True(t, ok)

	tenant.TwilioAuthToken = ""
	require.NoError(t, s.Register(tenant))
	_, ok = s.Registry().Get(tenant.ID)
	assert.False(t, ok)
}

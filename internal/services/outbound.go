package services

import (
	"context"
	"fmt"

	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/metrics"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/pkg/phone"

	"github.com/rs/zerolog/log"
)

// Send origins, used as a metrics label.
const (
	OriginAI    = "ai"
	OriginHuman = "human"
)

// ClientFactory builds a provider client from account credentials.
type ClientFactory func(accountSID, authToken string) (twilio.Sender, error)

// TwilioClientFactory returns a factory for the real REST API.
func TwilioClientFactory(baseURL string) ClientFactory {
	return func(accountSID, authToken string) (twilio.Sender, error) {
		return twilio.NewClient(baseURL, accountSID, authToken)
	}
}

// TenantLister reads tenants for client registration.
type TenantLister interface {
	GetTenant(ctx context.Context, id int64) (models.TenantWithCredentials, error)
	ListTenantsWithCredentials(ctx context.Context) ([]models.TenantWithCredentials, error)
}

// OutboundSender delivers messages through the tenant's provider client.
type OutboundSender struct {
	registry  *twilio.Registry
	tenants   TenantLister
	newClient ClientFactory
}

func NewOutboundSender(registry *twilio.Registry, tenants TenantLister, factory ClientFactory) *OutboundSender {
	if registry == nil || tenants == nil || factory == nil {
		log.Fatal().Msg("OutboundSender requires a registry, a tenant store and a client factory")
	}
	return &OutboundSender{registry: registry, tenants: tenants, newClient: factory}
}

// Registry exposes the client registry for diagnostics.
func (s *OutboundSender) Registry() *twilio.Registry {
	return s.registry
}

// InitClients registers every tenant with complete credentials. Individual failures are logged.
func (s *OutboundSender) InitClients(ctx context.Context) error {
	tenants, err := s.tenants.ListTenantsWithCredentials(ctx)
	if err != nil {
		return fmt.Errorf("list tenants for client init: %w", err)
	}
	registered := 0
	for _, t := range tenants {
		if !t.MessagingConfigured() {
			continue
		}
		if err := s.Register(t); err != nil {
			log.Error().Err(err).Int64("tenantID", t.ID).Msg("Failed to initialize messaging client")
			continue
		}
		registered++
	}
	log.Info().Int("registered", registered).Int("tenants", len(tenants)).Msg("Messaging clients initialized")
	return nil
}

// Register builds and installs the client of a tenant. Tenants without complete credentials
// are removed from the registry.
func (s *OutboundSender) Register(t models.TenantWithCredentials) error {
	if !t.MessagingConfigured() {
		s.registry.Remove(t.ID)
		return nil
	}
	client, err := s.newClient(t.TwilioAccountSID, t.TwilioAuthToken)
	if err != nil {
		return err
	}
	s.registry.Register(t.ID, client, phone.Canonical(t.WhatsAppNumber))
	log.Info().Int64("tenantID", t.ID).Str("from", t.WhatsAppNumber).Msg("Messaging client registered")
	return nil
}

// Send canonicalizes to, finds or lazily builds the tenant's client and performs exactly one
// provider call. An empty from uses the registered from-number.
func (s *OutboundSender) Send(ctx context.Context, to, body string, tenantID int64, from string) error {
	return s.send(ctx, to, body, tenantID, from, OriginHuman)
}

func (s *OutboundSender) send(ctx context.Context, to, body string, tenantID int64, from, origin string) error {
	to = phone.Canonical(to)
	entry, err := s.clientFor(ctx, tenantID)
	if err != nil {
		metrics.OutboundSends.WithLabelValues(origin, "no_client").Inc()
		return err
	}
	if from == "" {
		from = entry.FromNumber
	}
	from = phone.Canonical(from)
	if from == "" {
		metrics.OutboundSends.WithLabelValues(origin, "no_client").Inc()
		return ErrMessagingNotConfigured
	}

	if _, err := entry.Client.SendMessage(ctx, from, to, body); err != nil {
		metrics.OutboundSends.WithLabelValues(origin, "error").Inc()
		return fmt.Errorf("send to %s: %w", to, err)
	}
	metrics.OutboundSends.WithLabelValues(origin, "ok").Inc()
	return nil
}

func (s *OutboundSender) clientFor(ctx context.Context, tenantID int64) (twilio.Entry, error) {
	if e, ok := s.registry.Get(tenantID); ok {
		return e, nil
	}

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err == nil && t.MessagingConfigured() {
		if err := s.Register(t); err != nil {
			log.Error().Err(err).Int64("tenantID", tenantID).Msg("Lazy messaging client init failed")
		} else if e, ok := s.registry.Get(tenantID); ok {
			return e, nil
		}
	}

	if d, ok := s.registry.Default(); ok {
		if err == nil && t.WhatsAppNumber != "" {
			d.FromNumber = t.WhatsAppNumber
		}
		return d, nil
	}
	return twilio.Entry{}, ErrNoProviderClient
}

// SendReply delivers an automated reply. It is counted separately from human sends.
func (s *OutboundSender) SendReply(ctx context.Context, to, body string, tenantID int64, from string) error {
	return s.send(ctx, to, body, tenantID, from, OriginAI)
}

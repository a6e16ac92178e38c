// Package handlers is the HTTP surface: the provider webhook, the tenant and admin
// dashboards' REST API, health and metrics.
package handlers

import (
	"time"

	"concierge-whatsapp/internal/services"
	"concierge-whatsapp/internal/store"

	"github.com/rs/zerolog/log"
)

// Options carries the HTTP-level settings.
type Options struct {
	// WebhookAuthToken enables provider signature checks when set.
	WebhookAuthToken string
	// PublicBaseURL is the externally visible origin used to verify signatures.
	PublicBaseURL string
	CORSOrigins   []string
}

// Deps are the services the handlers call. Archive and Onboarding may be nil.
type Deps struct {
	Store         store.Store
	Auth          *services.AuthService
	Ingest        *services.IngestService
	Dispatcher    *services.ReplyDispatcher
	Conversations *services.ConversationService
	Outbound      *services.OutboundSender
	Archive       *services.ArchiveService
	Onboarding    *services.Onboarding
}

// Server holds the handler dependencies.
type Server struct {
	store         store.Store
	auth          *services.AuthService
	ingest        *services.IngestService
	dispatcher    *services.ReplyDispatcher
	conversations *services.ConversationService
	outbound      *services.OutboundSender
	archive       *services.ArchiveService
	onboarding    *services.Onboarding
	opts          Options
	started       time.Time
}

func NewServer(d Deps, opts Options) *Server {
	if d.Store == nil {
		log.Fatal().Msg("Store cannot be nil for Server")
	}
	if d.Auth == nil {
		log.Fatal().Msg("AuthService cannot be nil for Server")
	}
	if d.Ingest == nil || d.Dispatcher == nil {
		log.Fatal().Msg("Ingest and reply dispatcher cannot be nil for Server")
	}
	if d.Conversations == nil || d.Outbound == nil {
		log.Fatal().Msg("ConversationService and OutboundSender cannot be nil for Server")
	}
	if d.Archive == nil {
		d.Archive = services.NewArchiveService(d.Store, nil, nil)
	}
	if d.Onboarding == nil {
		d.Onboarding = services.NewOnboarding("")
	}
	if opts.WebhookAuthToken == "" {
		log.Warn().Msg("TWILIO_WEBHOOK_AUTH_TOKEN is not set, webhook signatures will not be verified")
	}
	return &Server{
		store:         d.Store,
		auth:          d.Auth,
		ingest:        d.Ingest,
		dispatcher:    d.Dispatcher,
		conversations: d.Conversations,
		outbound:      d.Outbound,
		archive:       d.Archive,
		onboarding:    d.Onboarding,
		opts:          opts,
		started:       time.Now(),
	}
}

type ctxKey int

const (
	tenantKey ctxKey = iota
	sessionKey
)

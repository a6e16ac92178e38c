package handlers

import (
	"context"
	"net/http"
	"time"

	"concierge-whatsapp/internal/services"

	"github.com/rs/zerolog/log"
)

// Health pings the database. It answers 503 when the database is unreachable.
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status, database, code := "ok", "connected", http.StatusOK
		if err := s.store.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("Health check failed to reach the database")
			status, database, code = "error", "disconnected", http.StatusServiceUnavailable
		}
		s.respondWithJSON(w, code, map[string]interface{}{
			"status":     status,
			"database":   database,
			"backend":    s.store.Backend(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"uptime":     int64(time.Since(s.started).Seconds()),
			"queueDepth": s.dispatcher.QueueDepth(),
		})
	}
}

// SetupTenant creates the first tenant. It is closed once any tenant exists.
func (s *Server) SetupTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.store.CountTenants(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if n > 0 {
			s.fail(w, r, services.ErrSetupClosed)
			return
		}
		var body tenantRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		t, err := s.auth.CreateTenant(r.Context(), body.Name, body.Email, body.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		log.Info().Int64("tenantID", t.ID).Msg("First tenant created through setup")
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{"tenant": t})
	}
}

// SetupSeed loads the demo dataset into an empty database.
func (s *Server) SetupSeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := services.Seed(r.Context(), s.store)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{"seeded": sum})
	}
}

type tenantMessagingStatus struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	WhatsAppNumber    string `json:"whatsappNumber"`
	HasWhatsAppNumber bool   `json:"hasWhatsAppNumber"`
	HasAccountSID     bool   `json:"hasAccountSid"`
	HasAuthToken      bool   `json:"hasAuthToken"`
	ClientInitialized bool   `json:"clientInitialized"`
}

// WhatsAppConfig reports which tenants can send, without exposing any secret.
func (s *Server) WhatsAppConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := s.store.ListTenantsWithCredentials(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]tenantMessagingStatus, 0, len(tenants))
		for _, t := range tenants {
			out = append(out, tenantMessagingStatus{
				ID:                t.ID,
				Name:              t.Name,
				WhatsAppNumber:    t.WhatsAppNumber,
				HasWhatsAppNumber: t.WhatsAppNumber != "",
				HasAccountSID:     t.TwilioAccountSID != "",
				HasAuthToken:      t.TwilioAuthToken != "",
				ClientInitialized: s.clientRegistered(t.ID),
			})
		}
		_, hasDefault := s.outbound.Registry().Default()
		s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"tenants":            out,
			"initializedClients": s.outbound.Registry().Tenants(),
			"defaultClient":      hasDefault,
		})
	}
}

// ArchiveTranscripts exports every conversation to object storage without deleting anything.
func (s *Server) ArchiveTranscripts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.archive.Enabled() {
			s.respondError(w, http.StatusBadRequest, "transcript archive is not configured")
			return
		}
		res, err := s.archive.Archive(r.Context(), "manual")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{
			"archiveKey":    res.Key,
			"conversations": res.Conversations,
			"messages":      res.Messages,
		})
	}
}

func (s *Server) NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "route not found")
	}
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/pkg/phone"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type tenantRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	models.MessagingCredentials
}

func (s *Server) ListTenants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := s.store.ListTenants(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, tenants)
	}
}

func (s *Server) GetTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		t, err := s.store.GetTenant(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, t.TenantPublic)
	}
}

// CreateTenant creates a tenant and, when messaging credentials are included, registers its client.
func (s *Server) CreateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tenantRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, err := s.auth.CreateTenant(r.Context(), body.Name, body.Email, body.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if body.WhatsAppNumber != "" {
			t, err := s.applyMessaging(r, created.ID, body.MessagingCredentials)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			created = t.TenantPublic
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{"tenant": created})
	}
}

// UpdateTenant changes name and email, and the password when a new one is given.
func (s *Server) UpdateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		var body tenantRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.auth.UpdateTenant(r.Context(), id, body.Name, body.Email, body.Password); err != nil {
			s.fail(w, r, err)
			return
		}
		t, err := s.store.GetTenant(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"tenant": t.TenantPublic})
	}
}

// DeleteTenant removes the tenant with its data, its client and its sessions.
func (s *Server) DeleteTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		if err := s.store.DeleteTenant(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		s.outbound.Registry().Remove(id)
		closed := s.auth.Sessions().DeleteTenant(id)
		log.Info().Int64("tenantID", id).Int("sessions", closed).Msg("Tenant deleted")
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

// IssueResetToken returns a single-use password reset token for the tenant.
func (s *Server) IssueResetToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		token, expiresAt, err := s.auth.IssueResetToken(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{
			"token":     token,
			"expiresAt": expiresAt.Format(time.RFC3339),
		})
	}
}

func (s *Server) UpdateSandbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		var body struct {
			SandboxJoinCode string `json:"sandboxJoinCode"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		code := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body.SandboxJoinCode), "join "))
		if err := s.store.UpdateSandboxJoinCode(r.Context(), id, code); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"sandboxJoinCode": code})
	}
}

// UpdateWhatsApp stores the tenant's provider settings and rebuilds its client.
// An empty authToken keeps the stored one.
func (s *Server) UpdateWhatsApp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		var body models.MessagingCredentials
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		t, err := s.applyMessaging(r, id, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{
			"tenant":            t.TenantPublic,
			"clientInitialized": s.clientRegistered(t.ID),
		})
	}
}

func (s *Server) applyMessaging(r *http.Request, id int64, c models.MessagingCredentials) (models.TenantWithCredentials, error) {
	ctx := r.Context()
	current, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return models.TenantWithCredentials{}, err
	}
	c.WhatsAppNumber = phone.Canonical(c.WhatsAppNumber)
	c.AccountSID = strings.TrimSpace(c.AccountSID)
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	if c.AuthToken == "" {
		c.AuthToken = current.TwilioAuthToken
	}
	if err := s.store.UpdateTenantMessaging(ctx, id, c); err != nil {
		return models.TenantWithCredentials{}, err
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return models.TenantWithCredentials{}, err
	}
	if err := s.outbound.Register(t); err != nil {
		log.Error().Err(err).Int64("tenantID", id).Msg("Messaging client registration failed")
	}
	return t, nil
}

func (s *Server) clientRegistered(tenantID int64) bool {
	_, ok := s.outbound.Registry().Get(tenantID)
	return ok
}

// OnboardingQR returns the sandbox join link and its QR code, as JSON with a data URL or
// as a PNG with ?format=png.
func (s *Server) OnboardingQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		t, err := s.store.GetTenant(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if r.URL.Query().Get("format") == "png" {
			png, err := s.onboarding.QRPNG(t.TenantPublic)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			w.Write(png)
			return
		}
		link, dataURL, err := s.onboarding.QRDataURL(t.TenantPublic)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, map[string]string{
			"tenant":  t.Name,
			"joinUrl": link,
			"qrCode":  dataURL,
		})
	}
}

type routingRequest struct {
	Phone    string `json:"phone"`
	TenantID int64  `json:"tenantId"`
}

func (s *Server) ListRouting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes, err := s.store.ListPhoneRouting(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, routes)
	}
}

// SetRouting assigns a client number to a tenant, replacing any previous assignment.
func (s *Server) SetRouting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body routingRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		p := phone.Canonical(body.Phone)
		if p == "" || body.TenantID <= 0 {
			s.respondError(w, http.StatusBadRequest, "phone and tenantId are required")
			return
		}
		if _, err := s.store.GetTenant(r.Context(), body.TenantID); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.store.SetPhoneRouting(r.Context(), p, body.TenantID); err != nil {
			s.fail(w, r, err)
			return
		}
		route, err := s.store.GetPhoneRouting(r.Context(), p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"routing": route})
	}
}

func (s *Server) DeleteRouting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := mux.Vars(r)["phone"]
		if raw == "" {
			raw = r.URL.Query().Get("phone")
		}
		p := phone.Canonical(raw)
		if p == "" {
			s.respondError(w, http.StatusBadRequest, "phone is required")
			return
		}
		if err := s.store.DeletePhoneRouting(r.Context(), p); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"concierge-whatsapp/internal/services"
	"concierge-whatsapp/internal/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

func (s *Server) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes {"error": msg}.
func (s *Server) respondError(w http.ResponseWriter, statusCode int, msg string) {
	s.respondWithJSON(w, statusCode, map[string]string{"error": msg})
}

// respondSuccess writes {"success": true} merged with fields.
func (s *Server) respondSuccess(w http.ResponseWriter, statusCode int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	s.respondWithJSON(w, statusCode, body)
}

// fail maps a service or store error to a status code. Server errors are logged and
// their details are not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusBadGateway {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		s.respondError(w, code, "internal server error")
		return
	}
	s.respondError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, services.ErrJobBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrMessagingNotConfigured),
		errors.Is(err, services.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrSetupClosed):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSendFailed), errors.Is(err, services.ErrNoProviderClient):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("could not decode payload")
	}
	return nil
}

// pathID parses the named mux variable as a positive id.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

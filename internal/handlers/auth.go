package handlers

import (
	"net/http"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login opens a tenant session.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := decode(r, &c); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if c.Email == "" || c.Password == "" {
			s.respondError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		token, tenant, err := s.auth.TenantLogin(r.Context(), c.Email, c.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"token": token, "tenant": tenant})
	}
}

// Logout ends the caller's session, tenant or admin. Unknown tokens are ignored.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			s.auth.Logout(token)
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

func (s *Server) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondWithJSON(w, http.StatusOK, tenantFrom(r.Context()).TenantPublic)
	}
}

// PasswordReset consumes a reset token issued by an admin.
func (s *Server) PasswordReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.Token == "" {
			s.respondError(w, http.StatusBadRequest, "token is required")
			return
		}
		if err := s.auth.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

func (s *Server) AdminLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := decode(r, &c); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		token, err := s.auth.AdminLogin(c.Email, c.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sess, _ := s.auth.AdminSession(token)
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"admin": map[string]string{"email": sess.Email},
		})
	}
}

func (s *Server) AdminCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r.Context())
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{
			"admin": map[string]string{"email": sess.Email},
		})
	}
}

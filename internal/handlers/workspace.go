package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"
)

func (s *Server) Statistics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenantFrom(r.Context()).ID
		st, err := s.store.Statistics(r.Context(), &tenantID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, st)
	}
}

// AdminStatistics covers every tenant, or one when ?tenantId is given.
func (s *Server) AdminStatistics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter *int64
		if raw := r.URL.Query().Get("tenantId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid tenantId")
				return
			}
			filter = &id
		}
		st, err := s.store.Statistics(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, st)
	}
}

type faqRequest struct {
	TenantID int64  `json:"tenantId"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (f *faqRequest) valid() bool {
	f.Question, f.Answer = strings.TrimSpace(f.Question), strings.TrimSpace(f.Answer)
	return f.Question != "" && f.Answer != ""
}

// faqFor loads the {id} FAQ. A tenant caller only sees its own entries.
func (s *Server) faqFor(w http.ResponseWriter, r *http.Request, sc scope) (models.FAQ, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid faq id")
		return models.FAQ{}, false
	}
	faq, err := s.store.GetFAQ(r.Context(), id)
	if err == nil && sc == tenantScope && faq.TenantID != tenantFrom(r.Context()).ID {
		err = store.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err)
		return models.FAQ{}, false
	}
	return faq, true
}

func (s *Server) ListFAQs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		faqs, err := s.store.ListFAQs(r.Context(), tenantFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, faqs)
	}
}

func (s *Server) AdminListFAQs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		faqs, err := s.store.ListAllFAQs(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, faqs)
	}
}

func (s *Server) CreateFAQ(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body faqRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !body.valid() {
			s.respondError(w, http.StatusBadRequest, "question and answer are required")
			return
		}
		tenantID := body.TenantID
		if sc == tenantScope {
			tenantID = tenantFrom(r.Context()).ID
		} else {
			if tenantID <= 0 {
				s.respondError(w, http.StatusBadRequest, "tenantId is required")
				return
			}
			if _, err := s.store.GetTenant(r.Context(), tenantID); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		faq, err := s.store.CreateFAQ(r.Context(), tenantID, body.Question, body.Answer)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusCreated, faq)
	}
}

func (s *Server) UpdateFAQ(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		faq, ok := s.faqFor(w, r, sc)
		if !ok {
			return
		}
		var body faqRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !body.valid() {
			s.respondError(w, http.StatusBadRequest, "question and answer are required")
			return
		}
		if err := s.store.UpdateFAQ(r.Context(), faq.ID, body.Question, body.Answer); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

func (s *Server) DeleteFAQ(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		faq, ok := s.faqFor(w, r, sc)
		if !ok {
			return
		}
		if err := s.store.DeleteFAQ(r.Context(), faq.ID); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

type templateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (t *templateRequest) valid() bool {
	t.Name, t.Content = strings.TrimSpace(t.Name), strings.TrimSpace(t.Content)
	return t.Name != "" && t.Content != ""
}

func (s *Server) ListTemplates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := s.store.ListTemplates(r.Context(), tenantFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, templates)
	}
}

func (s *Server) CreateTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body templateRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !body.valid() {
			s.respondError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		t, err := s.store.CreateTemplate(r.Context(), tenantFrom(r.Context()).ID, body.Name, body.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusCreated, t)
	}
}

func (s *Server) UpdateTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid template id")
			return
		}
		var body templateRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !body.valid() {
			s.respondError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		if err := s.store.UpdateTemplate(r.Context(), id, tenantFrom(r.Context()).ID, body.Name, body.Content); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

func (s *Server) DeleteTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid template id")
			return
		}
		if err := s.store.DeleteTemplate(r.Context(), id, tenantFrom(r.Context()).ID); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

type featureRequestBody struct {
	TenantID    *int64 `json:"tenantId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// CreateFeatureRequest files a request. Tenants file for themselves; admins may attach a tenant.
func (s *Server) CreateFeatureRequest(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body featureRequestBody
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		body.Title = strings.TrimSpace(body.Title)
		if body.Title == "" {
			s.respondError(w, http.StatusBadRequest, "title is required")
			return
		}
		if body.Priority == "" {
			body.Priority = models.PriorityMedium
		}
		if !models.ValidPriority(body.Priority) {
			s.respondError(w, http.StatusBadRequest, "priority must be low, medium or high")
			return
		}
		tenantID := body.TenantID
		if sc == tenantScope {
			id := tenantFrom(r.Context()).ID
			tenantID = &id
		}
		fr, err := s.store.CreateFeatureRequest(r.Context(), tenantID, body.Title, strings.TrimSpace(body.Description), body.Priority)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusCreated, fr)
	}
}

func (s *Server) ListFeatureRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frs, err := s.store.ListFeatureRequests(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, frs)
	}
}

func (s *Server) UpdateFeatureRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid feature request id")
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !models.ValidFeatureStatus(body.Status) {
			s.respondError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if err := s.store.UpdateFeatureRequestStatus(r.Context(), id, body.Status); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"status": body.Status})
	}
}

func (s *Server) DeleteFeatureRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid feature request id")
			return
		}
		if err := s.store.DeleteFeatureRequest(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

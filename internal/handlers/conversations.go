package handlers

import (
	"errors"
	"net/http"
	"strings"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/services"

	"github.com/gorilla/mux"
)

// scope is how a conversation route finds its conversation and the tenant that sends for it.
type scope int

const (
	tenantScope scope = iota
	adminScope
)

// conversation loads the {id} conversation. In tenant scope a conversation of another tenant
// is reported as not found.
func (s *Server) conversation(w http.ResponseWriter, r *http.Request, sc scope) (models.Conversation, models.TenantWithCredentials, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return models.Conversation{}, models.TenantWithCredentials{}, false
	}
	ctx := r.Context()
	if sc == tenantScope {
		tenant := tenantFrom(ctx)
		conv, err := s.conversations.ConversationForTenant(ctx, id, tenant.ID)
		if err != nil {
			s.fail(w, r, err)
			return models.Conversation{}, models.TenantWithCredentials{}, false
		}
		return conv, tenant, true
	}

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return models.Conversation{}, models.TenantWithCredentials{}, false
	}
	tenant, err := s.store.GetTenant(ctx, conv.TenantID)
	if err != nil {
		s.fail(w, r, err)
		return models.Conversation{}, models.TenantWithCredentials{}, false
	}
	return conv, tenant, true
}

// ListConversations returns the caller tenant's conversations, most recent first.
func (s *Server) ListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenantFrom(r.Context()).ID
		convs, err := s.store.ListConversations(r.Context(), &tenantID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, convs)
	}
}

func (s *Server) AdminListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := s.store.ListConversations(r.Context(), nil)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, convs)
	}
}

func (s *Server) ListMessages(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, sc)
		if !ok {
			return
		}
		msgs, err := s.store.ListMessages(r.Context(), conv.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, msgs)
	}
}

// SendMessage stores a concierge message and sends it. When the provider call fails the
// stored message is still returned with a 502.
func (s *Server) SendMessage(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, tenant, ok := s.conversation(w, r, sc)
		if !ok {
			return
		}
		var body struct {
			Message string `json:"message"`
			Body    string `json:"body"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		text := body.Message
		if text == "" {
			text = body.Body
		}

		msg, err := s.conversations.SendHuman(r.Context(), conv, tenant, text)
		if errors.Is(err, services.ErrSendFailed) {
			s.respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":   err.Error(),
				"message": msg,
			})
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"message": msg})
	}
}

func (s *Server) SetAutoReply(sc scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, sc)
		if !ok {
			return
		}
		var body struct {
			AutoReply *bool `json:"autoReply"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.AutoReply == nil {
			s.respondError(w, http.StatusBadRequest, "autoReply must be a boolean")
			return
		}
		if err := s.store.SetAutoReply(r.Context(), conv.ID, *body.AutoReply); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{"autoReply": *body.AutoReply})
	}
}

func (s *Server) ListTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		tags, err := s.store.ListTags(r.Context(), conv.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, tags)
	}
}

func (s *Server) AddTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		var body struct {
			Tag string `json:"tag"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		tag := strings.TrimSpace(body.Tag)
		if tag == "" {
			s.respondError(w, http.StatusBadRequest, "tag is required")
			return
		}
		if err := s.store.AddTag(r.Context(), conv.ID, tag); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{"tag": tag})
	}
}

func (s *Server) RemoveTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		if err := s.store.RemoveTag(r.Context(), conv.ID, mux.Vars(r)["tag"]); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

func (s *Server) ListNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		notes, err := s.store.ListNotes(r.Context(), conv.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, notes)
	}
}

func (s *Server) AddNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		var body struct {
			Note string `json:"note"`
		}
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(body.Note) == "" {
			s.respondError(w, http.StatusBadRequest, "note is required")
			return
		}
		note, err := s.store.AddNote(r.Context(), conv.ID, strings.TrimSpace(body.Note))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusCreated, note)
	}
}

func (s *Server) DeleteNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, _, ok := s.conversation(w, r, tenantScope)
		if !ok {
			return
		}
		noteID, ok := pathID(r, "noteId")
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid note id")
			return
		}
		if err := s.store.DeleteNote(r.Context(), noteID, conv.ID); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, nil)
	}
}

// Search matches the caller's conversations by phone, message body or tag.
func (s *Server) Search() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			s.respondError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		convs, err := s.store.SearchConversations(r.Context(), tenantFrom(r.Context()).ID, q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, convs)
	}
}

// ResetConversations archives every conversation when archiving is enabled, then deletes them.
func (s *Server) ResetConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.archive.ResetAll(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusOK, map[string]interface{}{
			"archived":      res.Key != "",
			"archiveKey":    res.Key,
			"conversations": res.Conversations,
			"messages":      res.Messages,
		})
	}
}

type testConversationRequest struct {
	TenantID int64  `json:"tenantId"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
}

func (s *Server) CreateTestConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body testConversationRequest
		if err := decode(r, &body); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.TenantID <= 0 {
			s.respondError(w, http.StatusBadRequest, "tenantId is required")
			return
		}
		conv, msg, err := s.conversations.CreateTestConversation(r.Context(), body.TenantID, body.Phone, body.Message)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusCreated, map[string]interface{}{"conversation": conv, "message": msg})
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/services"

	"github.com/gorilla/mux"
)

func jobID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["jobId"], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// JobsStatus reports the reply dispatcher's workers and backlog.
func (s *Server) JobsStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.dispatcher.Status(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, st)
	}
}

// ListJobs accepts ?status=, ?tenantId= and ?limit= filters.
func (s *Server) ListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := services.JobFilter{Status: models.ReplyJobStatus(q.Get("status"))}
		if raw := q.Get("tenantId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid tenantId")
				return
			}
			f.TenantID = id
		}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				s.respondError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			f.Limit = n
		}
		jobs, err := s.dispatcher.List(r.Context(), f)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, jobs)
	}
}

func (s *Server) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(r)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		job, err := s.dispatcher.Get(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondWithJSON(w, http.StatusOK, job)
	}
}

// RetryJob puts a job back in the queue. A job whose reply is stored is only re-sent.
func (s *Server) RetryJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(r)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		job, err := s.dispatcher.Retry(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondSuccess(w, http.StatusAccepted, map[string]interface{}{"job": job})
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/metrics"
	"concierge-whatsapp/internal/services"

	"github.com/rs/zerolog/log"
)

const emptyTwiML = "<Response></Response>"

func ackWebhook(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// webhookURL is the URL the provider signed: the public base URL when configured,
// otherwise the one rebuilt from the request.
func (s *Server) webhookURL(r *http.Request) string {
	if base := strings.TrimRight(s.opts.PublicBaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// maxWebhookBody caps the form payload of one provider callback.
const maxWebhookBody = 64 << 10

// Webhook receives inbound WhatsApp messages. It acknowledges the provider as soon as the
// message is stored and leaves the reply to the dispatcher.
func (s *Server) Webhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		if err := r.ParseForm(); err != nil {
			metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			s.respondError(w, http.StatusBadRequest, "could not parse form")
			return
		}

		if s.opts.WebhookAuthToken != "" {
			sig := r.Header.Get(twilio.SignatureHeader)
			if !twilio.ValidSignature(s.opts.WebhookAuthToken, s.webhookURL(r), r.PostForm, sig) {
				log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook signature rejected")
				metrics.WebhookRequests.WithLabelValues("bad_signature").Inc()
				s.respondError(w, http.StatusForbidden, "invalid signature")
				return
			}
		}

		in := services.InboundMessage{
			From:       r.PostForm.Get("From"),
			To:         r.PostForm.Get("To"),
			Body:       r.PostForm.Get("Body"),
			MessageSID: r.PostForm.Get("MessageSid"),
		}
		log.Info().Str("from", in.From).Str("to", in.To).Str("sid", in.MessageSID).Msg("Inbound WhatsApp message")

		res, err := s.ingest.Ingest(r.Context(), in)
		switch {
		case errors.Is(err, services.ErrNoTenant), errors.Is(err, services.ErrNoRoute):
			log.Warn().Err(err).Str("to", in.To).Str("from", in.From).Msg("Inbound message dropped")
			metrics.WebhookRequests.WithLabelValues("unrouted").Inc()
			ackWebhook(w)
			return
		case errors.Is(err, services.ErrInvalidInbound):
			log.Warn().Err(err).Msg("Inbound message ignored")
			metrics.WebhookRequests.WithLabelValues("invalid").Inc()
			ackWebhook(w)
			return
		case err != nil:
			log.Error().Err(err).Str("from", in.From).Msg("Failed to store inbound message")
			metrics.WebhookRequests.WithLabelValues("error").Inc()
			s.respondError(w, http.StatusInternalServerError, "failed to store message")
			return
		}

		metrics.WebhookRequests.WithLabelValues("accepted").Inc()
		ackWebhook(w)

		if !res.ShouldReply {
			return
		}
		// The request context ends with the response; the job must outlive it.
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.dispatcher.Enqueue(ctx, services.ReplyRequest{
			TenantID:        res.Tenant.ID,
			ConversationID:  res.Conversation.ID,
			ClientMessageID: res.Message.ID,
			ClientPhone:     res.Conversation.Phone,
			ClientMessage:   res.Message.Body,
		}); err != nil {
			log.Error().Err(err).Int64("conversationID", res.Conversation.ID).Msg("Failed to enqueue reply")
		}
	}
}

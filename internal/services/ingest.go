package services

import (
	"context"
	"fmt"

	"concierge-whatsapp/internal/adapters/rabbitmq"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"
	"concierge-whatsapp/pkg/phone"

	"github.com/rs/zerolog/log"
)

// InboundMessage is one provider webhook call.
type InboundMessage struct {
	From       string
	To         string
	Body       string
	MessageSID string
}

// IngestResult is what the webhook needs to acknowledge and schedule the reply.
type IngestResult struct {
	Tenant       models.TenantWithCredentials
	Conversation models.Conversation
	Message      models.Message
	Tier         string
	ShouldReply  bool
}

// IngestStore is the persistence used by the inbound path.
type IngestStore interface {
	GetOrCreateConversation(ctx context.Context, phone string, tenantID int64) (models.Conversation, bool, error)
	AppendMessage(ctx context.Context, m models.NewMessage) (models.Message, error)
}

// IngestService persists inbound messages. It does no slow work: reply generation is left
// to the caller, after the provider has been acknowledged.
type IngestService struct {
	store    IngestStore
	resolver *TenantResolver
	events   EventPublisher
}

func NewIngestService(s IngestStore, resolver *TenantResolver, events EventPublisher) *IngestService {
	if s == nil || resolver == nil {
		log.Fatal().Msg("IngestService requires a store and a resolver")
	}
	return &IngestService{store: s, resolver: resolver, events: publisherOrNop(events)}
}

// Ingest normalizes the numbers, resolves the tenant, gets or creates the conversation,
// records the routing and appends the client message.
func (s *IngestService) Ingest(ctx context.Context, in InboundMessage) (*IngestResult, error) {
	from := phone.Canonical(in.From)
	to := phone.Canonical(in.To)
	if from == "" {
		return nil, ErrInvalidInbound
	}

	tenant, tier, err := s.resolver.Resolve(ctx, to, from)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.store.GetOrCreateConversation(ctx, from, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	if created {
		log.Info().Int64("conversationID", conv.ID).Int64("tenantID", tenant.ID).Str("from", from).Msg("New conversation started")
	}

	if err := s.resolver.EnsureRouting(ctx, from, tenant.ID); err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Sender:         models.SenderClient,
		Body:           in.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("append inbound message: %w", err)
	}

	log.Info().
		Int64("tenantID", tenant.ID).
		Int64("conversationID", conv.ID).
		Str("from", from).
		Str("to", to).
		Str("tier", tier).
		Str("messageSid", in.MessageSID).
		Bool("autoReply", conv.AutoReply).
		Msg("Inbound message stored")

	if err := s.events.Publish(ctx, rabbitmq.EventMessageReceived, tenant.ID, conv.ID, map[string]interface{}{
		"messageId":  msg.ID,
		"from":       from,
		"to":         to,
		"body":       in.Body,
		"messageSid": in.MessageSID,
	}); err != nil {
		log.Warn().Err(err).Int64("conversationID", conv.ID).Msg("Failed to publish message.received event")
	}

	return &IngestResult{
		Tenant:       tenant,
		Conversation: conv,
		Message:      msg,
		Tier:         tier,
		ShouldReply:  conv.AutoReply,
	}, nil
}

var _ IngestStore = (store.Store)(nil)

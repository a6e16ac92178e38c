package services

import (
	"context"
	"fmt"
	"strings"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"
	"concierge-whatsapp/pkg/phone"

	"github.com/rs/zerolog/log"
)

// HumanSender delivers a concierge-written message.
type HumanSender interface {
	Send(ctx context.Context, to, body string, tenantID int64, from string) error
}

// ConversationService implements the dashboard messaging actions.
type ConversationService struct {
	store  store.Store
	sender HumanSender
}

func NewConversationService(s store.Store, sender HumanSender) *ConversationService {
	if s == nil || sender == nil {
		log.Fatal().Msg("ConversationService requires a store and a sender")
	}
	return &ConversationService{store: s, sender: sender}
}

// SendHuman stores a concierge message, then sends it. The message stays in the log when
// the provider call fails; the error then wraps ErrSendFailed.
func (s *ConversationService) SendHuman(ctx context.Context, conv models.Conversation, tenant models.TenantWithCredentials, body string) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if tenant.WhatsAppNumber == "" {
		return models.Message{}, ErrMessagingNotConfigured
	}

	msg, err := s.store.AppendMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Sender:         models.SenderConcierge,
		Body:           body,
		IsAI:           false,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("store concierge message: %w", err)
	}

	if err := s.sender.Send(ctx, conv.Phone, body, tenant.ID, tenant.WhatsAppNumber); err != nil {
		log.Error().Err(err).Int64("conversationID", conv.ID).Int64("messageID", msg.ID).Msg("Concierge message stored but not sent")
		return msg, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	log.Info().Int64("conversationID", conv.ID).Int64("messageID", msg.ID).Msg("Concierge message sent")
	return msg, nil
}

// CreateTestConversation seeds a routed conversation with one client message, for demos.
func (s *ConversationService) CreateTestConversation(ctx context.Context, tenantID int64, rawPhone, body string) (models.Conversation, models.Message, error) {
	p := phone.Canonical(rawPhone)
	if p == "" {
		return models.Conversation{}, models.Message{}, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		body = "Bonjour, ceci est un message de test."
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return models.Conversation{}, models.Message{}, err
	}

	conv, _, err := s.store.GetOrCreateConversation(ctx, p, tenantID)
	if err != nil {
		return models.Conversation{}, models.Message{}, err
	}
	if err := s.store.SetPhoneRouting(ctx, p, tenantID); err != nil {
		return models.Conversation{}, models.Message{}, err
	}
	msg, err := s.store.AppendMessage(ctx, models.NewMessage{ConversationID: conv.ID, Sender: models.SenderClient, Body: body})
	if err != nil {
		return models.Conversation{}, models.Message{}, err
	}
	log.Info().Int64("conversationID", conv.ID).Int64("tenantID", tenantID).Msg("Test conversation created")
	return conv, msg, nil
}

// ConversationForTenant loads a conversation and checks it belongs to tenantID.
func (s *ConversationService) ConversationForTenant(ctx context.Context, id, tenantID int64) (models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return models.Conversation{}, err
	}
	if conv.TenantID != tenantID {
		return models.Conversation{}, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
	}
	return conv, nil
}

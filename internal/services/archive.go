package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"concierge-whatsapp/internal/adapters/rabbitmq"
	"concierge-whatsapp/internal/adapters/s3"
	"concierge-whatsapp/internal/models"

	"github.com/rs/zerolog/log"
)

// ObjectWriter stores one archive document.
type ObjectWriter interface {
	PutJSON(ctx context.Context, key string, data []byte) error
}

// ArchiveStore is the read and reset side of the archive service.
type ArchiveStore interface {
	ListConversations(ctx context.Context, tenantID *int64) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	DeleteAllConversations(ctx context.Context) error
}

// ArchiveDocument is the JSON body written to object storage.
type ArchiveDocument struct {
	Reason        string              `json:"reason"`
	CreatedAt     time.Time           `json:"createdAt"`
	Conversations []models.Transcript `json:"conversations"`
}

// ArchiveResult describes one archive run. Key is empty when archiving is disabled.
type ArchiveResult struct {
	Key           string `json:"key,omitempty"`
	Conversations int    `json:"conversations"`
	Messages      int    `json:"messages"`
}

// ArchiveService exports transcripts and performs the bulk conversation reset.
type ArchiveService struct {
	store  ArchiveStore
	writer ObjectWriter
	events EventPublisher
	now    func() time.Time
}

// NewArchiveService accepts a nil writer, which disables uploads.
func NewArchiveService(s ArchiveStore, writer ObjectWriter, events EventPublisher) *ArchiveService {
	if s == nil {
		log.Fatal().Msg("ArchiveService requires a store")
	}
	return &ArchiveService{store: s, writer: writer, events: publisherOrNop(events), now: time.Now}
}

// Enabled reports whether transcripts are uploaded.
func (a *ArchiveService) Enabled() bool {
	return a.writer != nil
}

// Transcripts loads every visible conversation with its full log.
func (a *ArchiveService) Transcripts(ctx context.Context) ([]models.Transcript, error) {
	convs, err := a.store.ListConversations(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]models.Transcript, 0, len(convs))
	for _, c := range convs {
		msgs, err := a.store.ListMessages(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("load transcript %d: %w", c.ID, err)
		}
		out = append(out, models.Transcript{Conversation: c, Messages: msgs})
	}
	return out, nil
}

// Archive uploads the current transcripts. It is a no-op when archiving is disabled.
func (a *ArchiveService) Archive(ctx context.Context, reason string) (ArchiveResult, error) {
	if a.writer == nil {
		return ArchiveResult{}, nil
	}
	transcripts, err := a.Transcripts(ctx)
	if err != nil {
		return ArchiveResult{}, err
	}

	at := a.now().UTC()
	doc := ArchiveDocument{Reason: reason, CreatedAt: at, Conversations: transcripts}
	data, err := json.Marshal(doc)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("marshal archive: %w", err)
	}

	res := ArchiveResult{Key: s3.TranscriptKey(at), Conversations: len(transcripts)}
	for _, t := range transcripts {
		res.Messages += len(t.Messages)
	}
	if err := a.writer.PutJSON(ctx, res.Key, data); err != nil {
		return ArchiveResult{}, err
	}
	log.Info().Str("key", res.Key).Int("conversations", res.Conversations).Int("messages", res.Messages).Msg("Transcripts archived")
	return res, nil
}

// ResetAll archives, then deletes every conversation. A failed archive aborts the reset.
func (a *ArchiveService) ResetAll(ctx context.Context) (ArchiveResult, error) {
	res, err := a.Archive(ctx, "reset")
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("archive before reset: %w", err)
	}
	if err := a.store.DeleteAllConversations(ctx); err != nil {
		return ArchiveResult{}, err
	}
	log.Warn().Str("archiveKey", res.Key).Msg("All conversations deleted")
	if err := a.events.Publish(ctx, rabbitmq.EventConversationReset, 0, 0, res); err != nil {
		log.Warn().Err(err).Msg("Failed to publish reset event")
	}
	return res, nil
}

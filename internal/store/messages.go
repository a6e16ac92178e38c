package store

import (
	"context"
	"fmt"

	"concierge-whatsapp/internal/models"
)

const messageColumns = `id, conversation_id, sender, body, ai_suggestion, is_ai, created_at`

// AppendMessage inserts a message and bumps the conversation's activity timestamp in one transaction.
func (s *SQLStore) AppendMessage(ctx context.Context, m models.NewMessage) (models.Message, error) {
	if m.Sender != models.SenderClient && m.Sender != models.SenderConcierge {
		return models.Message{}, fmt.Errorf("append message: invalid sender %q", m.Sender)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, s.wrap(err, "begin append message")
	}
	defer tx.Rollback()

	msg := models.Message{
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Body:           m.Body,
		AISuggestion:   m.AISuggestion,
		IsAI:           m.IsAI,
		CreatedAt:      now(),
	}
	err = tx.GetContext(ctx, &msg.ID, tx.Rebind(`
		INSERT INTO messages (conversation_id, sender, body, ai_suggestion, is_ai, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`), msg.ConversationID, msg.Sender, msg.Body, msg.AISuggestion, msg.IsAI, msg.CreatedAt)
	if err != nil {
		return models.Message{}, s.wrap(err, "insert message")
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET last_message_at = ? WHERE id = ?`), msg.CreatedAt, msg.ConversationID)
	if err != nil {
		return models.Message{}, s.wrap(err, "touch conversation")
	}
	if err := s.requireAffected(res, "touch conversation"); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, s.wrap(err, "commit append message")
	}
	return msg, nil
}

// ListMessages returns the full log of a conversation, oldest first.
func (s *SQLStore) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	out := []models.Message{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id`), conversationID)
	return out, s.wrap(err, "list messages")
}

// History returns the latest limit messages in chronological order.
func (s *SQLStore) History(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	return s.HistoryUntil(ctx, conversationID, 0, limit)
}

// HistoryUntil is History restricted to messages with an id up to untilID. Zero means no bound.
func (s *SQLStore) HistoryUntil(ctx context.Context, conversationID, untilID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	out := []models.Message{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND (? = 0 OR id <= ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), conversationID, untilID, untilID, limit)
	if err != nil {
		return nil, s.wrap(err, "load history")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

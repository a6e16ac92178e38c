package store

import (
	"context"
	"errors"
	"strings"

	"concierge-whatsapp/internal/models"
)

const conversationColumns = `c.id, c.tenant_id, c.phone_number, c.auto_reply, c.created_at, c.last_message_at`

// summarySelect lists conversations joined with their tenant and latest message.
// The inner join on phone_routing hides conversations whose routing entry was deleted.
const summarySelect = `
	SELECT ` + conversationColumns + `,
		t.name AS tenant_name,
		COALESCE((
			SELECT m.body FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		), '') AS last_message
	FROM conversations c
	JOIN tenants t ON t.id = c.tenant_id
	JOIN phone_routing pr ON pr.phone_number = c.phone_number`

func (s *SQLStore) findConversation(ctx context.Context, phone string, tenantID int64) (models.Conversation, error) {
	var c models.Conversation
	err := s.db.GetContext(ctx, &c, s.q(`
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.phone_number = ? AND c.tenant_id = ?`), phone, tenantID)
	return c, s.wrap(err, "find conversation")
}

// GetOrCreateConversation returns the conversation for (phone, tenant), creating it with auto-reply
// enabled when absent. The boolean reports whether a row was created.
func (s *SQLStore) GetOrCreateConversation(ctx context.Context, phone string, tenantID int64) (models.Conversation, bool, error) {
	c, err := s.findConversation(ctx, phone, tenantID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Conversation{}, false, err
	}

	ts := now()
	c = models.Conversation{TenantID: tenantID, Phone: phone, AutoReply: true, CreatedAt: ts, LastMessageAt: ts}
	err = s.db.GetContext(ctx, &c.ID, s.q(`
		INSERT INTO conversations (tenant_id, phone_number, auto_reply, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`), tenantID, phone, true, ts, ts)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			// Lost a race with a concurrent insert; the other row wins.
			existing, ferr := s.findConversation(ctx, phone, tenantID)
			return existing, false, ferr
		}
		return models.Conversation{}, false, s.wrap(err, "create conversation")
	}
	return c, true, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	var c models.Conversation
	err := s.db.GetContext(ctx, &c, s.q(`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`), id)
	return c, s.wrap(err, "get conversation")
}

// ListConversations returns visible conversations, newest activity first.
// A nil tenantID lists every tenant's conversations.
func (s *SQLStore) ListConversations(ctx context.Context, tenantID *int64) ([]models.ConversationSummary, error) {
	out := []models.ConversationSummary{}
	query := summarySelect
	var args []any
	if tenantID != nil {
		query += ` WHERE c.tenant_id = ?`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY c.last_message_at DESC, c.id DESC`
	err := s.db.SelectContext(ctx, &out, s.q(query), args...)
	return out, s.wrap(err, "list conversations")
}

// SearchConversations matches the phone number, any message body or any tag, case-insensitively.
func (s *SQLStore) SearchConversations(ctx context.Context, tenantID int64, query string) ([]models.ConversationSummary, error) {
	out := []models.ConversationSummary{}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	err := s.db.SelectContext(ctx, &out, s.q(summarySelect+`
		WHERE c.tenant_id = ? AND (
			LOWER(c.phone_number) LIKE ?
			OR EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND LOWER(m.body) LIKE ?)
			OR EXISTS (SELECT 1 FROM conversation_tags ct WHERE ct.conversation_id = c.id AND LOWER(ct.tag) LIKE ?)
		)
		ORDER BY c.last_message_at DESC, c.id DESC`), tenantID, pattern, pattern, pattern)
	return out, s.wrap(err, "search conversations")
}

// SetAutoReply toggles automated replies. Setting the current value again is a no-op.
func (s *SQLStore) SetAutoReply(ctx context.Context, id int64, autoReply bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE conversations SET auto_reply = ? WHERE id = ?`), autoReply, id)
	if err != nil {
		return s.wrap(err, "set auto reply")
	}
	return s.requireAffected(res, "set auto reply")
}

// DeleteAllConversations is the admin bulk reset: every conversation and its dependent rows.
func (s *SQLStore) DeleteAllConversations(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.wrap(err, "begin reset")
	}
	defer tx.Rollback()

	for _, table := range []string{"conversation_tags", "conversation_notes", "messages", "conversations"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return s.wrap(err, "reset "+table)
		}
	}
	return s.wrap(tx.Commit(), "commit reset")
}

package store

import (
	"context"

	"concierge-whatsapp/internal/models"
)

func (s *SQLStore) ListTemplates(ctx context.Context, tenantID int64) ([]models.Template, error) {
	out := []models.Template{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT id, tenant_id, name, content, created_at, updated_at
		FROM response_templates WHERE tenant_id = ? ORDER BY name, id`), tenantID)
	return out, s.wrap(err, "list templates")
}

func (s *SQLStore) CreateTemplate(ctx context.Context, tenantID int64, name, content string) (models.Template, error) {
	ts := now()
	t := models.Template{TenantID: tenantID, Name: name, Content: content, CreatedAt: ts, UpdatedAt: ts}
	err := s.db.GetContext(ctx, &t.ID, s.q(`
		INSERT INTO response_templates (tenant_id, name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`), tenantID, name, content, ts, ts)
	if err != nil {
		return models.Template{}, s.wrap(err, "create template")
	}
	return t, nil
}

// UpdateTemplate is scoped by tenant so one tenant cannot edit another's templates.
func (s *SQLStore) UpdateTemplate(ctx context.Context, id, tenantID int64, name, content string) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE response_templates SET name = ?, content = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`), name, content, now(), id, tenantID)
	if err != nil {
		return s.wrap(err, "update template")
	}
	return s.requireAffected(res, "update template")
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, id, tenantID int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM response_templates WHERE id = ? AND tenant_id = ?`), id, tenantID)
	if err != nil {
		return s.wrap(err, "delete template")
	}
	return s.requireAffected(res, "delete template")
}

func (s *SQLStore) ListTags(ctx context.Context, conversationID int64) ([]string, error) {
	out := []string{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT tag FROM conversation_tags WHERE conversation_id = ? ORDER BY created_at, tag`), conversationID)
	return out, s.wrap(err, "list tags")
}

// AddTag is idempotent.
func (s *SQLStore) AddTag(ctx context.Context, conversationID int64, tag string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO conversation_tags (conversation_id, tag, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, tag) DO NOTHING`), conversationID, tag, now())
	return s.wrap(err, "add tag")
}

func (s *SQLStore) RemoveTag(ctx context.Context, conversationID int64, tag string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM conversation_tags WHERE conversation_id = ? AND tag = ?`), conversationID, tag)
	return s.wrap(err, "remove tag")
}

func (s *SQLStore) ListNotes(ctx context.Context, conversationID int64) ([]models.Note, error) {
	out := []models.Note{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT id, conversation_id, note, created_at
		FROM conversation_notes WHERE conversation_id = ? ORDER BY created_at DESC, id DESC`), conversationID)
	return out, s.wrap(err, "list notes")
}

func (s *SQLStore) AddNote(ctx context.Context, conversationID int64, body string) (models.Note, error) {
	n := models.Note{ConversationID: conversationID, Body: body, CreatedAt: now()}
	err := s.db.GetContext(ctx, &n.ID, s.q(`
		INSERT INTO conversation_notes (conversation_id, note, created_at)
		VALUES (?, ?, ?)
		RETURNING id`), conversationID, body, n.CreatedAt)
	if err != nil {
		return models.Note{}, s.wrap(err, "add note")
	}
	return n, nil
}

func (s *SQLStore) DeleteNote(ctx context.Context, id, conversationID int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM conversation_notes WHERE id = ? AND conversation_id = ?`), id, conversationID)
	if err != nil {
		return s.wrap(err, "delete note")
	}
	return s.requireAffected(res, "delete note")
}

package store

import (
	"context"

	"concierge-whatsapp/internal/models"
)

const faqColumns = `id, tenant_id, question, answer, created_at, updated_at`

func (s *SQLStore) ListFAQs(ctx context.Context, tenantID int64) ([]models.FAQ, error) {
	out := []models.FAQ{}
	err := s.db.SelectContext(ctx, &out, s.q(`SELECT `+faqColumns+` FROM faqs WHERE tenant_id = ? ORDER BY created_at, id`), tenantID)
	return out, s.wrap(err, "list faqs")
}

func (s *SQLStore) ListAllFAQs(ctx context.Context) ([]models.FAQ, error) {
	out := []models.FAQ{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+faqColumns+` FROM faqs ORDER BY tenant_id, created_at, id`)
	return out, s.wrap(err, "list all faqs")
}

func (s *SQLStore) GetFAQ(ctx context.Context, id int64) (models.FAQ, error) {
	var f models.FAQ
	err := s.db.GetContext(ctx, &f, s.q(`SELECT `+faqColumns+` FROM faqs WHERE id = ?`), id)
	return f, s.wrap(err, "get faq")
}

func (s *SQLStore) CreateFAQ(ctx context.Context, tenantID int64, question, answer string) (models.FAQ, error) {
	ts := now()
	f := models.FAQ{TenantID: tenantID, Question: question, Answer: answer, CreatedAt: ts, UpdatedAt: ts}
	err := s.db.GetContext(ctx, &f.ID, s.q(`
		INSERT INTO faqs (tenant_id, question, answer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`), tenantID, question, answer, ts, ts)
	if err != nil {
		return models.FAQ{}, s.wrap(err, "create faq")
	}
	return f, nil
}

func (s *SQLStore) UpdateFAQ(ctx context.Context, id int64, question, answer string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE faqs SET question = ?, answer = ?, updated_at = ? WHERE id = ?`), question, answer, now(), id)
	if err != nil {
		return s.wrap(err, "update faq")
	}
	return s.requireAffected(res, "update faq")
}

func (s *SQLStore) DeleteFAQ(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM faqs WHERE id = ?`), id)
	if err != nil {
		return s.wrap(err, "delete faq")
	}
	return s.requireAffected(res, "delete faq")
}

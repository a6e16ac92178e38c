package store

import (
	"context"

	"concierge-whatsapp/internal/models"
)

func (s *SQLStore) ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error) {
	out := []models.FeatureRequest{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT fr.id, fr.tenant_id, t.name AS tenant_name, fr.title, fr.description,
			fr.status, fr.priority, fr.created_at, fr.updated_at
		FROM feature_requests fr
		LEFT JOIN tenants t ON t.id = fr.tenant_id
		ORDER BY fr.created_at DESC, fr.id DESC`)
	return out, s.wrap(err, "list feature requests")
}

// CreateFeatureRequest records a request. A nil tenantID marks an admin-authored request.
func (s *SQLStore) CreateFeatureRequest(ctx context.Context, tenantID *int64, title, description, priority string) (models.FeatureRequest, error) {
	ts := now()
	fr := models.FeatureRequest{
		TenantID:    tenantID,
		Title:       title,
		Description: description,
		Status:      models.FeatureStatusPending,
		Priority:    priority,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	err := s.db.GetContext(ctx, &fr.ID, s.q(`
		INSERT INTO feature_requests (tenant_id, title, description, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`), tenantID, title, description, fr.Status, priority, ts, ts)
	if err != nil {
		return models.FeatureRequest{}, s.wrap(err, "create feature request")
	}
	return fr, nil
}

func (s *SQLStore) UpdateFeatureRequestStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE feature_requests SET status = ?, updated_at = ? WHERE id = ?`), status, now(), id)
	if err != nil {
		return s.wrap(err, "update feature request")
	}
	return s.requireAffected(res, "update feature request")
}

func (s *SQLStore) DeleteFeatureRequest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM feature_requests WHERE id = ?`), id)
	if err != nil {
		return s.wrap(err, "delete feature request")
	}
	return s.requireAffected(res, "delete feature request")
}

package store

import (
	"context"

	"concierge-whatsapp/internal/models"
)

// SetPhoneRouting assigns phone to tenantID, overwriting any previous assignment.
func (s *SQLStore) SetPhoneRouting(ctx context.Context, phone string, tenantID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO phone_routing (phone_number, tenant_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET tenant_id = excluded.tenant_id`), phone, tenantID, now())
	return s.wrap(err, "set phone routing")
}

func (s *SQLStore) GetPhoneRouting(ctx context.Context, phone string) (models.PhoneRouting, error) {
	var r models.PhoneRouting
	err := s.db.GetContext(ctx, &r, s.q(`
		SELECT pr.phone_number, pr.tenant_id, t.name AS tenant_name, pr.created_at
		FROM phone_routing pr
		JOIN tenants t ON t.id = pr.tenant_id
		WHERE pr.phone_number = ?`), phone)
	return r, s.wrap(err, "get phone routing")
}

func (s *SQLStore) ListPhoneRouting(ctx context.Context) ([]models.PhoneRouting, error) {
	out := []models.PhoneRouting{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT pr.phone_number, pr.tenant_id, t.name AS tenant_name, pr.created_at
		FROM phone_routing pr
		JOIN tenants t ON t.id = pr.tenant_id
		ORDER BY pr.created_at DESC, pr.phone_number`)
	return out, s.wrap(err, "list phone routing")
}

func (s *SQLStore) DeletePhoneRouting(ctx context.Context, phone string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM phone_routing WHERE phone_number = ?`), phone)
	if err != nil {
		return s.wrap(err, "delete phone routing")
	}
	return s.requireAffected(res, "delete phone routing")
}

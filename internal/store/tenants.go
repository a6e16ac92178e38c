package store

import (
	"context"
	"time"

	"concierge-whatsapp/internal/models"
)

const tenantPublicColumns = `id, name, email, whatsapp_number, sandbox_join_code, created_at`

const tenantColumns = tenantPublicColumns + `, password_hash, twilio_account_sid, twilio_auth_token, reset_token_hash, reset_token_expires_at`

func (s *SQLStore) CreateTenant(ctx context.Context, t models.NewTenant) (models.TenantPublic, error) {
	out := models.TenantPublic{Name: t.Name, Email: t.Email, CreatedAt: now()}
	err := s.db.GetContext(ctx, &out.ID, s.q(`
		INSERT INTO tenants (name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`), t.Name, t.Email, t.PasswordHash, out.CreatedAt)
	if err != nil {
		return models.TenantPublic{}, s.wrap(err, "create tenant")
	}
	return out, nil
}

func (s *SQLStore) GetTenant(ctx context.Context, id int64) (models.TenantWithCredentials, error) {
	var t models.TenantWithCredentials
	err := s.db.GetContext(ctx, &t, s.q(`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`), id)
	return t, s.wrap(err, "get tenant")
}

func (s *SQLStore) TenantByEmail(ctx context.Context, email string) (models.TenantWithCredentials, error) {
	var t models.TenantWithCredentials
	err := s.db.GetContext(ctx, &t, s.q(`SELECT `+tenantColumns+` FROM tenants WHERE LOWER(email) = LOWER(?)`), email)
	return t, s.wrap(err, "get tenant by email")
}

// TenantByInboundNumber matches the provider number a message was sent to.
func (s *SQLStore) TenantByInboundNumber(ctx context.Context, number string) (models.TenantWithCredentials, error) {
	var t models.TenantWithCredentials
	err := s.db.GetContext(ctx, &t, s.q(`
		SELECT `+tenantColumns+` FROM tenants
		WHERE whatsapp_number = ? AND whatsapp_number <> ''
		ORDER BY created_at, id
		LIMIT 1`), number)
	return t, s.wrap(err, "get tenant by inbound number")
}

// OldestTenant is the catch-all routing target.
func (s *SQLStore) OldestTenant(ctx context.Context) (models.TenantWithCredentials, error) {
	var t models.TenantWithCredentials
	err := s.db.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id LIMIT 1`)
	return t, s.wrap(err, "get oldest tenant")
}

func (s *SQLStore) ListTenants(ctx context.Context) ([]models.TenantPublic, error) {
	out := []models.TenantPublic{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+tenantPublicColumns+` FROM tenants ORDER BY created_at, id`)
	return out, s.wrap(err, "list tenants")
}

func (s *SQLStore) ListTenantsWithCredentials(ctx context.Context) ([]models.TenantWithCredentials, error) {
	out := []models.TenantWithCredentials{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	return out, s.wrap(err, "list tenants with credentials")
}

func (s *SQLStore) CountTenants(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tenants`)
	return n, s.wrap(err, "count tenants")
}

func (s *SQLStore) UpdateTenant(ctx context.Context, id int64, u models.TenantUpdate) error {
	query := `UPDATE tenants SET name = ?, email = ? WHERE id = ?`
	args := []any{u.Name, u.Email, id}
	if u.PasswordHash != "" {
		query = `UPDATE tenants SET name = ?, email = ?, password_hash = ? WHERE id = ?`
		args = []any{u.Name, u.Email, u.PasswordHash, id}
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return s.wrap(err, "update tenant")
	}
	return s.requireAffected(res, "update tenant")
}

func (s *SQLStore) UpdateTenantMessaging(ctx context.Context, id int64, c models.MessagingCredentials) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tenants SET whatsapp_number = ?, twilio_account_sid = ?, twilio_auth_token = ?
		WHERE id = ?`), c.WhatsAppNumber, c.AccountSID, c.AuthToken, id)
	if err != nil {
		return s.wrap(err, "update tenant messaging")
	}
	return s.requireAffected(res, "update tenant messaging")
}

func (s *SQLStore) UpdateSandboxJoinCode(ctx context.Context, id int64, code string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tenants SET sandbox_join_code = ? WHERE id = ?`), code, id)
	if err != nil {
		return s.wrap(err, "update sandbox join code")
	}
	return s.requireAffected(res, "update sandbox join code")
}

// SetResetToken stores the hash of a one-time password reset token, replacing any previous one.
func (s *SQLStore) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tenants SET reset_token_hash = ?, reset_token_expires_at = ?
		WHERE id = ?`), tokenHash, expiresAt.UTC(), id)
	if err != nil {
		return s.wrap(err, "set reset token")
	}
	return s.requireAffected(res, "set reset token")
}

// ConsumeResetToken swaps the password of the tenant holding a valid token and burns the token.
func (s *SQLStore) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, at time.Time) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.q(`
		UPDATE tenants
		SET password_hash = ?, reset_token_hash = '', reset_token_expires_at = NULL
		WHERE reset_token_hash = ? AND reset_token_hash <> '' AND reset_token_expires_at > ?
		RETURNING id`), newPasswordHash, tokenHash, at.UTC())
	return id, s.wrap(err, "consume reset token")
}

func (s *SQLStore) DeleteTenant(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tenants WHERE id = ?`), id)
	if err != nil {
		return s.wrap(err, "delete tenant")
	}
	return s.requireAffected(res, "delete tenant")
}

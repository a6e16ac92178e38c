package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T, env *testEnv) *AuthService {
	t.Helper()
	return NewAuthService(env.store, NewSessionStore(0), AuthConfig{
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin123",
		ResetTokenTTL: time.Hour,
	})
}

func TestTenantLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuth(t, env)

	created, err := auth.CreateTenant(ctx, "Résidence Le Parc", "parc@conciergerie.fr", "parc123")
	require.NoError(t, err)

	_, _, err = auth.TenantLogin(ctx, "parc@conciergerie.fr", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.TenantLogin(ctx, "nobody@example.com", "parc123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, tenant, err := auth.TenantLogin(ctx, " PARC@conciergerie.fr ", "parc123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, tenant.ID)
	assert.NotEmpty(t, token)

	got, err := auth.TenantSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = auth.AdminSession(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	auth.Logout(token)
	_, err = auth.TenantSession(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuth(t, env)

	_, err := auth.AdminLogin("admin@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := auth.AdminLogin("Admin@Example.com", "admin123")
	require.NoError(t, err)
	sess, err := auth.AdminSession(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, sess.Role)

	_, err = auth.TenantSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateTenantValidation(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuth(t, env)
	ctx := context.Background()

	_, err := auth.CreateTenant(ctx, "", "a@example.com", "secret1")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = auth.CreateTenant(ctx, "A", "a@example.com", "123")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuth(t, env)

	tenant, err := auth.CreateTenant(ctx, "parc", "parc@conciergerie.fr", "parc123")
	require.NoError(t, err)
	session, _, err := auth.TenantLogin(ctx, "parc@conciergerie.fr", "parc123")
	require.NoError(t, err)

	token, expiresAt, err := auth.IssueResetToken(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.True(t, expiresAt.After(time.Now()))

	stored, err := env.store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.ResetTokenHash)

	assert.ErrorIs(t, auth.ResetPassword(ctx, token, "abc"), ErrValidation)
	assert.ErrorIs(t, auth.ResetPassword(ctx, "bogus", "nouveau123"), ErrInvalidResetToken)
	require.NoError(t, auth.ResetPassword(ctx, token, "nouveau123"))
	assert.ErrorIs(t, auth.ResetPassword(ctx, token, "encore123"), ErrInvalidResetToken)

	_, err = auth.TenantSession(ctx, session)
	assert.ErrorIs(t, err, ErrUnauthorized, "sessions end when the password changes")

	_, _, err = auth.TenantLogin(ctx, "parc@conciergerie.fr", "parc123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.TenantLogin(ctx, "parc@conciergerie.fr", "nouveau123")
	assert.NoError(t, err)
}

func TestExpiredResetToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuth(t, env)
	tenant, err := auth.CreateTenant(ctx, "parc", "parc@conciergerie.fr", "parc123")
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := auth.IssueResetToken(ctx, tenant.ID)
	require.NoError(t, err)
	auth.now = time.Now

	assert.ErrorIs(t, auth.ResetPassword(ctx, token, "nouveau123"), ErrInvalidResetToken)
}

func TestSessionStoreExpiry(t *testing.T) {
	s := NewSessionStore(50 * time.Millisecond)
	token := s.Create(Session{Role: RoleTenant, TenantID: 1})
	_, ok := s.Get(token)
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok = s.Get(token)
	assert.False(t, ok)
}

func TestSessionStoreDeleteTenant(t *testing.T) {
	s := NewSessionStore(0)
	a1 := s.Create(Session{Role: RoleTenant, TenantID: 1})
	s.Create(Session{Role: RoleTenant, TenantID: 1})
	b := s.Create(Session{Role: RoleTenant, TenantID: 2})
	admin := s.Create(Session{Role: RoleAdmin})

	assert.Equal(t, 2, s.DeleteTenant(1))
	_, ok := s.Get(a1)
	assert.False(t, ok)
	_, ok = s.Get(b)
	assert.True(t, ok)
	_, ok = s.Get(admin)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Count())
}

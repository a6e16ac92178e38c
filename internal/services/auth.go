package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Session roles.
const (
	RoleTenant = "tenant"
	RoleAdmin  = "admin"
)

// MinPasswordLength applies to every password set through the API.
const MinPasswordLength = 6

// Session is one logged-in dashboard user.
type Session struct {
	Token     string    `json:"-"`
	Role      string    `json:"role"`
	TenantID  int64     `json:"tenantId,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore keeps sessions in memory. A zero TTL keeps them until logout or restart.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	exp := cache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	return &SessionStore{cache: cache.New(exp, 10*time.Minute)}
}

// Create stores s under a fresh random token and returns the token.
func (s *SessionStore) Create(sess Session) string {
	sess.Token = uuid.NewString()
	sess.CreatedAt = time.Now().UTC()
	s.cache.SetDefault(sess.Token, sess)
	return sess.Token
}

func (s *SessionStore) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	v, ok := s.cache.Get(token)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

func (s *SessionStore) Delete(token string) {
	s.cache.Delete(token)
}

// DeleteTenant ends every session of a tenant.
func (s *SessionStore) DeleteTenant(tenantID int64) int {
	n := 0
	for token, item := range s.cache.Items() {
		if sess, ok := item.Object.(Session); ok && sess.Role == RoleTenant && sess.TenantID == tenantID {
			s.cache.Delete(token)
			n++
		}
	}
	return n
}

func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}

// AuthConfig holds the admin account and token lifetimes.
type AuthConfig struct {
	AdminEmail    string
	AdminPassword string
	ResetTokenTTL time.Duration
}

// AuthService handles logins, sessions and password resets.
type AuthService struct {
	store    store.TenantStore
	sessions *SessionStore
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(s store.TenantStore, sessions *SessionStore, cfg AuthConfig) *AuthService {
	if s == nil || sessions == nil {
		log.Fatal().Msg("AuthService requires a tenant store and a session store")
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 24 * time.Hour
	}
	return &AuthService{store: s, sessions: sessions, cfg: cfg, now: time.Now}
}

// Sessions returns the session store.
func (a *AuthService) Sessions() *SessionStore {
	return a.sessions
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}

// TenantLogin checks a tenant's credentials and opens a session.
func (a *AuthService) TenantLogin(ctx context.Context, email, password string) (string, models.TenantPublic, error) {
	t, err := a.store.TenantByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", models.TenantPublic{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.TenantPublic{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) != nil {
		log.Warn().Str("email", email).Msg("Failed tenant login")
		return "", models.TenantPublic{}, ErrInvalidCredentials
	}
	token := a.sessions.Create(Session{Role: RoleTenant, TenantID: t.ID, Email: t.Email})
	log.Info().Int64("tenantID", t.ID).Msg("Tenant logged in")
	return token, t.TenantPublic, nil
}

// AdminLogin checks the configured admin account and opens a session.
func (a *AuthService) AdminLogin(email, password string) (string, error) {
	emailOK := strings.EqualFold(strings.TrimSpace(email), a.cfg.AdminEmail)
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.AdminPassword)) == 1
	if !emailOK || !passOK || a.cfg.AdminPassword == "" {
		log.Warn().Str("email", email).Msg("Failed admin login")
		return "", ErrInvalidCredentials
	}
	token := a.sessions.Create(Session{Role: RoleAdmin, Email: a.cfg.AdminEmail})
	log.Info().Msg("Admin logged in")
	return token, nil
}

func (a *AuthService) Logout(token string) {
	a.sessions.Delete(token)
}

// TenantSession resolves a tenant token to the current tenant row.
func (a *AuthService) TenantSession(ctx context.Context, token string) (models.TenantWithCredentials, error) {
	sess, ok := a.sessions.Get(token)
	if !ok || sess.Role != RoleTenant {
		return models.TenantWithCredentials{}, ErrUnauthorized
	}
	t, err := a.store.GetTenant(ctx, sess.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		a.sessions.Delete(token)
		return models.TenantWithCredentials{}, ErrUnauthorized
	}
	return t, err
}

// AdminSession checks an admin token.
func (a *AuthService) AdminSession(token string) (Session, error) {
	sess, ok := a.sessions.Get(token)
	if !ok || sess.Role != RoleAdmin {
		return Session{}, ErrUnauthorized
	}
	return sess, nil
}

// CreateTenant hashes the password and stores a new tenant.
func (a *AuthService) CreateTenant(ctx context.Context, name, email, password string) (models.TenantPublic, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return models.TenantPublic{}, fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return models.TenantPublic{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.TenantPublic{}, err
	}
	t, err := a.store.CreateTenant(ctx, models.NewTenant{Name: name, Email: email, PasswordHash: hash})
	if err != nil {
		return models.TenantPublic{}, err
	}
	log.Info().Int64("tenantID", t.ID).Str("name", t.Name).Msg("Tenant created")
	return t, nil
}

// UpdateTenant changes name and email, and the password when one is given.
func (a *AuthService) UpdateTenant(ctx context.Context, id int64, name, email, password string) error {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	u := models.TenantUpdate{Name: name, Email: email}
	if password != "" {
		if err := validatePassword(password); err != nil {
			return err
		}
		hash, err := HashPassword(password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	if err := a.store.UpdateTenant(ctx, id, u); err != nil {
		return err
	}
	if u.PasswordHash != "" {
		a.sessions.DeleteTenant(id)
	}
	return nil
}

// IssueResetToken creates a single-use password reset token. Only its hash is stored.
func (a *AuthService) IssueResetToken(ctx context.Context, tenantID int64) (string, time.Time, error) {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	expiresAt := a.now().UTC().Add(a.cfg.ResetTokenTTL)
	if err := a.store.SetResetToken(ctx, tenantID, hashToken(token), expiresAt); err != nil {
		return "", time.Time{}, err
	}
	log.Info().Int64("tenantID", tenantID).Time("expiresAt", expiresAt).Msg("Password reset token issued")
	return token, expiresAt, nil
}

// ResetPassword consumes a reset token and sets a new password. Existing sessions of the
// tenant are closed.
func (a *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	id, err := a.store.ConsumeResetToken(ctx, hashToken(token), hash, a.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	closed := a.sessions.DeleteTenant(id)
	log.Info().Int64("tenantID", id).Int("sessionsClosed", closed).Msg("Password reset")
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

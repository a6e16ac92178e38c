// Package store is the storage port of the concierge service. Every backend implements the same
// typed contract on top of sqlx, so rows are always mapped by column name through the same structs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"concierge-whatsapp/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

type TenantStore interface {
	CreateTenant(ctx context.Context, t models.NewTenant) (models.TenantPublic, error)
	GetTenant(ctx context.Context, id int64) (models.TenantWithCredentials, error)
	TenantByEmail(ctx context.Context, email string) (models.TenantWithCredentials, error)
	TenantByInboundNumber(ctx context.Context, number string) (models.TenantWithCredentials, error)
	OldestTenant(ctx context.Context) (models.TenantWithCredentials, error)
	ListTenants(ctx context.Context) ([]models.TenantPublic, error)
	ListTenantsWithCredentials(ctx context.Context) ([]models.TenantWithCredentials, error)
	CountTenants(ctx context.Context) (int64, error)
	UpdateTenant(ctx context.Context, id int64, u models.TenantUpdate) error
	UpdateTenantMessaging(ctx context.Context, id int64, c models.MessagingCredentials) error
	UpdateSandboxJoinCode(ctx context.Context, id int64, code string) error
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (int64, error)
	DeleteTenant(ctx context.Context, id int64) error
}

type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, phone string, tenantID int64) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, id int64) (models.Conversation, error)
	ListConversations(ctx context.Context, tenantID *int64) ([]models.ConversationSummary, error)
	SearchConversations(ctx context.Context, tenantID int64, query string) ([]models.ConversationSummary, error)
	SetAutoReply(ctx context.Context, id int64, autoReply bool) error
	DeleteAllConversations(ctx context.Context) error
}

type MessageStore interface {
	AppendMessage(ctx context.Context, m models.NewMessage) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	History(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
	HistoryUntil(ctx context.Context, conversationID, untilID int64, limit int) ([]models.Message, error)
}

type RoutingStore interface {
	SetPhoneRouting(ctx context.Context, phone string, tenantID int64) error
	GetPhoneRouting(ctx context.Context, phone string) (models.PhoneRouting, error)
	ListPhoneRouting(ctx context.Context) ([]models.PhoneRouting, error)
	DeletePhoneRouting(ctx context.Context, phone string) error
}

type FAQStore interface {
	ListFAQs(ctx context.Context, tenantID int64) ([]models.FAQ, error)
	ListAllFAQs(ctx context.Context) ([]models.FAQ, error)
	GetFAQ(ctx context.Context, id int64) (models.FAQ, error)
	CreateFAQ(ctx context.Context, tenantID int64, question, answer string) (models.FAQ, error)
	UpdateFAQ(ctx context.Context, id int64, question, answer string) error
	DeleteFAQ(ctx context.Context, id int64) error
}

// WorkspaceStore holds the dashboard-only records: templates, tags and notes.
type WorkspaceStore interface {
	ListTemplates(ctx context.Context, tenantID int64) ([]models.Template, error)
	CreateTemplate(ctx context.Context, tenantID int64, name, content string) (models.Template, error)
	UpdateTemplate(ctx context.Context, id, tenantID int64, name, content string) error
	DeleteTemplate(ctx context.Context, id, tenantID int64) error

	ListTags(ctx context.Context, conversationID int64) ([]string, error)
	AddTag(ctx context.Context, conversationID int64, tag string) error
	RemoveTag(ctx context.Context, conversationID int64, tag string) error

	ListNotes(ctx context.Context, conversationID int64) ([]models.Note, error)
	AddNote(ctx context.Context, conversationID int64, body string) (models.Note, error)
	DeleteNote(ctx context.Context, id, conversationID int64) error
}

type FeatureRequestStore interface {
	ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error)
	CreateFeatureRequest(ctx context.Context, tenantID *int64, title, description, priority string) (models.FeatureRequest, error)
	UpdateFeatureRequestStatus(ctx context.Context, id int64, status string) error
	DeleteFeatureRequest(ctx context.Context, id int64) error
}

type StatisticsStore interface {
	Statistics(ctx context.Context, tenantID *int64) (models.Statistics, error)
}

// Store is the full storage port.
type Store interface {
	TenantStore
	ConversationStore
	MessageStore
	RoutingStore
	FAQStore
	WorkspaceStore
	FeatureRequestStore
	StatisticsStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Backend() string
}

// SQLStore implements Store for one SQL backend.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

var _ Store = (*SQLStore)(nil)

func newSQLStore(db *sqlx.DB, d Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Backend returns the dialect name, "postgres" or "sqlite".
func (s *SQLStore) Backend() string {
	return s.dialect.Name
}

// DB exposes the underlying handle, used to share the pool with other components.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist. Statements are idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.Name, err)
		}
	}
	log.Info().Str("backend", s.dialect.Name).Int("statements", len(s.dialect.Schema)).Msg("Database schema is up to date")
	return nil
}

// q rebinds a "?" query for the backend.
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// wrap converts driver errors into the store's sentinel errors.
func (s *SQLStore) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *SQLStore) requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// now is the single clock used for stored timestamps. Microsecond precision matches Postgres.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

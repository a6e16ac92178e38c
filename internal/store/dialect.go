package store

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures what differs between backends: DDL and error classification.
// Queries themselves are portable and rebound per driver by sqlx.
type Dialect struct {
	Name              string
	DriverName        string
	Schema            []string
	IsUniqueViolation func(error) bool
}

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewPostgres returns a store over a lib/pq connection.
func NewPostgres(db *sqlx.DB) (*SQLStore, error) {
	return newSQLStore(db, postgresDialect)
}

// NewSQLite returns a store over a modernc.org/sqlite connection.
func NewSQLite(db *sqlx.DB) (*SQLStore, error) {
	return newSQLStore(db, sqliteDialect)
}

// New picks the dialect matching the handle's driver.
func New(db *sqlx.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	switch db.DriverName() {
	case postgresDialect.DriverName:
		return NewPostgres(db)
	case sqliteDialect.DriverName:
		return NewSQLite(db)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.DriverName())
	}
}

var postgresDialect = Dialect{
	Name:       "postgres",
	DriverName: "postgres",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			whatsapp_number TEXT NOT NULL DEFAULT '',
			twilio_account_sid TEXT NOT NULL DEFAULT '',
			twilio_auth_token TEXT NOT NULL DEFAULT '',
			sandbox_join_code TEXT NOT NULL DEFAULT '',
			reset_token_hash TEXT NOT NULL DEFAULT '',
			reset_token_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_whatsapp_number ON tenants (whatsapp_number)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			phone_number TEXT NOT NULL,
			auto_reply BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			last_message_at TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, phone_number)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			sender TEXT NOT NULL CHECK (sender IN ('client', 'concierge')),
			body TEXT NOT NULL,
			ai_suggestion TEXT,
			is_ai BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS phone_routing (
			phone_number TEXT PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS faqs (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS response_templates (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_tags (
			conversation_id BIGINT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (conversation_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_notes (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			note TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feature_requests (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT REFERENCES tenants (id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

var sqliteDialect = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			whatsapp_number TEXT NOT NULL DEFAULT '',
			twilio_account_sid TEXT NOT NULL DEFAULT '',
			twilio_auth_token TEXT NOT NULL DEFAULT '',
			sandbox_join_code TEXT NOT NULL DEFAULT '',
			reset_token_hash TEXT NOT NULL DEFAULT '',
			reset_token_expires_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_whatsapp_number ON tenants (whatsapp_number)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			phone_number TEXT NOT NULL,
			auto_reply INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			last_message_at DATETIME NOT NULL,
			UNIQUE (tenant_id, phone_number)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			sender TEXT NOT NULL CHECK (sender IN ('client', 'concierge')),
			body TEXT NOT NULL,
			ai_suggestion TEXT,
			is_ai INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS phone_routing (
			phone_number TEXT PRIMARY KEY,
			tenant_id INTEGER NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS faqs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS response_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_tags (
			conversation_id INTEGER NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (conversation_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feature_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER REFERENCES tenants (id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return false
	},
}

package db

import (
	"fmt"
	stlog "log"
	"os"
	"path/filepath"
	"time"

	"concierge-whatsapp/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormpg "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Handles bundles the two views of one connection pool: sqlx for the domain tables
// and GORM for the reply job outbox.
type Handles struct {
	SQL  *sqlx.DB
	Gorm *gorm.DB
}

// Close releases the shared pool.
func (h *Handles) Close() error {
	if h == nil || h.SQL == nil {
		return nil
	}
	return h.SQL.Close()
}

// SQLiteDSN builds the modernc.org/sqlite DSN for a database file.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Open connects to Postgres when DATABASE_URL is set, otherwise to the SQLite file.
func Open(cfg *config.Config) (*Handles, error) {
	if cfg.UsesPostgres() {
		return OpenPostgres(cfg.DatabaseURL)
	}
	if cfg.DatabaseURL != "" {
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme, expected postgres:// or postgresql://")
	}
	return OpenSQLite(cfg.SQLitePath)
}

func OpenPostgres(dsn string) (*Handles, error) {
	sqlDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)

	gdb, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB.DB}), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to attach gorm to postgres: %w", err)
	}

	log.Info().Str("backend", "postgres").Msg("Database connection established successfully.")
	return &Handles{SQL: sqlDB, Gorm: gdb}, nil
}

// OpenSQLite opens (and creates) the database file. A single connection serializes writers.
func OpenSQLite(path string) (*Handles, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sqlx.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	gdb, err := gorm.Open(gormsqlite.Dialector{DriverName: "sqlite", Conn: sqlDB.DB}, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to attach gorm to sqlite: %w", err)
	}

	log.Info().Str("backend", "sqlite").Str("path", path).Msg("Database connection established successfully.")
	return &Handles{SQL: sqlDB, Gorm: gdb}, nil
}

// MigrateDB runs GORM's AutoMigrate for the GORM-managed models.
func (h *Handles) MigrateDB(modelsToMigrate ...interface{}) error {
	if h == nil || h.Gorm == nil {
		return fmt.Errorf("database not initialized, call Open first")
	}
	if len(modelsToMigrate) == 0 {
		return fmt.Errorf("no models provided for migration")
	}
	if err := h.Gorm.AutoMigrate(modelsToMigrate...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	log.Info().Int("models_migrated", len(modelsToMigrate)).Msg("Database migration completed successfully for provided models.")
	return nil
}

// slowThreshold is the query duration GORM reports as slow.
const slowThreshold = 200 * time.Millisecond

// newGormLogger routes GORM output through zerolog at a matching level.
func newGormLogger() gormlogger.Interface {
	var level gormlogger.LogLevel
	switch zerolog.GlobalLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		level = gormlogger.Info
	case zerolog.InfoLevel, zerolog.WarnLevel:
		level = gormlogger.Warn
	case zerolog.Disabled:
		level = gormlogger.Silent
	default:
		level = gormlogger.Error
	}

	return gormlogger.New(
		stlog.New(log.Logger, "", 0),
		gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Package sessionlog persists a durable ledger of pipeline sessions —
// one row per open/close (or crash) cycle — across process restarts,
// supplementing the orchestrator's in-memory Observable state, which
// does not survive a restart. Grounded on the teacher's GORM-based
// database/repository layer, trimmed to the one table this domain needs.
package sessionlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kestrelav/streamcore/internal/config"
)

// Session is one row of the ledger: a single Open→Close (or crash) cycle
// of the pipeline.
type Session struct {
	ID            string `gorm:"primaryKey"`
	TraceID       string
	DescriptorURI string
	ContainerType string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	LastError     string
}

func (Session) TableName() string { return "sessions" }

// Store wraps a GORM connection scoped to the session ledger.
type Store struct {
	db *gorm.DB
}

// Open connects to cfg's database and migrates the session table.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dialector, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening session ledger: %w", err)
	}

	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("migrating session ledger: %w", err)
	}

	return &Store{db: db}, nil
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Begin records a new session opening against descriptorURI, returning the
// ULID assigned to it. traceID is the orchestrator's per-cycle correlation
// id (see internal/orchestrator.Pipeline.TraceID), stored alongside the
// ledger's own ULID so the two identifiers can be cross-referenced in logs.
func (s *Store) Begin(ctx context.Context, traceID, descriptorURI, containerType string) (string, error) {
	id := ulid.Make().String()
	session := Session{
		ID:            id,
		TraceID:       traceID,
		DescriptorURI: descriptorURI,
		ContainerType: containerType,
		OpenedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", fmt.Errorf("recording session open: %w", err)
	}
	return id, nil
}

// End records a session's closing timestamp and, if lastErr is non-nil, its
// final error. A second call for the same id overwrites the closing
// timestamp; an id with no row is not reported as an error.
func (s *Store) End(ctx context.Context, id string, lastErr error) error {
	now := time.Now()
	updates := map[string]any{"closed_at": &now}
	if lastErr != nil {
		updates["last_error"] = lastErr.Error()
	}
	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("recording session close: %w", res.Error)
	}
	return nil
}

// Recent returns the most recent limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	var out []Session
	if err := s.db.WithContext(ctx).Order("opened_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return out, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

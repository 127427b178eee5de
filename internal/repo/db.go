// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres (pgx), and schema migrations.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/support-chat-backend/internal/config"
	"github.com/tbourn/support-chat-backend/internal/domain"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// Open selects the store from cfg: Postgres when a URL is configured,
// otherwise a SQLite file at cfg.Path. The returned handle is instrumented
// with OpenTelemetry spans.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.URL != "" {
		db, err = OpenPostgres(ctx, cfg.URL, cfg.SSL, cfg.MaxConns)
	} else {
		db, err = OpenSQLite(cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("db tracing: %w", err)
	}
	return db, nil
}

// sqlitePragmas are applied by the driver to every pooled connection.
// _txlock=immediate takes the write lock at BEGIN, so writers queue on
// busy_timeout instead of failing with SQLITE_BUSY when they upgrade.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_txlock=immediate",
}

// sqliteDSN appends the connection PRAGMAs to path.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// OpenSQLite opens (or creates) a SQLite database. PRAGMAs travel in the DSN
// so that every connection in the pool carries them.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// OpenPostgres connects through pgx's database/sql adapter and hands the
// pool to GORM. When ssl is set and the DSN carries no sslmode, sslmode=require
// is added.
func OpenPostgres(ctx context.Context, dsn string, ssl bool, maxConns int) (*gorm.DB, error) {
	if ssl {
		dsn = withSSLMode(dsn)
	}
	pgcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pgcfg)
	if maxConns < 1 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{TranslateError: true})
}

// withSSLMode appends sslmode=require to URL or keyword/value DSNs that do
// not already specify a mode.
func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		q := u.Query()
		q.Set("sslmode", "require")
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " sslmode=require"
}

// AutoMigrate creates or updates every table used by the application.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Chat{},
		&domain.Message{},
		&domain.Feedback{},
		&domain.Idempotency{},
	)
}

// IsUniqueViolation reports whether err came from a unique constraint on
// either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR
// UPDATE. SQLite has no row locks; handles from OpenSQLite begin every
// transaction IMMEDIATE, which holds the database write lock instead.
func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() != "sqlite"
}

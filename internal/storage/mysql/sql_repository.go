package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config describes the MySQL connection and pool limits.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SQLRepository archives plan records in MySQL.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository opens the pool, verifies connectivity, and bootstraps the
// schema.
func NewSQLRepository(ctx context.Context, cfg Config) (*SQLRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &SQLRepository{db: db}
	if err := repo.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func openDatabase(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql DSN must not be empty")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func (r *SQLRepository) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS plan_records (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
        session_key VARCHAR(64) NOT NULL DEFAULT '',
        kind VARCHAR(16) NOT NULL,
        summary TEXT NOT NULL,
        text MEDIUMTEXT NOT NULL,
        model VARCHAR(128) NOT NULL DEFAULT '',
        created_at BIGINT NOT NULL,
        KEY idx_session_key (session_key),
        KEY idx_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	if err != nil {
		return fmt.Errorf("bootstrap plan_records table: %w", err)
	}
	return nil
}

// Save implements PlanRepository.
func (r *SQLRepository) Save(ctx context.Context, record PlanRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plan_records (session_key, kind, summary, text, model, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.SessionKey, record.Kind, record.Summary, record.Text, record.Model, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert plan record: %w", err)
	}
	return nil
}

// ListLatest implements PlanRepository, newest first.
func (r *SQLRepository) ListLatest(ctx context.Context, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_key, kind, summary, text, model, created_at
         FROM plan_records ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query plan records: %w", err)
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		var record PlanRecord
		if err := rows.Scan(&record.SessionKey, &record.Kind, &record.Summary,
			&record.Text, &record.Model, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan records: %w", err)
	}
	return records, nil
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

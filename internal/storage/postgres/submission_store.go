// Package postgres provides Postgres-backed persistence for submissions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/augmentweb/internal/dataset"
	"github.com/JakeFAU/augmentweb/internal/intake"
)

const defaultTable = "submissions"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SubmissionStoreConfig controls the Postgres connection pool.
type SubmissionStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// SubmissionStore writes submission rows into Postgres.
type SubmissionStore struct {
	pool  pool
	table string
}

// NewSubmissionStore creates a Postgres-backed SubmissionStore.
func NewSubmissionStore(ctx context.Context, cfg SubmissionStoreConfig) (*SubmissionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SubmissionStore{pool: p, table: table}, nil
}

// NewSubmissionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSubmissionStoreWithPool(p pool, table string) (*SubmissionStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &SubmissionStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *SubmissionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *SubmissionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the submissions table when it does not exist.
func (s *SubmissionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            TEXT PRIMARY KEY,
	dataset       TEXT NOT NULL DEFAULT '',
	upload_name   TEXT NOT NULL DEFAULT '',
	upload_uri    TEXT NOT NULL DEFAULT '',
	upload_bytes  BIGINT NOT NULL DEFAULT 0,
	upload_sha256 TEXT NOT NULL DEFAULT '',
	classes       TEXT[] NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	received_at   TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// CreateSubmission inserts a submission row.
func (s *SubmissionStore) CreateSubmission(ctx context.Context, sub intake.Submission) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("submission store is not configured")
	}
	if sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	classes := sub.Classes
	if classes == nil {
		classes = []string{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	dataset,
	upload_name,
	upload_uri,
	upload_bytes,
	upload_sha256,
	classes,
	status,
	received_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	args := []any{
		sub.ID,
		string(sub.Dataset),
		sub.UploadName,
		sub.UploadURI,
		sub.UploadBytes,
		sub.UploadSHA256,
		classes,
		string(sub.Status),
		sub.ReceivedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetSubmission loads a submission row by ID.
func (s *SubmissionStore) GetSubmission(ctx context.Context, id string) (intake.Submission, error) {
	if s == nil || s.pool == nil {
		return intake.Submission{}, fmt.Errorf("submission store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, dataset, upload_name, upload_uri, upload_bytes, upload_sha256, classes, status, received_at
FROM %s
WHERE id = $1`, s.table)

	var (
		sub     intake.Submission
		preset  string
		status  string
		classes []string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&preset,
		&sub.UploadName,
		&sub.UploadURI,
		&sub.UploadBytes,
		&sub.UploadSHA256,
		&classes,
		&status,
		&sub.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return intake.Submission{}, intake.ErrNotFound
	}
	if err != nil {
		return intake.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	sub.Dataset = dataset.Preset(preset)
	sub.Status = intake.Status(status)
	if len(classes) > 0 {
		sub.Classes = classes
	}
	return sub, nil
}

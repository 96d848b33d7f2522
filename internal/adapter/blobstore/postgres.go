// Package blobstore provides the persistence backends for cycle snapshots
// and decisions: Postgres for deployments, an in-memory map for development
// and tests.
package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores blobs in a single key-value table. It implements
// domain.BlobStore.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres connects to the database and ensures the blobs table exists.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure blobs table: %w", err)
	}
	return &Postgres{db: db, logger: logger}, nil
}

// Put writes a blob, overwriting any existing value for the key.
func (p *Postgres) Put(ctx context.Context, key string, blob []byte) error {
	query, args, err := putQuery(key, blob)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

// List returns all keys with the given prefix in ascending order.
func (p *Postgres) List(ctx context.Context, prefix string) ([]string, error) {
	query, args, err := listQuery(prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := p.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, fmt.Errorf("list blobs %s: %w", prefix, err)
	}
	return keys, nil
}

// Get returns the blob stored under the key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := getQuery(key)
	if err != nil {
		return nil, err
	}
	var blob []byte
	if err := p.db.GetContext(ctx, &blob, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob not found: %s", key)
		}
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return blob, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func putQuery(key string, blob []byte) (string, []any, error) {
	return psql.Insert("blobs").
		Columns("key", "value").
		Values(key, blob).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()").
		ToSql()
}

func listQuery(prefix string) (string, []any, error) {
	return psql.Select("key").
		From("blobs").
		Where(sq.Like{"key": prefix + "%"}).
		OrderBy("key ASC").
		ToSql()
}

func getQuery(key string) (string, []any, error) {
	return psql.Select("value").
		From("blobs").
		Where(sq.Eq{"key": key}).
		ToSql()
}

// Package postgres provides the Postgres-backed EntityStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/schema"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// EntityStore persists entities in Postgres. Get-or-create relies on the
// unique natural-key constraints, so concurrent writers converge on one row.
type EntityStore struct {
	pool pool
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*EntityStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres_dsn is required")
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
		return nil, fmt.Errorf("connect postgres: %w: %w", crawler.ErrStorageUnavailable, err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", crawler.ErrStorageUnavailable, err)
	}
	return &EntityStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*EntityStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EntityStore{pool: p}, nil
}

// Migrate creates the tables when they do not exist.
func (s *EntityStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema.CreateStatements(schema.Postgres) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

// Resolve implements crawler.EntityStore.
func (s *EntityStore) Resolve(ctx context.Context, key crawler.Key, attrs crawler.Attrs) (crawler.Row, bool, error) {
	if err := key.Validate(); err != nil {
		return crawler.Row{}, false, err
	}
	e, err := schema.EntityFor(key.Kind)
	if err != nil {
		return crawler.Row{}, false, err
	}
	args := append(e.KeyValues(key), e.AttrValues(attrs)...)
	var id int64
	err = s.pool.QueryRow(ctx, e.InsertSQL(schema.Postgres), args...).Scan(&id)
	switch {
	case err == nil:
		return crawler.Row{ID: id, Key: key, Attrs: attrs}, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		row, err := s.Lookup(ctx, key)
		return row, false, err
	default:
		return crawler.Row{}, false, classify("insert "+e.Table, err)
	}
}

// Lookup implements crawler.EntityStore.
func (s *EntityStore) Lookup(ctx context.Context, key crawler.Key) (crawler.Row, error) {
	e, err := schema.EntityFor(key.Kind)
	if err != nil {
		return crawler.Row{}, err
	}
	row := crawler.Row{Key: key}
	dest := append([]any{&row.ID}, e.AttrTargets(&row.Attrs)...)
	err = s.pool.QueryRow(ctx, e.SelectSQL(schema.Postgres), e.KeyValues(key)...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Row{}, fmt.Errorf("%s: %w", key, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Row{}, classify("select "+e.Table, err)
	}
	return row, nil
}

// Update implements crawler.EntityStore.
func (s *EntityStore) Update(ctx context.Context, row crawler.Row) error {
	e, err := schema.EntityFor(row.Key.Kind)
	if err != nil {
		return err
	}
	args := append(e.AttrValues(row.Attrs), row.ID)
	tag, err := s.pool.Exec(ctx, e.UpdateSQL(schema.Postgres), args...)
	if err != nil {
		return classify("update "+e.Table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s id %d: %w", row.Key, row.ID, crawler.ErrNotFound)
	}
	return nil
}

// MergeEdge implements crawler.EntityStore.
func (s *EntityStore) MergeEdge(ctx context.Context, set crawler.EdgeSet, parentID, childID int64) error {
	e, err := schema.EdgeFor(set)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, e.InsertSQL(schema.Postgres), parentID, childID); err != nil {
		return classify("insert "+e.Table(), err)
	}
	return nil
}

// MergeEdges implements crawler.EntityStore with a single statement.
func (s *EntityStore) MergeEdges(ctx context.Context, set crawler.EdgeSet, parentID int64, childIDs []int64) error {
	e, err := schema.EdgeFor(set)
	if err != nil {
		return err
	}
	if len(childIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING",
		e.Table(), e.Parent, e.Child,
	)
	if _, err := s.pool.Exec(ctx, query, parentID, childIDs); err != nil {
		return classify("batch insert "+e.Table(), err)
	}
	return nil
}

// Children implements crawler.EntityStore.
func (s *EntityStore) Children(ctx context.Context, set crawler.EdgeSet, parentID int64) ([]int64, error) {
	e, err := schema.EdgeFor(set)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, e.ChildrenSQL(schema.Postgres), parentID)
	if err != nil {
		return nil, classify("select "+e.Table(), err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, classify("scan "+e.Table(), err)
	}
	return ids, nil
}

// Count implements crawler.EntityStore.
func (s *EntityStore) Count(ctx context.Context, kind crawler.Kind) (int, error) {
	e, err := schema.EntityFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, e.CountSQL()).Scan(&n); err != nil {
		return 0, classify("count "+e.Table, err)
	}
	return int(n), nil
}

// AddFlat implements crawler.EntityStore.
func (s *EntityStore) AddFlat(ctx context.Context, flat crawler.Flat) (crawler.Flat, error) {
	err := s.pool.QueryRow(ctx, schema.InsertFlatSQL(schema.Postgres), schema.FlatValues(flat)...).Scan(&flat.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return crawler.Flat{}, fmt.Errorf("flat owner community %d: %w", flat.CommunityID, crawler.ErrNotFound)
		}
		return crawler.Flat{}, classify("insert flat", err)
	}
	return flat, nil
}

// Flats implements crawler.EntityStore.
func (s *EntityStore) Flats(ctx context.Context, communityID int64) ([]crawler.Flat, error) {
	rows, err := s.pool.Query(ctx, schema.SelectFlatsSQL(schema.Postgres), communityID)
	if err != nil {
		return nil, classify("select flat", err)
	}
	defer rows.Close()
	var out []crawler.Flat
	for rows.Next() {
		var f crawler.Flat
		if err := rows.Scan(schema.FlatTargets(&f)...); err != nil {
			return nil, classify("scan flat", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate flat", err)
	}
	return out, nil
}

// Close releases the underlying pool resources.
func (s *EntityStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const foreignKeyViolation = "23503"

// classify tags connectivity failures with crawler.ErrStorageUnavailable.
// Server-side errors other than connection and shutdown classes are
// programmer errors and stay untagged.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorageUnavailable, err)
}

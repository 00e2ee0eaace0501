// Package sqlite provides an EntityStore on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/schema"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config locates the database file.
type Config struct {
	Path string
}

// EntityStore persists entities in SQLite through a single connection, which
// serializes every write.
type EntityStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open creates the database file if needed, applies pragmas and migrates.
func Open(ctx context.Context, cfg Config) (*EntityStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.sqlite_path is required")
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w: %w", crawler.ErrStorageUnavailable, err)
	}

	s := &EntityStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *EntityStore) migrate(ctx context.Context) error {
	for _, stmt := range schema.CreateStatements(schema.SQLite) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Resolve implements crawler.EntityStore.
func (s *EntityStore) Resolve(ctx context.Context, key crawler.Key, attrs crawler.Attrs) (crawler.Row, bool, error) {
	if err := key.Validate(); err != nil {
		return crawler.Row{}, false, err
	}
	if err := s.usable(); err != nil {
		return crawler.Row{}, false, err
	}
	e, err := schema.EntityFor(key.Kind)
	if err != nil {
		return crawler.Row{}, false, err
	}
	args := append(e.KeyValues(key), e.AttrValues(attrs)...)
	var id int64
	err = s.db.QueryRowContext(ctx, e.InsertSQL(schema.SQLite), args...).Scan(&id)
	switch {
	case err == nil:
		return crawler.Row{ID: id, Key: key, Attrs: attrs}, true, nil
	case errors.Is(err, sql.ErrNoRows):
		row, err := s.Lookup(ctx, key)
		return row, false, err
	default:
		return crawler.Row{}, false, classify("insert "+e.Table, err)
	}
}

// Lookup implements crawler.EntityStore.
func (s *EntityStore) Lookup(ctx context.Context, key crawler.Key) (crawler.Row, error) {
	if err := s.usable(); err != nil {
		return crawler.Row{}, err
	}
	e, err := schema.EntityFor(key.Kind)
	if err != nil {
		return crawler.Row{}, err
	}
	row := crawler.Row{Key: key}
	dest := append([]any{&row.ID}, e.AttrTargets(&row.Attrs)...)
	err = s.db.QueryRowContext(ctx, e.SelectSQL(schema.SQLite), e.KeyValues(key)...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Row{}, fmt.Errorf("%s: %w", key, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Row{}, classify("select "+e.Table, err)
	}
	return row, nil
}

// Update implements crawler.EntityStore.
func (s *EntityStore) Update(ctx context.Context, row crawler.Row) error {
	if err := s.usable(); err != nil {
		return err
	}
	e, err := schema.EntityFor(row.Key.Kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, e.UpdateSQL(schema.SQLite), append(e.AttrValues(row.Attrs), row.ID)...)
	if err != nil {
		return classify("update "+e.Table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s id %d: %w", row.Key, row.ID, crawler.ErrNotFound)
	}
	return nil
}

// MergeEdge implements crawler.EntityStore.
func (s *EntityStore) MergeEdge(ctx context.Context, set crawler.EdgeSet, parentID, childID int64) error {
	if err := s.usable(); err != nil {
		return err
	}
	e, err := schema.EdgeFor(set)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, e.InsertSQL(schema.SQLite), parentID, childID); err != nil {
		return classify("insert "+e.Table(), err)
	}
	return nil
}

// MergeEdges implements crawler.EntityStore in one transaction.
func (s *EntityStore) MergeEdges(ctx context.Context, set crawler.EdgeSet, parentID int64, childIDs []int64) (err error) {
	if err := s.usable(); err != nil {
		return err
	}
	e, err := schema.EdgeFor(set)
	if err != nil {
		return err
	}
	if len(childIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin "+e.Table(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, e.InsertSQL(schema.SQLite))
	if err != nil {
		return classify("prepare "+e.Table(), err)
	}
	defer stmt.Close()
	for _, child := range childIDs {
		if _, err := stmt.ExecContext(ctx, parentID, child); err != nil {
			return classify("insert "+e.Table(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("commit "+e.Table(), err)
	}
	return nil
}

// Children implements crawler.EntityStore.
func (s *EntityStore) Children(ctx context.Context, set crawler.EdgeSet, parentID int64) ([]int64, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	e, err := schema.EdgeFor(set)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, e.ChildrenSQL(schema.SQLite), parentID)
	if err != nil {
		return nil, classify("select "+e.Table(), err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan "+e.Table(), err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate "+e.Table(), err)
	}
	return ids, nil
}

// Count implements crawler.EntityStore.
func (s *EntityStore) Count(ctx context.Context, kind crawler.Kind) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	e, err := schema.EntityFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, e.CountSQL()).Scan(&n); err != nil {
		return 0, classify("count "+e.Table, err)
	}
	return n, nil
}

// AddFlat implements crawler.EntityStore.
func (s *EntityStore) AddFlat(ctx context.Context, flat crawler.Flat) (crawler.Flat, error) {
	if err := s.usable(); err != nil {
		return crawler.Flat{}, err
	}
	err := s.db.QueryRowContext(ctx, schema.InsertFlatSQL(schema.SQLite), schema.FlatValues(flat)...).Scan(&flat.ID)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return crawler.Flat{}, fmt.Errorf("flat owner community %d: %w", flat.CommunityID, crawler.ErrNotFound)
		}
		return crawler.Flat{}, classify("insert flat", err)
	}
	return flat, nil
}

// Flats implements crawler.EntityStore.
func (s *EntityStore) Flats(ctx context.Context, communityID int64) ([]crawler.Flat, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, schema.SelectFlatsSQL(schema.SQLite), communityID)
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

// Close closes the database; later calls fail with crawler.ErrStorageUnavailable.
func (s *EntityStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *EntityStore) usable() error {
	if s.closed.Load() {
		return fmt.Errorf("sqlite store closed: %w", crawler.ErrStorageUnavailable)
	}
	return nil
}

// classify tags I/O-level failures with crawler.ErrStorageUnavailable.
// Constraint and SQL errors are programmer errors and stay untagged.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen,
			sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrFull, sqlite3.ErrReadonly:
			return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorageUnavailable, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorageUnavailable, err)
}

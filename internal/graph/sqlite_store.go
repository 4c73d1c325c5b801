package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/models"
)

// SQLiteStore keeps the property graph in two tables. It is used for local
// runs and tests; read queries are SQL over the nodes and edges tables.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ Backend = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	handle TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	dedup_key TEXT,
	props TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_kind_key ON nodes(kind, dedup_key);

CREATE TABLE IF NOT EXISTS edges (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	handle TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	label TEXT NOT NULL,
	from_handle TEXT NOT NULL REFERENCES nodes(handle) ON DELETE CASCADE,
	to_handle TEXT NOT NULL REFERENCES nodes(handle) ON DELETE CASCADE,
	evidence TEXT,
	props TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_handle, label);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_handle, label);
`

// NewSQLiteStore opens (or creates) a graph database file. Use ":memory:"
// for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.ConfigErrorf("create database directory %s: %v", dir, err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.StoreUnavailable(err, "connect to sqlite")
	}

	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive across calls.
	db.SetMaxOpenConns(1)

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA busy_timeout = 5000")
	if path != ":memory:" {
		db.Exec("PRAGMA journal_mode = WAL")
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.StoreUnavailable(err, "init sqlite schema")
	}

	logger := slog.Default().With("component", "sqlite")
	logger.Info("sqlite store opened", "path", path)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// DB exposes the underlying handle for tests and maintenance tooling
func (s *SQLiteStore) DB() *sqlx.DB { return s.db }

func (s *SQLiteStore) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.StoreUnavailable(err, "sqlite health check failed")
	}
	return nil
}

func (s *SQLiteStore) Dialect() Dialect { return DialectSQL }

// Read runs a SQL query. Parameters bind by name (:name).
func (s *SQLiteStore) Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	var (
		rows *sqlx.Rows
		err  error
	)
	if len(params) == 0 {
		rows, err = s.db.QueryxContext(ctx, query)
	} else {
		rows, err = s.db.NamedQueryContext(ctx, query, params)
	}
	if err != nil {
		return nil, classifySQLiteError(err, "sqlite read query failed")
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, classifySQLiteError(err, "sqlite row scan failed")
		}
		for k, v := range row {
			row[k] = normalizeSQLValue(k, v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(err, "sqlite read query failed")
	}
	return out, nil
}

// Write runs fn in one SQL transaction, rolling back on any error
func (s *SQLiteStore) Write(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classifySQLiteError(err, "begin sqlite transaction")
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreUnavailable(err, "commit sqlite transaction")
	}
	return nil
}

// EnsureSchema adds the uniqueness index on dedup keys. It fails if the
// store already holds duplicates.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_nodes_dedup ON nodes(kind, dedup_key) WHERE dedup_key IS NOT NULL`)
	if err != nil {
		return classifySQLiteError(err, "create dedup index")
	}
	s.logger.Info("dedup index ensured")
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classifySQLiteError(err, "begin sqlite transaction")
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM edges", "DELETE FROM nodes"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifySQLiteError(err, "clear graph")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreUnavailable(err, "commit clear")
	}
	s.logger.Warn("graph cleared")
	return nil
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) FindByKey(ctx context.Context, kind models.Kind, key string) ([]models.Handle, error) {
	var handles []models.Handle
	err := t.tx.SelectContext(ctx, &handles,
		`SELECT handle FROM nodes WHERE kind = ? AND dedup_key = ? ORDER BY seq LIMIT 2`,
		string(kind), key)
	if err != nil {
		return nil, classifySQLiteError(err, fmt.Sprintf("find %s by key failed", kind))
	}
	return handles, nil
}

func (t *sqliteTx) CreateNode(ctx context.Context, kind models.Kind, props map[string]any) (models.Handle, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return "", errors.InternalErrorf("encode %s properties: %v", kind, err)
	}

	var dedupKey sql.NullString
	if kind.Deduplicated() {
		if key, ok := props[models.DedupProperty].(string); ok {
			dedupKey = sql.NullString{String: key, Valid: true}
		}
	}

	handle := models.Handle(uuid.NewString())
	now := time.Now().UTC()
	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO nodes (handle, kind, dedup_key, props, created_at, updated_at)
		VALUES (:handle, :kind, :dedup_key, :props, :now, :now)`,
		map[string]any{
			"handle":    string(handle),
			"kind":      string(kind),
			"dedup_key": dedupKey,
			"props":     string(data),
			"now":       now,
		})
	if err != nil {
		return "", classifySQLiteError(err, fmt.Sprintf("create %s failed", kind))
	}
	return handle, nil
}

func (t *sqliteTx) MergeNode(ctx context.Context, kind models.Kind, handle models.Handle, props map[string]any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return errors.InternalErrorf("encode %s properties: %v", kind, err)
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE nodes SET props = json_patch(props, ?), updated_at = ? WHERE handle = ? AND kind = ?`,
		string(data), time.Now().UTC(), string(handle), string(kind))
	if err != nil {
		return classifySQLiteError(err, fmt.Sprintf("merge %s failed", kind))
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return errors.StoreUnavailable(fmt.Errorf("record %s not found", handle), fmt.Sprintf("merge %s failed", kind))
	}
	return nil
}

func (t *sqliteTx) CreateEdge(ctx context.Context, spec models.RelSpec, from, to models.Handle, props map[string]any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return errors.InternalErrorf("encode %s properties: %v", spec.Kind, err)
	}

	var evidence sql.NullString
	if ev, ok := props["evidence"].(string); ok {
		evidence = sql.NullString{String: ev, Valid: true}
	}

	// endpoint labels are checked in the insert so a stale handle cannot
	// produce a mistyped edge
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO edges (handle, kind, label, from_handle, to_handle, evidence, props, created_at)
		SELECT ?, ?, ?, f.handle, t.handle, ?, ?, ?
		FROM nodes f, nodes t
		WHERE f.handle = ? AND f.kind = ? AND t.handle = ? AND t.kind = ?`,
		uuid.NewString(), string(spec.Kind), spec.Label, evidence, string(data), time.Now().UTC(),
		string(from), string(spec.Source), string(to), string(spec.Target))
	if err != nil {
		return classifySQLiteError(err, fmt.Sprintf("create %s edge failed", spec.Kind))
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return errors.StoreUnavailable(fmt.Errorf("endpoint %s or %s not found", from, to),
			fmt.Sprintf("create %s edge failed", spec.Kind))
	}
	return nil
}

// classifySQLiteError treats SQL parse and schema errors as query errors and
// everything else as the store being unavailable
func classifySQLiteError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, typed := errors.As(err); typed {
		return err
	}
	var sqlErr sqlite3.Error
	if stderrors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrError, sqlite3.ErrRange, sqlite3.ErrMismatch:
			return errors.QueryError(err, message)
		}
		return errors.StoreUnavailable(err, message).WithContext("code", int(sqlErr.Code))
	}
	// sqlx reports unknown named parameters without a driver error
	if isBindError(err) {
		return errors.QueryError(err, message)
	}
	return errors.StoreUnavailable(err, message)
}

func isBindError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "could not find name") || strings.Contains(msg, "sql: expected")
}

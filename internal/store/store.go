// Package store persists correlation records to SQLite.
//
// Batches commit all-or-nothing inside an IMMEDIATE transaction; a failed
// commit rolls the whole batch back and surfaces as an error the caller
// can log and drop. The schema mirrors the audit table the records feed:
// one row per sub-request, keyed by (parent invocation, invocation).
package store

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fleetwatch/canary/internal/correlate"
)

const schema = `
CREATE TABLE IF NOT EXISTS synthetics (
	parent_invocation_id TEXT NOT NULL,
	invocation_id        TEXT NOT NULL,
	service_id           TEXT NOT NULL,
	instance_id          TEXT NOT NULL,
	miner_uid            TEXT NOT NULL,
	miner_hotkey         TEXT NOT NULL,
	has_error            INTEGER NOT NULL DEFAULT 0,
	created_at           INTEGER NOT NULL,
	PRIMARY KEY (parent_invocation_id, invocation_id)
);
CREATE INDEX IF NOT EXISTS idx_synthetics_instance ON synthetics (instance_id);
CREATE INDEX IF NOT EXISTS idx_synthetics_hotkey ON synthetics (miner_hotkey);
`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file; created if absent.
	Path string
	// PoolSize bounds concurrent connections. Defaults to NumCPU, min 2.
	PoolSize int
}

// Store is a SQLite-backed sink for correlation records. Safe for
// concurrent use; individual connections are not shared.
type Store struct {
	pool *sqlitex.Pool
}

// Open creates (or opens) the database at cfg.Path, applies WAL pragmas
// to every connection, and ensures the schema exists.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 2 {
			poolSize = 2
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	return &Store{pool: pool}, nil
}

// prepareConnection applies pragmas and ensures the schema, once per
// pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Close closes the connection pool, blocking until borrowed connections
// are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// SaveBatch commits all records in a single IMMEDIATE transaction.
// An empty batch is a no-op. Any failure rolls the whole batch back.
func (s *Store) SaveBatch(ctx context.Context, records []correlate.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	conn, takeErr := s.pool.Take(ctx)
	if takeErr != nil {
		return fmt.Errorf("store: save batch: %w", takeErr)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range records {
		if err = insertRecord(conn, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

// insertRecord writes one correlation record row.
func insertRecord(conn *sqlite.Conn, r *correlate.Record) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO synthetics (
			parent_invocation_id, invocation_id, service_id, instance_id,
			miner_uid, miner_hotkey, has_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				r.ParentInvocationID,
				r.InvocationID,
				r.ServiceID,
				r.InstanceID,
				r.MinerUID,
				r.MinerHotkey,
				boolToInt(r.HasError),
				r.CreatedAt.UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("store: insert record %s/%s: %w", r.ParentInvocationID, r.InvocationID, err)
	}
	return nil
}

// CountRecords returns the number of persisted records, optionally
// scoped to one parent invocation. Used by audit tooling and tests.
func (s *Store) CountRecords(ctx context.Context, parentID string) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT COUNT(*) FROM synthetics"
	var args []interface{}
	if parentID != "" {
		query += " WHERE parent_invocation_id = ?"
		args = append(args, parentID)
	}

	count := 0
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return count, nil
}

// Record mirrors a persisted row for read-back.
type Record = correlate.Record

// LoadBatch reads the records of one parent invocation in insertion
// order. Used by audit tooling and tests.
func (s *Store) LoadBatch(ctx context.Context, parentID string) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load batch: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Record
	err = sqlitex.Execute(conn, `
		SELECT parent_invocation_id, invocation_id, service_id, instance_id,
		       miner_uid, miner_hotkey, has_error, created_at
		FROM synthetics WHERE parent_invocation_id = ? ORDER BY rowid`,
		&sqlitex.ExecOptions{
			Args: []interface{}{parentID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Record{
					ParentInvocationID: stmt.ColumnText(0),
					InvocationID:       stmt.ColumnText(1),
					ServiceID:          stmt.ColumnText(2),
					InstanceID:         stmt.ColumnText(3),
					MinerUID:           stmt.ColumnText(4),
					MinerHotkey:        stmt.ColumnText(5),
					HasError:           stmt.ColumnInt(6) != 0,
					CreatedAt:          time.Unix(0, stmt.ColumnInt64(7)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load batch: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

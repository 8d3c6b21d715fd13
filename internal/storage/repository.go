package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"khanevadati/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	maxBusyRetries = 5
	busyBackoff    = 20 * time.Millisecond
	maxReaders     = 4
)

// SQLiteStore keeps every namespace in a single documents table.
//
// Writes go through db, a single connection that begins immediate
// transactions. Reads use rdb, a small pool of query-only connections with
// deferred transactions, so WAL readers never wait on the write lock.
type SQLiteStore struct {
	db  *sql.DB
	rdb *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	base := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", base+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer connection; immediate transactions serialize the rest.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	rdb, err := sql.Open("sqlite", base+"&_txlock=deferred&_pragma=query_only(1)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite read pool: %w", err)
	}
	rdb.SetMaxOpenConns(maxReaders)
	if err := rdb.Ping(); err != nil {
		rdb.Close()
		db.Close()
		return nil, fmt.Errorf("ping read pool: %w", err)
	}

	return &SQLiteStore{db: db, rdb: rdb}, nil
}

func (s *SQLiteStore) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Update(ctx context.Context, ns string, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= maxBusyRetries; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "SQLite store busy, retrying",
				"namespace", ns,
				"attempt", attempt,
				"error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * busyBackoff):
			}
		}
		err = s.run(ctx, s.db, nil, ns, fn)
		if !isBusy(err) {
			return err
		}
	}
	return fmt.Errorf("store busy after %d attempts: %w", maxBusyRetries+1, err)
}

// View runs fn in a read-only transaction on the read pool. Writes fail
// with AccessDenied.
func (s *SQLiteStore) View(ctx context.Context, ns string, fn func(tx Tx) error) error {
	return s.run(ctx, s.rdb, &sql.TxOptions{ReadOnly: true}, ns, fn)
}

func (s *SQLiteStore) run(ctx context.Context, db *sql.DB, opts *sql.TxOptions, ns string, fn func(tx Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return storeError("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&sqliteTx{ctx: ctx, tx: sqlTx, ns: ns}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storeError("commit transaction", err)
	}
	committed = true
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
	ns  string
}

func (t *sqliteTx) Get(coll Collection, id string, dst any) error {
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT body FROM documents WHERE namespace = ? AND collection = ? AND id = ?`,
		t.ns, string(coll), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Errorf(core.KindNotFound, "%s %q not found", coll, id)
	}
	if err != nil {
		return storeError("get document", err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("decode %s %q: %w", coll, id, err)
	}
	return nil
}

func (t *sqliteTx) Put(coll Collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", coll, id, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (namespace, collection, id, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, collection, id)
		 DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		t.ns, string(coll), id, string(body))
	if err != nil {
		return storeError("put document", err)
	}
	return nil
}

func (t *sqliteTx) Delete(coll Collection, id string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE namespace = ? AND collection = ? AND id = ?`,
		t.ns, string(coll), id)
	if err != nil {
		return storeError("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("delete document", err)
	}
	if n == 0 {
		return core.Errorf(core.KindNotFound, "%s %q not found", coll, id)
	}
	return nil
}

func (t *sqliteTx) List(coll Collection) ([]json.RawMessage, error) {
	return t.query(`SELECT body FROM documents WHERE namespace = ? AND collection = ? ORDER BY id`,
		t.ns, string(coll))
}

func (t *sqliteTx) Where(coll Collection, field, value string) ([]json.RawMessage, error) {
	return t.query(`SELECT body FROM documents
		WHERE namespace = ? AND collection = ? AND json_extract(body, ?) = ?
		ORDER BY id`,
		t.ns, string(coll), "$."+field, value)
}

func (t *sqliteTx) Count(coll Collection, field, value string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM documents
		 WHERE namespace = ? AND collection = ? AND json_extract(body, ?) = ?`,
		t.ns, string(coll), "$."+field, value).Scan(&n)
	if err != nil {
		return 0, storeError("count documents", err)
	}
	return n, nil
}

func (t *sqliteTx) query(q string, args ...any) ([]json.RawMessage, error) {
	rows, err := t.tx.QueryContext(t.ctx, q, args...)
	if err != nil {
		return nil, storeError("query documents", err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storeError("scan document", err)
		}
		docs = append(docs, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate documents", err)
	}
	return docs, nil
}

// storeError maps permission failures to AccessDenied and wraps the rest.
func storeError(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
			return core.Wrap(core.KindAccessDenied, err, "store rejected "+op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

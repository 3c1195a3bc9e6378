/*
Package sqlite provides a SQLite-backed implementation of the Record Store.

PURPOSE:
  Implements ledger.Store using SQLite. Every engine table is a logical
  collection of JSON documents inside one physical table, so new record
  fields never need a migration.

INTERFACES IMPLEMENTED:
  ledger.Store: get / getAll / insert / update / delete

KEY TABLES:
  records: (id, tbl, body) - one row per document, id unique across tables
           and written back into body.id on insert

INDEXES:
  - idx_records_tbl: collection scans (getAll) in insertion order

FILTERS:
  GetAll filters translate to json_extract(body, '$.field') = ?. A nil
  filter value matches a missing or null field. Field names are restricted
  to lower-case identifiers since they are interpolated into the JSON path.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Insert runs inside a transaction so
  the id write-back is never observed half done.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  stock := ledger.NewStockLedger(store, nil, nil, logger)

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/consignment-ledger/ledger"
)

var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tbl TEXT NOT NULL,
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_tbl
		ON records(tbl, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (s *Store) Get(ctx context.Context, table ledger.Table, id int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE tbl = ? AND id = ?`, string(table), id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (s *Store) GetAll(ctx context.Context, table ledger.Table, filter ledger.Filter) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := buildSelect(table, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		result = append(result, []byte(body))
	}
	return result, rows.Err()
}

// buildSelect renders the filtered collection scan. Keys are sorted so the
// statement text is stable for a given filter shape.
func buildSelect(table ledger.Table, filter ledger.Filter) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`SELECT body FROM records WHERE tbl = ?`)
	args := []any{string(table)}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fieldName.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter field %q", k)
		}
		path := "'$." + k + "'"
		switch v := ledger.NormalizeValue(filter[k]).(type) {
		case nil:
			b.WriteString(" AND json_extract(body, " + path + ") IS NULL")
		case bool:
			// json_extract yields 1/0 for JSON booleans
			b.WriteString(" AND json_extract(body, " + path + ") = ?")
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		default:
			b.WriteString(" AND json_extract(body, " + path + ") = ?")
			args = append(args, v)
		}
	}
	b.WriteString(" ORDER BY id")
	return b.String(), args, nil
}

// Insert stores doc and stamps the assigned id into body.id.
func (s *Store) Insert(ctx context.Context, table ledger.Table, doc []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO records (tbl, body) VALUES (?, json(?))`, string(table), string(doc))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET body = json_set(body, '$.id', id) WHERE id = ?`, id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, table ledger.Table, id int64, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET body = json_set(json(?), '$.id', id) WHERE tbl = ? AND id = ?`,
		string(doc), string(table), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s #%d: no such record", table, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table ledger.Table, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = ? AND id = ?`, string(table), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return err
	}
	return nil
}

// Count returns the number of documents per table.
func (s *Store) Count(ctx context.Context) (map[ledger.Table]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT tbl, COUNT(*) FROM records GROUP BY tbl`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[ledger.Table]int)
	for rows.Next() {
		var tbl string
		var n int
		if err := rows.Scan(&tbl, &n); err != nil {
			return nil, err
		}
		counts[ledger.Table(tbl)] = n
	}
	return counts, rows.Err()
}

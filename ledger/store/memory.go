// Package store provides Record Store implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/warp/consignment-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// ErrInjected is returned by operations failed through FailOn.
var ErrInjected = errors.New("injected store failure")

type Memory struct {
	mu     sync.RWMutex
	tables map[ledger.Table]*table
	fail   map[failKey]int
}

type table struct {
	nextID int64
	order  []int64
	docs   map[int64][]byte
}

type failKey struct {
	Table ledger.Table
	Op    string
}

func NewMemory() *Memory {
	return &Memory{
		tables: make(map[ledger.Table]*table),
		fail:   make(map[failKey]int),
	}
}

func (m *Memory) tableLocked(t ledger.Table) *table {
	tb, ok := m.tables[t]
	if !ok {
		tb = &table{docs: make(map[int64][]byte)}
		m.tables[t] = tb
	}
	return tb
}

// FailOn makes the next `after` calls of op on t succeed and every later one
// fail with ErrInjected. op is one of get, getAll, insert, update, delete.
func (m *Memory) FailOn(t ledger.Table, op string, after int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[failKey{Table: t, Op: op}] = after
}

// checkLocked consumes one allowance of a FailOn rule.
func (m *Memory) checkLocked(t ledger.Table, op string) error {
	k := failKey{Table: t, Op: op}
	left, ok := m.fail[k]
	if !ok {
		return nil
	}
	if left > 0 {
		m.fail[k] = left - 1
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, t, ErrInjected)
}

func (m *Memory) Get(_ context.Context, t ledger.Table, id int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(t, "get"); err != nil {
		return nil, err
	}
	doc, ok := m.tableLocked(t).docs[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

func (m *Memory) GetAll(_ context.Context, t ledger.Table, filter ledger.Filter) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(t, "getAll"); err != nil {
		return nil, err
	}

	tb := m.tableLocked(t)
	var result [][]byte
	for _, id := range tb.order {
		doc := tb.docs[id]
		if len(filter) > 0 {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(doc, &fields); err != nil {
				return nil, err
			}
			if !ledger.Matches(fields, filter) {
				continue
			}
		}
		result = append(result, append([]byte(nil), doc...))
	}
	return result, nil
}

// Insert assigns the next id of the table and stores the document with it.
func (m *Memory) Insert(_ context.Context, t ledger.Table, doc []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(t, "insert"); err != nil {
		return 0, err
	}

	tb := m.tableLocked(t)
	id := tb.nextID + 1
	stamped, err := withID(doc, id)
	if err != nil {
		return 0, err
	}
	tb.nextID = id
	tb.order = append(tb.order, id)
	tb.docs[id] = stamped
	return id, nil
}

func (m *Memory) Update(_ context.Context, t ledger.Table, id int64, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(t, "update"); err != nil {
		return err
	}

	tb := m.tableLocked(t)
	if _, ok := tb.docs[id]; !ok {
		return fmt.Errorf("update %s #%d: no such record", t, id)
	}
	stamped, err := withID(doc, id)
	if err != nil {
		return err
	}
	tb.docs[id] = stamped
	return nil
}

func (m *Memory) Delete(_ context.Context, t ledger.Table, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(t, "delete"); err != nil {
		return 0, err
	}

	tb := m.tableLocked(t)
	if _, ok := tb.docs[id]; !ok {
		return 0, nil
	}
	delete(tb.docs, id)
	for i, v := range tb.order {
		if v == id {
			tb.order = append(tb.order[:i], tb.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

// Count returns the number of records in t.
func (m *Memory) Count(t ledger.Table) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tb, ok := m.tables[t]; ok {
		return len(tb.docs)
	}
	return 0
}

// withID rewrites the document's "id" field.
func withID(doc []byte, id int64) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	fields["id"] = json.RawMessage(fmt.Sprintf("%d", id))
	return json.Marshal(fields)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	tables map[ledger.Table]*table
}

// Snapshot copies the current state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[ledger.Table]*table, len(m.tables))
	for name, tb := range m.tables {
		docs := make(map[int64][]byte, len(tb.docs))
		for id, d := range tb.docs {
			docs[id] = append([]byte(nil), d...)
		}
		cp[name] = &table{nextID: tb.nextID, order: append([]int64(nil), tb.order...), docs: docs}
	}
	return Snapshot{tables: cp}
}

// Restore replaces the store contents with s. s must not be reused afterwards.
func (m *Memory) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = s.tables
	if m.tables == nil {
		m.tables = make(map[ledger.Table]*table)
	}
}

// Reset drops every table. Injected failures stay armed.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[ledger.Table]*table)
	return nil
}

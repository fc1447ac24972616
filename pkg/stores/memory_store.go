package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

type memoryState struct {
	objects      map[int64]*edit.ObjectRecord
	byPHID       map[string]int64
	transactions []*edit.Transaction
	configs      map[int64]*edit.Configuration
	audit        []*AuditEntry
	nextObjectID int64
	nextTxnID    int64
	nextConfigID int64
	nextAuditID  int64
}

func newMemoryState() memoryState {
	return memoryState{
		objects: map[int64]*edit.ObjectRecord{},
		byPHID:  map[string]int64{},
		configs: map[int64]*edit.Configuration{},
	}
}

// clone copies the maps and slices so a transaction can work on a private
// copy. Records themselves are never mutated in place.
func (s memoryState) clone() memoryState {
	out := s
	out.objects = make(map[int64]*edit.ObjectRecord, len(s.objects))
	for k, v := range s.objects {
		out.objects[k] = v
	}
	out.byPHID = make(map[string]int64, len(s.byPHID))
	for k, v := range s.byPHID {
		out.byPHID[k] = v
	}
	out.transactions = append([]*edit.Transaction(nil), s.transactions...)
	out.configs = make(map[int64]*edit.Configuration, len(s.configs))
	for k, v := range s.configs {
		out.configs[k] = v
	}
	out.audit = append([]*AuditEntry(nil), s.audit...)
	return out
}

// MemoryStore is an in-memory transactional Store. Transactions run against
// a copy of the state which replaces the committed state on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Init is a no-op.
func (m *MemoryStore) Init(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Migrate is a no-op.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

func copyRecord(rec *edit.ObjectRecord) *edit.ObjectRecord {
	out := *rec
	out.Data = append(json.RawMessage(nil), rec.Data...)
	return &out
}

// GetObjectByID retrieves an object of phidType by local id.
func (m *MemoryStore) GetObjectByID(_ context.Context, phidType string, id int64) (*edit.ObjectRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.state.objects[id]
	if !ok || rec.Type != phidType {
		return nil, fmt.Errorf("object not found: %d: %w", id, edit.ErrRecordNotFound)
	}
	return copyRecord(rec), nil
}

// GetObjectByPHID retrieves an object by global id.
func (m *MemoryStore) GetObjectByPHID(_ context.Context, phid string) (*edit.ObjectRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.state.byPHID[phid]
	if !ok {
		return nil, fmt.Errorf("object not found: %s: %w", phid, edit.ErrRecordNotFound)
	}
	return copyRecord(m.state.objects[id]), nil
}

// ListObjects lists objects of phidType ordered by id.
func (m *MemoryStore) ListObjects(_ context.Context, phidType string, limit, offset int) ([]*edit.ObjectRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*edit.ObjectRecord
	for _, rec := range m.state.objects {
		if rec.Type == phidType {
			all = append(all, copyRecord(rec))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ObjectCount returns the number of stored objects.
func (m *MemoryStore) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.objects)
}

// ListTransactions lists an object's transactions in application order.
func (m *MemoryStore) ListTransactions(_ context.Context, objectPHID string) ([]*edit.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*edit.Transaction{}
	for _, t := range m.state.transactions {
		if t.ObjectPHID == objectPHID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// TransactionCount returns the length of the whole mutation log.
func (m *MemoryStore) TransactionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.transactions)
}

// ListConfigurations lists the stored configurations of an engine by id.
func (m *MemoryStore) ListConfigurations(_ context.Context, engineKey string) ([]*edit.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*edit.Configuration{}
	for _, c := range m.state.configs {
		if c.EngineKey == engineKey {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveConfiguration inserts or updates a stored configuration and records an
// audit entry.
func (m *MemoryStore) SaveConfiguration(_ context.Context, cfg *edit.Configuration, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := cfg.ID
	if id == 0 && cfg.BuiltinKey != "" {
		for _, c := range m.state.configs {
			if c.EngineKey == cfg.EngineKey && c.BuiltinKey == cfg.BuiltinKey {
				id = c.ID
				break
			}
		}
	}

	action := AuditConfigurationUpdated
	if id == 0 {
		m.state.nextConfigID++
		id = m.state.nextConfigID
		action = AuditConfigurationCreated
	} else if existing, ok := m.state.configs[id]; !ok || existing.EngineKey != cfg.EngineKey {
		return fmt.Errorf("configuration not found: %d: %w", id, edit.ErrRecordNotFound)
	}

	cfg.ID = id
	m.state.configs[id] = cfg.Clone()

	target := cfg.EngineKey + "/" + cfg.Identifier()
	m.state.nextAuditID++
	m.state.audit = append(m.state.audit, &AuditEntry{
		ID:        m.state.nextAuditID,
		Action:    action,
		Actor:     actor,
		TargetID:  &target,
		Timestamp: m.now(),
	})
	return nil
}

// CreateAuditEntry appends an audit entry.
func (m *MemoryStore) CreateAuditEntry(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextAuditID++
	entry.ID = m.state.nextAuditID
	c := *entry
	m.state.audit = append(m.state.audit, &c)
	return nil
}

// ListAuditEntries lists audit entries, newest first.
func (m *MemoryStore) ListAuditEntries(_ context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AuditEntry
	for i := len(m.state.audit) - 1; i >= 0; i-- {
		e := m.state.audit[i]
		if action != nil && e.Action != *action {
			continue
		}
		if actor != nil && e.Actor != *actor {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return page(out, limit, offset), nil
}

// InTx runs fn against a private copy of the state and commits it when fn
// returns nil.
func (m *MemoryStore) InTx(_ context.Context, fn func(tx edit.StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) InsertObject(_ context.Context, rec *edit.ObjectRecord) (int64, error) {
	if _, exists := t.state.byPHID[rec.PHID]; exists {
		return 0, fmt.Errorf("failed to create object: duplicate phid %s", rec.PHID)
	}
	t.state.nextObjectID++
	stored := copyRecord(rec)
	stored.ID = t.state.nextObjectID
	t.state.objects[stored.ID] = stored
	t.state.byPHID[stored.PHID] = stored.ID
	rec.ID = stored.ID
	return stored.ID, nil
}

func (t *memoryTx) UpdateObject(_ context.Context, rec *edit.ObjectRecord) error {
	id, ok := t.state.byPHID[rec.PHID]
	if !ok {
		return fmt.Errorf("object not found: %s: %w", rec.PHID, edit.ErrRecordNotFound)
	}
	stored := copyRecord(t.state.objects[id])
	stored.Data = append(json.RawMessage(nil), rec.Data...)
	stored.UpdatedAt = rec.UpdatedAt
	t.state.objects[id] = stored
	return nil
}

func (t *memoryTx) AppendTransactions(_ context.Context, txns []*edit.Transaction) error {
	for _, txn := range txns {
		if _, ok := t.state.byPHID[txn.ObjectPHID]; !ok {
			return fmt.Errorf("failed to append transaction %s: object %s does not exist", txn.Type, txn.ObjectPHID)
		}
		t.state.nextTxnID++
		txn.ID = t.state.nextTxnID
		c := *txn
		t.state.transactions = append(t.state.transactions, &c)
	}
	return nil
}

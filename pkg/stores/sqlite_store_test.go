package stores

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRecord(phid string) *edit.ObjectRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &edit.ObjectRecord{
		PHID:       phid,
		Type:       "TASK",
		AuthorPHID: "PHID-USER-alice",
		Data:       json.RawMessage(`{"title":"Hello"}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "edit.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	// A second run has nothing to do.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"objects", "transactions", "edit_configurations", "audit"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestObjectAndTransactions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("PHID-TASK-aaaaaaaaaaaaaaaaaaaa")
	txns := []*edit.Transaction{
		{PHID: "PHID-XACT-1", ObjectPHID: rec.PHID, GroupID: "g1", Type: edit.TypeCreate, AuthorPHID: "PHID-USER-alice", CreatedAt: rec.CreatedAt},
		{PHID: "PHID-XACT-2", ObjectPHID: rec.PHID, GroupID: "g1", Type: "task:title", FieldKey: "title",
			OldValue: json.RawMessage(`""`), NewValue: json.RawMessage(`"Hello"`), AuthorPHID: "PHID-USER-alice", CreatedAt: rec.CreatedAt},
	}

	err := store.InTx(ctx, func(tx edit.StoreTx) error {
		if _, err := tx.InsertObject(ctx, rec); err != nil {
			return err
		}
		return tx.AppendTransactions(ctx, txns)
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected object ID to be assigned")
	}
	if txns[0].ID == 0 || txns[0].ID >= txns[1].ID {
		t.Errorf("expected increasing transaction IDs, got %d and %d", txns[0].ID, txns[1].ID)
	}

	byID, err := store.GetObjectByID(ctx, "TASK", rec.ID)
	if err != nil {
		t.Fatalf("GetObjectByID failed: %v", err)
	}
	byPHID, err := store.GetObjectByPHID(ctx, rec.PHID)
	if err != nil {
		t.Fatalf("GetObjectByPHID failed: %v", err)
	}
	if byID.PHID != byPHID.PHID || string(byID.Data) != `{"title":"Hello"}` {
		t.Errorf("unexpected object: %+v", byID)
	}

	if _, err := store.GetObjectByID(ctx, "USER", rec.ID); !errors.Is(err, edit.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for wrong type, got %v", err)
	}

	logged, err := store.ListTransactions(ctx, rec.PHID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(logged) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(logged))
	}
	if logged[0].OldValue != nil {
		t.Errorf("expected nil old value for create, got %s", logged[0].OldValue)
	}
	if string(logged[1].NewValue) != `"Hello"` {
		t.Errorf("expected new value \"Hello\", got %s", logged[1].NewValue)
	}

	listed, err := store.ListObjects(ctx, "TASK", 10, 0)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("expected 1 object, got %d", len(listed))
	}
}

func TestInTxRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("PHID-TASK-bbbbbbbbbbbbbbbbbbbb")
	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx edit.StoreTx) error {
		if _, err := tx.InsertObject(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.GetObjectByPHID(ctx, rec.PHID); !errors.Is(err, edit.ErrRecordNotFound) {
		t.Errorf("expected object to be rolled back, got %v", err)
	}
}

func TestUpdateObject(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("PHID-TASK-cccccccccccccccccccc")
	if err := store.InTx(ctx, func(tx edit.StoreTx) error {
		_, err := tx.InsertObject(ctx, rec)
		return err
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec.Data = json.RawMessage(`{"title":"Changed"}`)
	if err := store.InTx(ctx, func(tx edit.StoreTx) error {
		return tx.UpdateObject(ctx, rec)
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := store.GetObjectByPHID(ctx, rec.PHID)
	if err != nil {
		t.Fatalf("GetObjectByPHID failed: %v", err)
	}
	if string(got.Data) != `{"title":"Changed"}` {
		t.Errorf("expected updated data, got %s", got.Data)
	}

	missing := newTestRecord("PHID-TASK-dddddddddddddddddddd")
	err = store.InTx(ctx, func(tx edit.StoreTx) error {
		return tx.UpdateObject(ctx, missing)
	})
	if !errors.Is(err, edit.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestConfigurations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	hidden := true
	builtin := &edit.Configuration{
		EngineKey:  "tasks.task",
		BuiltinKey: "default",
		Name:       "Create Task",
		IsDefault:  true,
		IsEdit:     true,
		FieldOrder: []string{"title", "status"},
		Fields: map[string]edit.FieldCustomization{
			"points": {Hidden: &hidden},
		},
	}
	if err := store.SaveConfiguration(ctx, builtin, "PHID-USER-admin"); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}
	firstID := builtin.ID

	// Saving the same builtin key again updates the row.
	again := &edit.Configuration{EngineKey: "tasks.task", BuiltinKey: "default", Name: "Renamed", IsDefault: true}
	if err := store.SaveConfiguration(ctx, again, "PHID-USER-admin"); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("expected update of row %d, got %d", firstID, again.ID)
	}

	custom := &edit.Configuration{EngineKey: "tasks.task", Name: "Triage", IsEdit: true, EditOrder: 5}
	if err := store.SaveConfiguration(ctx, custom, "PHID-USER-admin"); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}

	configs, err := store.ListConfigurations(ctx, "tasks.task")
	if err != nil {
		t.Fatalf("ListConfigurations failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(configs))
	}
	if configs[0].Name != "Renamed" || configs[0].BuiltinKey != "default" {
		t.Errorf("unexpected first configuration: %+v", configs[0])
	}
	if configs[1].BuiltinKey != "" || configs[1].EditOrder != 5 {
		t.Errorf("unexpected second configuration: %+v", configs[1])
	}

	entries, err := store.ListAuditEntries(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListAuditEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}

	created := AuditConfigurationCreated
	createdEntries, err := store.ListAuditEntries(ctx, &created, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListAuditEntries failed: %v", err)
	}
	if len(createdEntries) != 2 {
		t.Errorf("expected 2 created entries, got %d", len(createdEntries))
	}
}

func TestConfigurationFieldsRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	required := true
	cfg := &edit.Configuration{
		EngineKey:  "tasks.task",
		BuiltinKey: "bug",
		Name:       "Report Bug",
		Fields: map[string]edit.FieldCustomization{
			"priority": {Required: &required, Default: "high", Rules: []string{"value != 'low'"}},
		},
	}
	if err := store.SaveConfiguration(ctx, cfg, "PHID-USER-admin"); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}

	configs, err := store.ListConfigurations(ctx, "tasks.task")
	if err != nil {
		t.Fatalf("ListConfigurations failed: %v", err)
	}
	got := configs[0].Fields["priority"]
	if got.Required == nil || !*got.Required {
		t.Error("expected required override to survive")
	}
	if got.Default != "high" {
		t.Errorf("expected default high, got %v", got.Default)
	}
	if len(got.Rules) != 1 {
		t.Errorf("expected 1 rule, got %v", got.Rules)
	}
}

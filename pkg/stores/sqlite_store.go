package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/editengine/pkg/edit"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) inMemory() bool {
	return c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory")
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.inMemory() {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}
	if !s.cfg.inMemory() {
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	dsn := s.cfg.Path + sep + strings.Join(params, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// InTx runs fn in one database transaction, committing when it returns nil.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx edit.StoreTx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := s.RollbackTx(tx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const objectColumns = `id, phid, type, author_phid, data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*edit.ObjectRecord, error) {
	rec := &edit.ObjectRecord{}
	var data string
	err := row.Scan(
		&rec.ID,
		&rec.PHID,
		&rec.Type,
		&rec.AuthorPHID,
		&data,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Data = json.RawMessage(data)
	return rec, nil
}

// GetObjectByID retrieves an object of phidType by local id
func (s *SQLiteStore) GetObjectByID(ctx context.Context, phidType string, id int64) (*edit.ObjectRecord, error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE id = ? AND type = ?`

	rec, err := scanObject(s.db.QueryRowContext(ctx, query, id, phidType))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object not found: %d: %w", id, edit.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return rec, nil
}

// GetObjectByPHID retrieves an object by global id
func (s *SQLiteStore) GetObjectByPHID(ctx context.Context, phid string) (*edit.ObjectRecord, error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE phid = ?`

	rec, err := scanObject(s.db.QueryRowContext(ctx, query, phid))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object not found: %s: %w", phid, edit.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return rec, nil
}

// ListObjects lists objects of phidType with pagination
func (s *SQLiteStore) ListObjects(ctx context.Context, phidType string, limit, offset int) ([]*edit.ObjectRecord, error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE type = ? ORDER BY id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, phidType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	records := []*edit.ObjectRecord{}
	for rows.Next() {
		rec, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}

	return records, nil
}

// ListTransactions lists an object's transactions in application order
func (s *SQLiteStore) ListTransactions(ctx context.Context, objectPHID string) ([]*edit.Transaction, error) {
	query := `
		SELECT id, phid, object_phid, group_id, type, field_key, old_value, new_value, is_default, author_phid, created_at
		FROM transactions
		WHERE object_phid = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, objectPHID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []*edit.Transaction{}
	for rows.Next() {
		txn := &edit.Transaction{}
		var oldValue, newValue sql.NullString
		err := rows.Scan(
			&txn.ID,
			&txn.PHID,
			&txn.ObjectPHID,
			&txn.GroupID,
			&txn.Type,
			&txn.FieldKey,
			&oldValue,
			&newValue,
			&txn.IsDefault,
			&txn.AuthorPHID,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if oldValue.Valid {
			txn.OldValue = json.RawMessage(oldValue.String)
		}
		if newValue.Valid {
			txn.NewValue = json.RawMessage(newValue.String)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// ListConfigurations lists the stored configurations of an engine
func (s *SQLiteStore) ListConfigurations(ctx context.Context, engineKey string) ([]*edit.Configuration, error) {
	query := `
		SELECT id, engine_key, builtin_key, name, preamble, is_default, is_edit, is_disabled,
		       create_order, edit_order, field_order, fields
		FROM edit_configurations
		WHERE engine_key = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, engineKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	configs := []*edit.Configuration{}
	for rows.Next() {
		cfg := &edit.Configuration{}
		var builtinKey sql.NullString
		var fieldOrder, fields string
		err := rows.Scan(
			&cfg.ID,
			&cfg.EngineKey,
			&builtinKey,
			&cfg.Name,
			&cfg.Preamble,
			&cfg.IsDefault,
			&cfg.IsEdit,
			&cfg.IsDisabled,
			&cfg.CreateOrder,
			&cfg.EditOrder,
			&fieldOrder,
			&fields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		cfg.BuiltinKey = builtinKey.String
		if err := json.Unmarshal([]byte(fieldOrder), &cfg.FieldOrder); err != nil {
			return nil, fmt.Errorf("failed to decode field order of configuration %d: %w", cfg.ID, err)
		}
		if err := json.Unmarshal([]byte(fields), &cfg.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields of configuration %d: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating configurations: %w", err)
	}

	return configs, nil
}

// SaveConfiguration inserts or updates a stored configuration and records an
// audit entry in the same transaction. Rows customizing a builtin are matched
// by builtin key.
func (s *SQLiteStore) SaveConfiguration(ctx context.Context, cfg *edit.Configuration, actor string) error {
	fieldOrder, err := json.Marshal(nonNilStrings(cfg.FieldOrder))
	if err != nil {
		return fmt.Errorf("failed to encode field order: %w", err)
	}
	fields := []byte("{}")
	if cfg.Fields != nil {
		if fields, err = json.Marshal(cfg.Fields); err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
	}
	var builtinKey *string
	if cfg.BuiltinKey != "" {
		builtinKey = &cfg.BuiltinKey
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := cfg.ID
	if id == 0 && builtinKey != nil {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM edit_configurations WHERE engine_key = ? AND builtin_key = ?`,
			cfg.EngineKey, cfg.BuiltinKey).Scan(&id)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up configuration: %w", err)
		}
	}

	now := time.Now().UTC()
	action := AuditConfigurationUpdated
	if id == 0 {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO edit_configurations (engine_key, builtin_key, name, preamble, is_default, is_edit, is_disabled,
			                                 create_order, edit_order, field_order, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cfg.EngineKey, builtinKey, cfg.Name, cfg.Preamble, cfg.IsDefault, cfg.IsEdit, cfg.IsDisabled,
			cfg.CreateOrder, cfg.EditOrder, string(fieldOrder), string(fields), now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create configuration: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get configuration ID: %w", err)
		}
		action = AuditConfigurationCreated
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE edit_configurations
			SET builtin_key = ?, name = ?, preamble = ?, is_default = ?, is_edit = ?, is_disabled = ?,
			    create_order = ?, edit_order = ?, field_order = ?, fields = ?, updated_at = ?
			WHERE id = ? AND engine_key = ?
		`,
			builtinKey, cfg.Name, cfg.Preamble, cfg.IsDefault, cfg.IsEdit, cfg.IsDisabled,
			cfg.CreateOrder, cfg.EditOrder, string(fieldOrder), string(fields), now, id, cfg.EngineKey,
		)
		if err != nil {
			return fmt.Errorf("failed to update configuration: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("configuration not found: %d: %w", id, edit.ErrRecordNotFound)
		}
	}
	cfg.ID = id

	target := cfg.EngineKey + "/" + cfg.Identifier()
	details, err := json.Marshal(map[string]any{"name": cfg.Name, "is_disabled": cfg.IsDisabled})
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	detailsStr := string(details)
	if err := insertAudit(ctx, tx, &AuditEntry{
		Action:    action,
		Actor:     actor,
		TargetID:  &target,
		Details:   &detailsStr,
		Timestamp: now,
	}); err != nil {
		return err
	}

	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit configuration: %w", err)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// sqliteTx is the write side of an edit applied in one database transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertObject(ctx context.Context, rec *edit.ObjectRecord) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO objects (phid, type, author_phid, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.PHID, rec.Type, rec.AuthorPHID, string(rec.Data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create object: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get object ID: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (t *sqliteTx) UpdateObject(ctx context.Context, rec *edit.ObjectRecord) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE objects SET data = ?, updated_at = ? WHERE phid = ?
	`, string(rec.Data), rec.UpdatedAt, rec.PHID)
	if err != nil {
		return fmt.Errorf("failed to update object: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("object not found: %s: %w", rec.PHID, edit.ErrRecordNotFound)
	}
	return nil
}

func (t *sqliteTx) AppendTransactions(ctx context.Context, txns []*edit.Transaction) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO transactions (phid, object_phid, group_id, type, field_key, old_value, new_value, is_default, author_phid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, txn := range txns {
		result, err := stmt.ExecContext(ctx,
			txn.PHID,
			txn.ObjectPHID,
			txn.GroupID,
			txn.Type,
			txn.FieldKey,
			nullableJSON(txn.OldValue),
			nullableJSON(txn.NewValue),
			txn.IsDefault,
			txn.AuthorPHID,
			txn.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction %s: %w", txn.Type, err)
		}
		if txn.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get transaction ID: %w", err)
		}
	}
	return nil
}

func nullableJSON(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	s := string(raw)
	return &s
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, target_id, details, ip_address, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.IPAddress,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	return insertAudit(ctx, s.db, entry)
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, ip_address, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.IPAddress,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

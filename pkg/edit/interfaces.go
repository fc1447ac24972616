package edit

import (
	"context"
	"encoding/json"
	"time"
)

// ObjectRecord is the stored form of an object.
type ObjectRecord struct {
	ID         int64           `json:"id"`
	PHID       string          `json:"phid"`
	Type       string          `json:"type"`
	AuthorPHID string          `json:"author_phid"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store persists objects, their mutation logs and stored configurations.
type Store interface {
	// GetObjectByID loads an object of phidType by local id. Missing rows
	// wrap ErrRecordNotFound.
	GetObjectByID(ctx context.Context, phidType string, id int64) (*ObjectRecord, error)

	// GetObjectByPHID loads an object by global id.
	GetObjectByPHID(ctx context.Context, phid string) (*ObjectRecord, error)

	// ListTransactions returns an object's log in application order.
	ListTransactions(ctx context.Context, objectPHID string) ([]*Transaction, error)

	// ListConfigurations returns the stored configurations of an engine.
	ListConfigurations(ctx context.Context, engineKey string) ([]*Configuration, error)

	// SaveConfiguration inserts or updates a stored configuration and records
	// an audit entry for actor.
	SaveConfiguration(ctx context.Context, cfg *Configuration, actor string) error

	// InTx runs fn inside one storage transaction. fn's error rolls back.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the write side of a storage transaction.
type StoreTx interface {
	// InsertObject stores a new object and returns its local id.
	InsertObject(ctx context.Context, rec *ObjectRecord) (int64, error)

	// UpdateObject overwrites an object's data.
	UpdateObject(ctx context.Context, rec *ObjectRecord) error

	// AppendTransactions appends to the log and assigns ids in order.
	AppendTransactions(ctx context.Context, txns []*Transaction) error
}

// NameIndex resolves short human-readable names to global ids.
type NameIndex interface {
	ResolveName(ctx context.Context, name string) (string, error)
}

// PolicySubject is what a capability check is evaluated against.
type PolicySubject struct {
	EngineKey  string                `json:"engine"`
	ObjectType string                `json:"type"`
	PHID       string                `json:"phid,omitempty"`
	AuthorPHID string                `json:"author_phid,omitempty"`
	Policies   map[Capability]string `json:"policies,omitempty"`
}

// CapabilityChecker decides whether a viewer holds capabilities on a subject.
type CapabilityChecker interface {
	Allows(ctx context.Context, viewer Viewer, subject PolicySubject, caps ...Capability) (bool, error)
}

// ScriptEvaluator computes configured default values.
type ScriptEvaluator interface {
	EvaluateDefault(ctx context.Context, script string, input map[string]any) (any, error)
}

// RuleEvaluator checks validation rule expressions against a value.
type RuleEvaluator interface {
	Check(rule string, value any) (bool, error)
}

// Observer receives instrumentation callbacks from the engine.
type Observer interface {
	// StartEdit begins a traced edit. The returned func is called once with
	// the outcome name and any error.
	StartEdit(ctx context.Context, engineKey string, kind RequestKind) (context.Context, func(outcome string, err error))

	// TransactionsApplied is called after a batch commits.
	TransactionsApplied(ctx context.Context, engineKey, objectPHID string, created bool, types []string)
}

type noopObserver struct{}

func (noopObserver) StartEdit(ctx context.Context, _ string, _ RequestKind) (context.Context, func(string, error)) {
	return ctx, func(string, error) {}
}

func (noopObserver) TransactionsApplied(context.Context, string, string, bool, []string) {}

// AllowAll is a CapabilityChecker that grants everything.
type AllowAll struct{}

func (AllowAll) Allows(context.Context, Viewer, PolicySubject, ...Capability) (bool, error) {
	return true, nil
}

package edit

import (
	"encoding/json"
	"time"
)

// Core transaction types published by every engine.
const (
	TypeCreate  = "core:create"
	TypeComment = "core:comment"
)

// MutationRecord is one typed change waiting to be applied. Records are built
// per request and consumed immediately by the Editor.
type MutationRecord struct {
	// Type is the transaction type tag.
	Type string `json:"type"`

	// FieldKey is the key of the field which produced the record, if any.
	FieldKey string `json:"field,omitempty"`

	// Value is the new value payload.
	Value any `json:"value,omitempty"`

	// IsDefault marks values equal to the field's pre-submission default.
	IsDefault bool `json:"is_default,omitempty"`
}

// CreateRecord returns the record which persists a new object.
func CreateRecord() MutationRecord {
	return MutationRecord{Type: TypeCreate}
}

// CommentRecord returns a record carrying comment text.
func CommentRecord(text string) MutationRecord {
	return MutationRecord{Type: TypeComment, FieldKey: CommentFieldKey, Value: text}
}

// Transaction is a persisted, immutable entry of an object's mutation log.
type Transaction struct {
	// ID is assigned by the store in application order.
	ID int64 `json:"id"`

	// PHID is the global id of this transaction.
	PHID string `json:"phid"`

	// ObjectPHID is the object the transaction applied to.
	ObjectPHID string `json:"object_phid"`

	// GroupID ties together the transactions of one applied batch.
	GroupID string `json:"group_id"`

	// Type is the transaction type tag.
	Type string `json:"type"`

	// FieldKey is the key of the field which produced the record.
	FieldKey string `json:"field,omitempty"`

	// OldValue is the value before the batch applied, JSON encoded.
	OldValue json.RawMessage `json:"old_value,omitempty"`

	// NewValue is the value written, JSON encoded.
	NewValue json.RawMessage `json:"new_value,omitempty"`

	// IsDefault carries MutationRecord.IsDefault into the log.
	IsDefault bool `json:"is_default,omitempty"`

	// AuthorPHID is the viewer who applied the batch.
	AuthorPHID string `json:"author_phid"`

	// CreatedAt is when the batch committed.
	CreatedAt time.Time `json:"created_at"`
}

// TransactionRef is the identity of an applied transaction.
type TransactionRef struct {
	ID   int64  `json:"id"`
	PHID string `json:"phid"`
}

// ObjectRef is the identity of an edited object.
type ObjectRef struct {
	ID   int64  `json:"id"`
	PHID string `json:"phid"`
}

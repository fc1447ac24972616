package stores

import (
	"context"
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Audit actions recorded by the stores.
const (
	AuditConfigurationCreated = "configuration.created"
	AuditConfigurationUpdated = "configuration.updated"
)

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g., "configuration.updated"
	Actor     string    `json:"actor"`               // viewer PHID
	TargetID  *string   `json:"target_id,omitempty"` // engine key and configuration identifier
	Details   *string   `json:"details,omitempty"`   // JSON blob
	IPAddress *string   `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	edit.Store

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Object listing
	ListObjects(ctx context.Context, phidType string, limit, offset int) ([]*edit.ObjectRecord, error)

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

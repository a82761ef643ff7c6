package settings

import (
	"context"
	"time"
)

// Change stages one mutation inside a Batch. A nil Override deletes the
// record at Key; otherwise the override is created or replaced. Expected
// carries the UpdatedAt stamp the writer observed: the store must reject
// the whole batch with a ConflictError when the stored stamp differs, and
// a zero Expected asserts the record does not exist yet.
type Change struct {
	Key      OverrideKey
	Override *Override
	Expected time.Time
}

// Guard re-asserts an observation made during validation inside the store's
// commit boundary. Guards protect the write gate against concurrent lock
// changes between validation and commit: either the guarded record still
// carries the expected stamp, or (Absent) still does not exist.
type Guard struct {
	Key      OverrideKey
	Expected time.Time
	Absent   bool
}

// Batch is an atomic unit of override mutations: either every change is
// persisted or none are. Actor identifies who is writing for the audit
// trail.
type Batch struct {
	Actor   string
	Changes []Change
	Guards  []Guard
}

// AuditRecord captures one applied change for the append-only audit trail.
// Before/After are nil for creates/deletes respectively.
type AuditRecord struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Module     string    `json:"module"`
	Key        string    `json:"key"`
	Level      Level     `json:"level"`
	InstanceID string    `json:"instance_id"`
	Before     *Override `json:"before,omitempty"`
	After      *Override `json:"after,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store is the single source of truth for overrides. Reads may run fully in
// parallel; Apply must be atomic and must evaluate every compare-and-set
// and guard inside the same commit boundary as the writes. Every applied
// change appends an audit record; the audit trail is append-only and never
// pruned by normal operations.
type Store interface {
	// Get returns the override stored under key, if any.
	Get(ctx context.Context, key OverrideKey) (Override, bool, error)
	// ListForPath returns all overrides for (module, key) along the walk
	// implied by scope, ordered from least to most specific.
	ListForPath(ctx context.Context, module, key string, scope Context) ([]Override, error)
	// ListAt returns every override of module stored at one scope
	// instance, used by provenance and audit screens.
	ListAt(ctx context.Context, module string, level Level, instanceID string) ([]Override, error)
	// Apply commits the batch atomically, or fails without side effects.
	Apply(ctx context.Context, batch Batch) error
}

// AuditLog is implemented by stores that can expose their audit trail.
type AuditLog interface {
	AuditRecords(ctx context.Context, module, key string) ([]AuditRecord, error)
}

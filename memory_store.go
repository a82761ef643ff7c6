package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a minimal in-memory Store implementation intended for
// tests and examples. It keeps the full audit trail in process memory and
// makes no persistence assumptions beyond deterministic keys.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[OverrideKey]Override
	audit   []AuditRecord
	clock   func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[OverrideKey]Override{},
		clock:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key OverrideKey) (Override, bool, error) {
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return Override{}, false, nil
	}
	return record.clone(), true, nil
}

func (s *MemoryStore) ListForPath(_ context.Context, module, key string, scope Context) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Override
	for _, ref := range scope.Path() {
		record, ok := s.records[OverrideKey{Module: module, Key: key, Level: ref.Level, InstanceID: ref.InstanceID}]
		if !ok {
			continue
		}
		out = append(out, record.clone())
	}
	return out, nil
}

func (s *MemoryStore) ListAt(_ context.Context, module string, level Level, instanceID string) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Override
	for key, record := range s.records {
		if key.Module == module && key.Level == level && key.InstanceID == instanceID {
			out = append(out, record.clone())
		}
	}
	return out, nil
}

// Apply commits the batch under the store lock: guards and expected stamps
// are checked first, and the first failure rejects the whole batch.
func (s *MemoryStore) Apply(_ context.Context, batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, guard := range batch.Guards {
		record, exists := s.records[guard.Key]
		if guard.Absent {
			if exists {
				return conflictFor(guard.Key)
			}
			continue
		}
		if !exists || !record.UpdatedAt.Equal(guard.Expected) {
			return conflictFor(guard.Key)
		}
	}
	for _, change := range batch.Changes {
		record, exists := s.records[change.Key]
		if change.Expected.IsZero() {
			if exists {
				return conflictFor(change.Key)
			}
			continue
		}
		if !exists || !record.UpdatedAt.Equal(change.Expected) {
			return conflictFor(change.Key)
		}
	}

	now := s.clock()
	for _, change := range batch.Changes {
		before, exists := s.records[change.Key]
		entry := AuditRecord{
			ID:         uuid.NewString(),
			Actor:      batch.Actor,
			Module:     change.Key.Module,
			Key:        change.Key.Key,
			Level:      change.Key.Level,
			InstanceID: change.Key.InstanceID,
			OccurredAt: now,
		}
		if exists {
			snapshot := before.clone()
			entry.Before = &snapshot
		}
		if change.Override == nil {
			if !exists {
				continue
			}
			delete(s.records, change.Key)
		} else {
			record := change.Override.clone()
			record.UpdatedAt = now
			s.records[change.Key] = record
			snapshot := record.clone()
			entry.After = &snapshot
		}
		s.audit = append(s.audit, entry)
	}
	return nil
}

// AuditRecords returns the append-only audit trail for (module, key) in
// commit order. Empty module/key act as wildcards.
func (s *MemoryStore) AuditRecords(_ context.Context, module, key string) ([]AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AuditRecord
	for _, record := range s.audit {
		if module != "" && record.Module != module {
			continue
		}
		if key != "" && record.Key != key {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func conflictFor(key OverrideKey) error {
	return fmt.Errorf("apply %s: %w", key.Identifier(), &ConflictError{
		Module:     key.Module,
		Key:        key.Key,
		Level:      key.Level,
		InstanceID: key.InstanceID,
	})
}

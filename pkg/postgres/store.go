// Package postgres implements the settings Store on PostgreSQL. Overrides
// live in a single table keyed by (module, key, level, instance); every
// Apply writes its audit rows inside the same transaction, keeping the
// audit trail append-only and consistent with the committed state.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	settings "github.com/workforcekit/go-settings"
)

// Schema creates the tables the store expects. Run it at deploy time.
const Schema = `
CREATE TABLE IF NOT EXISTS settings_overrides (
	module            TEXT        NOT NULL,
	setting_key       TEXT        NOT NULL,
	scope_level       TEXT        NOT NULL,
	scope_instance_id TEXT        NOT NULL,
	value             JSONB       NOT NULL,
	locked            BOOLEAN     NOT NULL DEFAULT FALSE,
	updated_by        TEXT        NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (module, setting_key, scope_level, scope_instance_id)
);

CREATE TABLE IF NOT EXISTS settings_audit (
	id                UUID        PRIMARY KEY,
	actor             TEXT        NOT NULL DEFAULT '',
	module            TEXT        NOT NULL,
	setting_key       TEXT        NOT NULL,
	scope_level       TEXT        NOT NULL,
	scope_instance_id TEXT        NOT NULL,
	before            JSONB,
	after             JSONB,
	occurred_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settings_audit_setting
	ON settings_audit (module, setting_key, occurred_at);
`

// Store persists overrides and their audit trail in PostgreSQL.
type Store struct {
	db    *sqlx.DB
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	store := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// EnsureSchema applies the schema DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

type overrideRow struct {
	Module     string    `db:"module"`
	Key        string    `db:"setting_key"`
	Level      string    `db:"scope_level"`
	InstanceID string    `db:"scope_instance_id"`
	Value      []byte    `db:"value"`
	Locked     bool      `db:"locked"`
	UpdatedBy  string    `db:"updated_by"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r overrideRow) toOverride() (settings.Override, error) {
	var value any
	if err := json.Unmarshal(r.Value, &value); err != nil {
		return settings.Override{}, fmt.Errorf("postgres: decode value for %s/%s: %w", r.Module, r.Key, err)
	}
	return settings.Override{
		Module:     r.Module,
		Key:        r.Key,
		Level:      settings.ParseLevel(r.Level),
		InstanceID: r.InstanceID,
		Value:      value,
		Locked:     r.Locked,
		UpdatedBy:  r.UpdatedBy,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

const selectOverride = `
	SELECT module, setting_key, scope_level, scope_instance_id,
	       value, locked, updated_by, updated_at
	FROM settings_overrides`

// Get returns the override stored under key, if any.
func (s *Store) Get(ctx context.Context, key settings.OverrideKey) (settings.Override, bool, error) {
	query := selectOverride + `
	WHERE module = $1 AND setting_key = $2 AND scope_level = $3 AND scope_instance_id = $4`

	var row overrideRow
	err := s.db.GetContext(ctx, &row, query, key.Module, key.Key, key.Level.String(), key.InstanceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return settings.Override{}, false, nil
		}
		return settings.Override{}, false, fmt.Errorf("postgres: get %s: %w", key.Identifier(), err)
	}
	override, err := row.toOverride()
	if err != nil {
		return settings.Override{}, false, err
	}
	return override, true, nil
}

// ListForPath returns all overrides for (module, key) along the walk
// implied by scope, ordered from least to most specific.
func (s *Store) ListForPath(ctx context.Context, module, key string, scope settings.Context) ([]settings.Override, error) {
	path := scope.Path()
	conditions := make([]string, 0, len(path))
	args := []any{module, key}
	for _, ref := range path {
		args = append(args, ref.Level.String(), ref.InstanceID)
		conditions = append(conditions, fmt.Sprintf("(scope_level = $%d AND scope_instance_id = $%d)", len(args)-1, len(args)))
	}

	query := selectOverride + `
	WHERE module = $1 AND setting_key = $2 AND (` + strings.Join(conditions, " OR ") + `)`

	var rows []overrideRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: list %s/%s: %w", module, key, err)
	}

	byRef := make(map[settings.Ref]settings.Override, len(rows))
	for _, row := range rows {
		override, err := row.toOverride()
		if err != nil {
			return nil, err
		}
		byRef[override.Ref()] = override
	}
	out := make([]settings.Override, 0, len(byRef))
	for _, ref := range path {
		if override, ok := byRef[ref]; ok {
			out = append(out, override)
		}
	}
	return out, nil
}

// ListAt returns every override of module stored at one scope instance.
func (s *Store) ListAt(ctx context.Context, module string, level settings.Level, instanceID string) ([]settings.Override, error) {
	query := selectOverride + `
	WHERE module = $1 AND scope_level = $2 AND scope_instance_id = $3
	ORDER BY setting_key`

	var rows []overrideRow
	if err := s.db.SelectContext(ctx, &rows, query, module, level.String(), instanceID); err != nil {
		return nil, fmt.Errorf("postgres: list at %s/%s: %w", level, instanceID, err)
	}
	out := make([]settings.Override, 0, len(rows))
	for _, row := range rows {
		override, err := row.toOverride()
		if err != nil {
			return nil, err
		}
		out = append(out, override)
	}
	return out, nil
}

// Apply commits the batch in one transaction. Guards and expected stamps
// are re-checked under row locks, so a concurrent write anywhere in the
// batch's footprint rolls the whole batch back with a ConflictError.
func (s *Store) Apply(ctx context.Context, batch settings.Batch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	for _, guard := range batch.Guards {
		stamp, exists, err := lockStamp(ctx, tx, guard.Key)
		if err != nil {
			return err
		}
		if guard.Absent {
			if exists {
				return conflictFor(guard.Key)
			}
			continue
		}
		if !exists || !stamp.Equal(guard.Expected) {
			return conflictFor(guard.Key)
		}
	}

	now := s.clock()
	for _, change := range batch.Changes {
		stamp, exists, err := lockStamp(ctx, tx, change.Key)
		if err != nil {
			return err
		}
		if change.Expected.IsZero() {
			if exists {
				return conflictFor(change.Key)
			}
		} else if !exists || !stamp.Equal(change.Expected) {
			return conflictFor(change.Key)
		}

		var before *settings.Override
		if exists {
			current, ok, err := getForUpdate(ctx, tx, change.Key)
			if err != nil {
				return err
			}
			if ok {
				before = &current
			}
		}

		var after *settings.Override
		if change.Override == nil {
			if !exists {
				continue
			}
			_, err = tx.ExecContext(ctx, `
				DELETE FROM settings_overrides
				WHERE module = $1 AND setting_key = $2 AND scope_level = $3 AND scope_instance_id = $4`,
				change.Key.Module, change.Key.Key, change.Key.Level.String(), change.Key.InstanceID)
			if err != nil {
				return fmt.Errorf("postgres: delete %s: %w", change.Key.Identifier(), err)
			}
		} else {
			record := *change.Override
			record.UpdatedAt = now
			payload, err := json.Marshal(record.Value)
			if err != nil {
				return fmt.Errorf("postgres: encode value for %s: %w", change.Key.Identifier(), err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO settings_overrides
					(module, setting_key, scope_level, scope_instance_id, value, locked, updated_by, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (module, setting_key, scope_level, scope_instance_id) DO UPDATE SET
					value = EXCLUDED.value,
					locked = EXCLUDED.locked,
					updated_by = EXCLUDED.updated_by,
					updated_at = EXCLUDED.updated_at`,
				record.Module, record.Key, record.Level.String(), record.InstanceID,
				payload, record.Locked, record.UpdatedBy, record.UpdatedAt)
			if err != nil {
				return fmt.Errorf("postgres: upsert %s: %w", change.Key.Identifier(), err)
			}
			after = &record
		}

		if err := appendAudit(ctx, tx, batch.Actor, change.Key, before, after, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func lockStamp(ctx context.Context, tx *sqlx.Tx, key settings.OverrideKey) (time.Time, bool, error) {
	var stamp time.Time
	err := tx.GetContext(ctx, &stamp, `
		SELECT updated_at FROM settings_overrides
		WHERE module = $1 AND setting_key = $2 AND scope_level = $3 AND scope_instance_id = $4
		FOR UPDATE`,
		key.Module, key.Key, key.Level.String(), key.InstanceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("postgres: lock %s: %w", key.Identifier(), err)
	}
	return stamp, true, nil
}

func getForUpdate(ctx context.Context, tx *sqlx.Tx, key settings.OverrideKey) (settings.Override, bool, error) {
	var row overrideRow
	err := tx.GetContext(ctx, &row, selectOverride+`
	WHERE module = $1 AND setting_key = $2 AND scope_level = $3 AND scope_instance_id = $4
	FOR UPDATE`,
		key.Module, key.Key, key.Level.String(), key.InstanceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return settings.Override{}, false, nil
		}
		return settings.Override{}, false, fmt.Errorf("postgres: get %s: %w", key.Identifier(), err)
	}
	override, err := row.toOverride()
	if err != nil {
		return settings.Override{}, false, err
	}
	return override, true, nil
}

func appendAudit(ctx context.Context, tx *sqlx.Tx, actor string, key settings.OverrideKey, before, after *settings.Override, now time.Time) error {
	encode := func(override *settings.Override) (any, error) {
		if override == nil {
			return nil, nil
		}
		payload, err := json.Marshal(override)
		if err != nil {
			return nil, fmt.Errorf("postgres: encode audit snapshot for %s: %w", key.Identifier(), err)
		}
		return payload, nil
	}
	beforePayload, err := encode(before)
	if err != nil {
		return err
	}
	afterPayload, err := encode(after)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings_audit
			(id, actor, module, setting_key, scope_level, scope_instance_id, before, after, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), actor, key.Module, key.Key, key.Level.String(), key.InstanceID,
		beforePayload, afterPayload, now)
	if err != nil {
		return fmt.Errorf("postgres: append audit for %s: %w", key.Identifier(), err)
	}
	return nil
}

// AuditRecords returns the append-only audit trail for (module, key) in
// commit order. Empty module/key act as wildcards.
func (s *Store) AuditRecords(ctx context.Context, module, key string) ([]settings.AuditRecord, error) {
	query := `
		SELECT id, actor, module, setting_key, scope_level, scope_instance_id, before, after, occurred_at
		FROM settings_audit
		WHERE ($1 = '' OR module = $1) AND ($2 = '' OR setting_key = $2)
		ORDER BY occurred_at`

	rows, err := s.db.QueryxContext(ctx, query, module, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit records: %w", err)
	}
	defer rows.Close()

	var out []settings.AuditRecord
	for rows.Next() {
		var (
			record settings.AuditRecord
			level  string
			before []byte
			after  []byte
		)
		if err := rows.Scan(&record.ID, &record.Actor, &record.Module, &record.Key,
			&level, &record.InstanceID, &before, &after, &record.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit record: %w", err)
		}
		record.Level = settings.ParseLevel(level)
		if len(before) > 0 {
			var snapshot settings.Override
			if err := json.Unmarshal(before, &snapshot); err != nil {
				return nil, fmt.Errorf("postgres: decode audit before: %w", err)
			}
			record.Before = &snapshot
		}
		if len(after) > 0 {
			var snapshot settings.Override
			if err := json.Unmarshal(after, &snapshot); err != nil {
				return nil, fmt.Errorf("postgres: decode audit after: %w", err)
			}
			record.After = &snapshot
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func conflictFor(key settings.OverrideKey) error {
	return fmt.Errorf("apply %s: %w", key.Identifier(), &settings.ConflictError{
		Module:     key.Module,
		Key:        key.Key,
		Level:      key.Level,
		InstanceID: key.InstanceID,
	})
}

var _ settings.Store = (*Store)(nil)
var _ settings.AuditLog = (*Store)(nil)

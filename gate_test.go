package settings

import (
	"context"
	"errors"
	"testing"
)

func allowAll() CapabilityChecker {
	return CapabilityFunc(func(context.Context, string, string) (bool, error) {
		return true, nil
	})
}

func denyAll() CapabilityChecker {
	return CapabilityFunc(func(context.Context, string, string) (bool, error) {
		return false, nil
	})
}

func actorAt(id string, scope Context) Actor {
	return Actor{ID: id, Scope: scope, Capabilities: allowAll()}
}

func saveDefinitions() []Definition {
	return []Definition{
		{
			Module:        "timetracking",
			Key:           "manual_booking_allowed",
			Type:          TypeBool,
			Default:       true,
			Lockable:      true,
			AllowedLevels: []Level{LevelCompany, LevelDepartment, LevelTeam, LevelUser},
		},
		{
			Module:        "timetracking",
			Key:           "rounding_minutes",
			Type:          TypeInt,
			Default:       int64(1),
			AllowedLevels: []Level{LevelCompany, LevelTeam},
			Constraint:    "value in [1, 5, 6, 10, 15, 30]",
		},
	}
}

func TestSaveSettingsPersistsAndResolves(t *testing.T) {
	engine, store := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": false,
		"rounding_minutes":       15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || len(result.Applied) != 2 {
		t.Fatalf("expected both keys applied, got %+v", result)
	}

	setting, err := engine.Resolve(ctx, "timetracking", "rounding_minutes", Context{CompanyID: "acme", UserID: "u-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setting.Value != int64(15) {
		t.Fatalf("saved value did not resolve, got %v", setting.Value)
	}
	if setting.Source != (Ref{Level: LevelCompany, InstanceID: "acme"}) {
		t.Fatalf("unexpected source %v", setting.Source)
	}

	trail, err := store.AuditRecords(ctx, "timetracking", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected two audit records, got %d", len(trail))
	}
	for _, record := range trail {
		if record.Actor != "admin-1" || record.After == nil || record.Before != nil {
			t.Fatalf("create audit record malformed: %+v", record)
		}
	}
}

func TestSaveSettingsRejectedUnderAncestorLock(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()

	admin := actorAt("admin-1", Context{CompanyID: "acme"})
	if result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": Write{Value: false, Lock: true},
	}); err != nil || !result.OK() {
		t.Fatalf("lock save failed: err=%v result=%+v", err, result)
	}

	manager := actorAt("mgr-9", Context{CompanyID: "acme", TeamID: "night"})
	result, err := engine.SaveSettings(ctx, "timetracking", manager, map[string]any{
		"manual_booking_allowed": true,
		"rounding_minutes":       5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keyErr := result.Errors["manual_booking_allowed"]
	if !errors.Is(keyErr, ErrLockedByAncestor) {
		t.Fatalf("expected locked-by-ancestor error, got %v", keyErr)
	}
	var locked *LockedByAncestorError
	if !errors.As(keyErr, &locked) || locked.LockedBy != (Ref{Level: LevelCompany, InstanceID: "acme"}) {
		t.Fatalf("error must name the locking scope, got %v", keyErr)
	}

	// The valid rounding_minutes entry must not have been committed either.
	if len(result.Applied) != 0 {
		t.Fatalf("a failed batch must apply nothing, got %+v", result.Applied)
	}
	setting, err := engine.Resolve(ctx, "timetracking", "rounding_minutes", Context{CompanyID: "acme", TeamID: "night"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setting.Value != int64(1) {
		t.Fatalf("rejected batch leaked a write: %v", setting.Value)
	}
}

func TestSaveSettingsSameLevelReSaveUnderOwnLock(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	if result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": Write{Value: false, Lock: true},
	}); err != nil || !result.OK() {
		t.Fatalf("lock save failed: err=%v result=%+v", err, result)
	}

	// The locking scope itself may update or release its lock.
	result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": Write{Value: true, Lock: false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("same-level re-save must succeed, got %+v", result.Errors)
	}

	setting, err := engine.Resolve(ctx, "timetracking", "manual_booking_allowed", Context{CompanyID: "acme", UserID: "u-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setting.Value != true || setting.Locked {
		t.Fatalf("lock release did not take effect: %+v", setting)
	}
}

func TestSaveSettingsBatchAtomicity(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": false,
		"rounding_minutes":       90, // violates the constraint
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() {
		t.Fatalf("expected a constraint failure")
	}
	if !errors.Is(result.Errors["rounding_minutes"], ErrConstraintViolated) {
		t.Fatalf("expected constraint violation, got %v", result.Errors["rounding_minutes"])
	}
	if kinds := result.ErrorKinds(); kinds["rounding_minutes"] != "constraint_violated" {
		t.Fatalf("unexpected error kinds: %v", kinds)
	}

	setting, err := engine.Resolve(ctx, "timetracking", "manual_booking_allowed", Context{CompanyID: "acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setting.Value != true {
		t.Fatalf("valid entry of a failed batch must not persist, got %v", setting.Value)
	}
}

func TestSaveSettingsValidationFailures(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor Actor
		batch map[string]any
		key   string
		want  error
	}{
		{
			name:  "unknown key",
			actor: actorAt("admin-1", Context{CompanyID: "acme"}),
			batch: map[string]any{"ghost": true},
			key:   "ghost",
			want:  ErrUnknownSetting,
		},
		{
			name:  "level not allowed",
			actor: actorAt("u-1", Context{CompanyID: "acme", UserID: "u-1"}),
			batch: map[string]any{"rounding_minutes": 5},
			key:   "rounding_minutes",
			want:  ErrScopeNotAllowed,
		},
		{
			name:  "lock on non-lockable setting",
			actor: actorAt("admin-1", Context{CompanyID: "acme"}),
			batch: map[string]any{"rounding_minutes": Write{Value: 5, Lock: true}},
			key:   "rounding_minutes",
			want:  ErrScopeNotAllowed,
		},
		{
			name: "missing capability",
			actor: Actor{
				ID:           "intern",
				Scope:        Context{CompanyID: "acme"},
				Capabilities: denyAll(),
			},
			batch: map[string]any{"rounding_minutes": 5},
			key:   "rounding_minutes",
			want:  ErrPermissionDenied,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.SaveSettings(ctx, "timetracking", tc.actor, tc.batch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !errors.Is(result.Errors[tc.key], tc.want) {
				t.Fatalf("error for %s = %v, want %v", tc.key, result.Errors[tc.key], tc.want)
			}
			if len(result.Applied) != 0 {
				t.Fatalf("failed batch must apply nothing")
			}
		})
	}
}

func TestSaveSettingsCoercionFailure(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	result, err := engine.SaveSettings(context.Background(), "timetracking", admin, map[string]any{
		"manual_booking_allowed": "yes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() {
		t.Fatalf("expected a type error for %q", "yes")
	}
}

func TestSaveSettingsNilValueReverts(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()
	admin := actorAt("admin-1", Context{CompanyID: "acme"})
	scope := Context{CompanyID: "acme", UserID: "u-1"}

	if result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": false,
	}); err != nil || !result.OK() {
		t.Fatalf("save failed: err=%v result=%+v", err, result)
	}

	result, err := engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || len(result.Deleted) != 1 {
		t.Fatalf("expected one deletion, got %+v", result)
	}

	setting, err := engine.Resolve(ctx, "timetracking", "manual_booking_allowed", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setting.Value != true || setting.Source != GlobalRef() {
		t.Fatalf("delete must revert to the inherited value: %+v", setting)
	}

	// Deleting an absent override is a no-op, not an error.
	result, err = engine.SaveSettings(ctx, "timetracking", admin, map[string]any{
		"manual_booking_allowed": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || len(result.Deleted) != 0 {
		t.Fatalf("absent delete must be a no-op, got %+v", result)
	}
}

func TestSaveSettingsConcurrentLockChangeConflicts(t *testing.T) {
	engine, store := newTestEngine(t, saveDefinitions()...)
	ctx := context.Background()
	manager := actorAt("mgr-9", Context{CompanyID: "acme", TeamID: "night"})

	// Wrap the store so a company lock lands between validation and commit.
	racy := &raceStore{MemoryStore: store}
	racy.beforeApply = func() {
		mustApply(t, store,
			override("timetracking", "manual_booking_allowed", LevelCompany, "acme", false, true),
		)
	}
	engine.store = racy

	_, err := engine.SaveSettings(ctx, "timetracking", manager, map[string]any{
		"manual_booking_allowed": true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected a conflict from the commit-time guard, got %v", err)
	}

	// Nothing must have been written for the team.
	engine.store = store
	setting, resolveErr := engine.Resolve(ctx, "timetracking", "manual_booking_allowed", Context{CompanyID: "acme", TeamID: "night"})
	if resolveErr != nil {
		t.Fatalf("unexpected error: %v", resolveErr)
	}
	if setting.Source != (Ref{Level: LevelCompany, InstanceID: "acme"}) || setting.Value != false {
		t.Fatalf("the concurrent lock must stand alone: %+v", setting)
	}
}

// raceStore injects a state change right before the batch commits.
type raceStore struct {
	*MemoryStore
	beforeApply func()
}

func (s *raceStore) Apply(ctx context.Context, batch Batch) error {
	if s.beforeApply != nil {
		s.beforeApply()
		s.beforeApply = nil
	}
	return s.MemoryStore.Apply(ctx, batch)
}

func TestSaveSettingsEmptyBatch(t *testing.T) {
	engine, _ := newTestEngine(t, saveDefinitions()...)
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	result, err := engine.SaveSettings(context.Background(), "timetracking", admin, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || len(result.Applied) != 0 {
		t.Fatalf("empty batch must be a no-op, got %+v", result)
	}
}

func TestSaveSettingsInvalidatesResolutionCache(t *testing.T) {
	catalog, err := NewCatalog(saveDefinitions()...)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := NewMemoryStore()
	cache := &recordingCache{}
	engine, err := NewEngine(catalog, store, WithResolutionCache(cache))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	admin := actorAt("admin-1", Context{CompanyID: "acme"})

	if result, err := engine.SaveSettings(context.Background(), "timetracking", admin, map[string]any{
		"rounding_minutes": 5,
	}); err != nil || !result.OK() {
		t.Fatalf("save failed: err=%v result=%+v", err, result)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != (Ref{Level: LevelCompany, InstanceID: "acme"}) {
		t.Fatalf("expected the written scope to be invalidated, got %v", cache.invalidated)
	}
}

type recordingCache struct {
	invalidated []Ref
}

func (c *recordingCache) Get(context.Context, string, string, Context) (EffectiveSetting, bool) {
	return EffectiveSetting{}, false
}

func (c *recordingCache) Set(context.Context, string, string, Context, EffectiveSetting) {}

func (c *recordingCache) Invalidate(_ context.Context, _ string, refs []Ref) error {
	c.invalidated = append(c.invalidated, refs...)
	return nil
}

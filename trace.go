package settings

import (
	"context"
	"encoding/json"
	"fmt"
)

// Trace captures provenance for one resolution: every scope instance on
// the walk and how it contributed to the effective value. Audit screens use
// it to show operators where a value comes from and which overrides are
// dormant under a lock.
type Trace struct {
	Module string      `json:"module"`
	Key    string      `json:"key"`
	Steps  []TraceStep `json:"steps"`
}

// TraceStep details one scope instance visited during the walk.
type TraceStep struct {
	Scope    Ref    `json:"-"`
	Level    string `json:"level"`
	Instance string `json:"instance,omitempty"`
	Found    bool   `json:"found"`
	Locked   bool   `json:"locked,omitempty"`
	Dormant  bool   `json:"dormant,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ToJSON serialises the trace for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// ResolveWithTrace resolves like Resolve while recording per-level
// provenance. It always reads the store directly, bypassing any resolution
// cache, since its purpose is to explain the authoritative state.
func (e *Engine) ResolveWithTrace(ctx context.Context, module, key string, scope Context) (EffectiveSetting, Trace, error) {
	def, err := e.catalog.Definition(module, key)
	if err != nil {
		return EffectiveSetting{}, Trace{}, err
	}
	overrides, err := e.store.ListForPath(ctx, module, key, scope)
	if err != nil {
		return EffectiveSetting{}, Trace{}, fmt.Errorf("settings: list %s/%s: %w", module, key, err)
	}
	setting := e.pick(def, overrides)

	byRef := make(map[Ref]Override, len(overrides))
	for _, override := range overrides {
		byRef[override.Ref()] = override
	}

	trace := Trace{Module: module, Key: key}
	for _, ref := range scope.Path() {
		step := TraceStep{
			Scope:    ref,
			Level:    ref.Level.String(),
			Instance: ref.InstanceID,
		}
		if override, ok := byRef[ref]; ok {
			step.Found = true
			step.Locked = override.Locked
			step.Value = cloneValue(override.Value)
			step.Selected = ref == setting.Source
			// An override below the selected lock point exists but is
			// never chosen until the lock is removed.
			step.Dormant = !step.Selected && setting.Locked && ref.Level.MoreSpecificThan(setting.Source.Level)
		} else if ref.Level == LevelGlobal && setting.Source == GlobalRef() {
			step.Selected = true
			step.Value = cloneValue(setting.Value)
		}
		trace.Steps = append(trace.Steps, step)
	}
	return setting, trace, nil
}

package settings

import (
	"context"
	"fmt"
)

// Resolve computes the effective value for (module, key) under scope.
//
// The walk runs from the least to the most specific level present in the
// context. The last locked override seen on the walk becomes the lock
// point: when one exists its value is binding for every descendant,
// regardless of more specific overrides (those stay stored but dormant).
// Without a lock point the most specific override wins, and with no
// override at all the catalog default applies with a global source.
func (e *Engine) Resolve(ctx context.Context, module, key string, scope Context) (EffectiveSetting, error) {
	def, err := e.catalog.Definition(module, key)
	if err != nil {
		return EffectiveSetting{}, err
	}
	if e.cfg.cache != nil {
		if cached, ok := e.cfg.cache.Get(ctx, module, key, scope); ok {
			return cached, nil
		}
	}

	overrides, err := e.store.ListForPath(ctx, module, key, scope)
	if err != nil {
		return EffectiveSetting{}, fmt.Errorf("settings: list %s/%s: %w", module, key, err)
	}
	setting := e.pick(def, overrides)
	if e.cfg.cache != nil {
		e.cfg.cache.Set(ctx, module, key, scope, setting)
	}
	return setting, nil
}

func (e *Engine) pick(def Definition, overrides []Override) EffectiveSetting {
	var lockPoint *Override
	var mostSpecific *Override
	for i := range overrides {
		override := overrides[i]
		if override.Locked {
			lockPoint = &overrides[i]
		}
		mostSpecific = &overrides[i]
	}

	selected := mostSpecific
	if lockPoint != nil {
		selected = lockPoint
	}
	if selected == nil {
		return EffectiveSetting{
			Value:      cloneValue(def.Default),
			Source:     GlobalRef(),
			Locked:     false,
			Definition: def,
		}
	}
	value := selected.Value
	if coerced, err := def.Type.Coerce(value); err == nil {
		value = coerced
	}
	return EffectiveSetting{
		Value:      cloneValue(value),
		Source:     selected.Ref(),
		Locked:     selected.Locked,
		Definition: def,
	}
}

// ResolveBatch resolves several keys of one module in a single call. An
// unknown key fails the whole batch: a catalog/code mismatch is a
// programming error, not a per-key condition.
func (e *Engine) ResolveBatch(ctx context.Context, module string, keys []string, scope Context) (map[string]EffectiveSetting, error) {
	out := make(map[string]EffectiveSetting, len(keys))
	for _, key := range keys {
		setting, err := e.Resolve(ctx, module, key, scope)
		if err != nil {
			return nil, err
		}
		out[key] = setting
	}
	return out, nil
}

// ResolveModule resolves every catalog key of module, the full payload a
// settings screen loads.
func (e *Engine) ResolveModule(ctx context.Context, module string, scope Context) (map[string]EffectiveSetting, error) {
	return e.ResolveBatch(ctx, module, e.catalog.ModuleKeys(module), scope)
}

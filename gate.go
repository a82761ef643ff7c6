package settings

import (
	"context"
	"fmt"

	"github.com/workforcekit/go-settings/pkg/audit"
)

// Actor identifies who is saving settings: a stable identifier for the
// audit trail, the scope context the actor writes at, and the injected
// capability check.
type Actor struct {
	ID           string
	Scope        Context
	Capabilities CapabilityChecker
}

// Write is a batch entry that carries a lock flag alongside the value.
// Plain values in a batch are shorthand for Write{Value: v}.
type Write struct {
	Value any
	Lock  bool
}

// SaveResult reports the outcome of one SaveSettings call. Errors maps
// failed keys to their validation error; when any key fails nothing is
// persisted.
type SaveResult struct {
	Applied []Override
	Deleted []OverrideKey
	Errors  map[string]error
}

// OK reports whether the batch committed.
func (r SaveResult) OK() bool {
	return len(r.Errors) == 0
}

// ErrorKinds maps failed keys to wire-level kind strings for transport.
func (r SaveResult) ErrorKinds() map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Errors))
	for key, err := range r.Errors {
		out[key] = Kind(err)
	}
	return out
}

// SaveSettings validates and commits a batch of overrides for one module.
//
// The target scope is the most specific level present in the actor's
// context. Each key passes catalog lookup, allowed-level and ancestor-lock
// checks, the manage capability, type coercion and the definition's
// constraint expression before being staged; a nil value (or Write with a
// nil value) stages a delete, reverting the key to the next-most-general
// applicable value.
//
// The batch is atomic: any per-key failure populates SaveResult.Errors and
// nothing is persisted. Lock-relevant observations are re-checked as guards
// inside the store's commit boundary, so a concurrent ancestor lock change
// surfaces as a ConflictError (returned as the call error, retryable once
// after re-resolving) rather than letting a now-illegal override through.
func (e *Engine) SaveSettings(ctx context.Context, module string, actor Actor, batch map[string]any) (SaveResult, error) {
	result := SaveResult{Errors: map[string]error{}}
	if len(batch) == 0 {
		return result, nil
	}
	target := actor.Scope.MostSpecific()

	allowed := false
	var err error
	if actor.Capabilities != nil {
		allowed, err = actor.Capabilities.HasPermission(ctx, module, "manage")
		if err != nil {
			return result, fmt.Errorf("settings: capability check %s:manage: %w", module, err)
		}
	}

	staged := make([]Change, 0, len(batch))
	guards := make([]Guard, 0)
	events := make([]audit.Event, 0, len(batch))

	for key, raw := range batch {
		write, isWrite := raw.(Write)
		if !isWrite {
			write = Write{Value: raw}
		}

		def, defErr := e.catalog.Definition(module, key)
		if defErr != nil {
			result.Errors[key] = defErr
			continue
		}
		if !def.AllowsLevel(target.Level) {
			result.Errors[key] = &ScopeNotAllowedError{Module: module, Key: key, Level: target.Level}
			continue
		}
		if write.Lock && !def.Lockable {
			result.Errors[key] = fmt.Errorf("%w: %s/%s is not lockable", ErrScopeNotAllowed, module, key)
			continue
		}
		if !allowed {
			result.Errors[key] = &PermissionDeniedError{Module: module, Action: "manage"}
			continue
		}

		overrides, listErr := e.store.ListForPath(ctx, module, key, actor.Scope)
		if listErr != nil {
			return result, fmt.Errorf("settings: list %s/%s: %w", module, key, listErr)
		}
		current := e.pick(def, overrides)
		if current.Locked && target.Level.MoreSpecificThan(current.Source.Level) {
			result.Errors[key] = &LockedByAncestorError{
				Module:   module,
				Key:      key,
				Level:    target.Level,
				LockedBy: current.Source,
			}
			continue
		}

		var existing *Override
		for i := range overrides {
			if overrides[i].Ref() == target {
				existing = &overrides[i]
			}
		}
		targetKey := OverrideKey{Module: module, Key: key, Level: target.Level, InstanceID: target.InstanceID}

		if write.Value == nil {
			// Revert to the inherited value. Deleting an absent override
			// is a no-op, not an error.
			if existing == nil {
				continue
			}
			staged = append(staged, Change{Key: targetKey, Expected: existing.UpdatedAt})
			guards = append(guards, e.ancestorGuards(def, target, actor.Scope, overrides)...)
			events = append(events, audit.BuildOverrideDeletedEvent(e.auditInput(actor, existing, nil)))
			result.Deleted = append(result.Deleted, targetKey)
			continue
		}

		coerced, coerceErr := def.Type.Coerce(write.Value)
		if coerceErr != nil {
			result.Errors[key] = coerceErr
			continue
		}
		if def.Constraint != "" {
			if constraintErr := e.checkConstraint(def, actor, target, coerced, current); constraintErr != nil {
				result.Errors[key] = constraintErr
				continue
			}
		}

		override := Override{
			Module:     module,
			Key:        key,
			Level:      target.Level,
			InstanceID: target.InstanceID,
			Value:      formatValue(coerced),
			Locked:     write.Lock,
			UpdatedBy:  actor.ID,
		}
		change := Change{Key: targetKey, Override: &override}
		if existing != nil {
			change.Expected = existing.UpdatedAt
		}
		staged = append(staged, change)
		guards = append(guards, e.ancestorGuards(def, target, actor.Scope, overrides)...)
		events = append(events, audit.BuildOverrideSavedEvent(e.auditInput(actor, existing, &override), existing != nil))
		result.Applied = append(result.Applied, override)
	}

	if len(result.Errors) > 0 {
		result.Applied = nil
		result.Deleted = nil
		return result, nil
	}
	if len(staged) == 0 {
		return result, nil
	}

	if err := e.store.Apply(ctx, Batch{Actor: actor.ID, Changes: staged, Guards: guards}); err != nil {
		return SaveResult{Errors: map[string]error{}}, err
	}

	if e.cfg.cache != nil {
		if err := e.cfg.cache.Invalidate(ctx, module, []Ref{target}); err != nil {
			return result, fmt.Errorf("settings: invalidate cache: %w", err)
		}
	}
	if e.cfg.emitter != nil {
		for _, event := range events {
			if emitErr := e.cfg.emitter.Emit(ctx, event); emitErr != nil {
				return result, fmt.Errorf("settings: emit audit: %w", emitErr)
			}
		}
	}
	return result, nil
}

// ancestorGuards re-asserts the lock-relevant state observed during
// validation. Only lockable settings need them: for every ancestor level of
// the write target, either the observed override must still carry the same
// stamp or the level must still be empty when the commit happens.
func (e *Engine) ancestorGuards(def Definition, target Ref, scope Context, observed []Override) []Guard {
	if !def.Lockable {
		return nil
	}
	byRef := make(map[Ref]Override, len(observed))
	for _, override := range observed {
		byRef[override.Ref()] = override
	}
	var guards []Guard
	for _, ref := range scope.Path() {
		if ref.Level == LevelGlobal || !target.Level.MoreSpecificThan(ref.Level) {
			continue
		}
		key := OverrideKey{Module: def.Module, Key: def.Key, Level: ref.Level, InstanceID: ref.InstanceID}
		if override, ok := byRef[ref]; ok {
			guards = append(guards, Guard{Key: key, Expected: override.UpdatedAt})
		} else {
			guards = append(guards, Guard{Key: key, Absent: true})
		}
	}
	return guards
}

func (e *Engine) checkConstraint(def Definition, actor Actor, target Ref, value any, current EffectiveSetting) error {
	evaluator := e.resolveEvaluator()
	if evaluator == nil {
		return fmt.Errorf("settings: constraint evaluator unavailable for %s", def.ID())
	}
	now := e.cfg.clock()
	ctx := ConstraintContext{
		Module:  def.Module,
		Key:     def.Key,
		Value:   value,
		Current: current.Value,
		Default: def.Default,
		Scope:   target,
		Actor:   actor.ID,
		Now:     &now,
	}
	start := e.cfg.clock()
	result, err := evaluator.Evaluate(ctx, def.Constraint)
	e.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engineName(evaluator),
		Expr:     def.Constraint,
		Setting:  def.ID(),
		Duration: e.cfg.clock().Sub(start),
		Err:      err,
	})
	if err != nil {
		return err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return fmt.Errorf("settings: constraint %q for %s must evaluate to bool, got %T", def.Constraint, def.ID(), result)
	}
	if !ok {
		return &ConstraintViolatedError{Module: def.Module, Key: def.Key, Value: value, Expr: def.Constraint}
	}
	return nil
}

func engineName(e ConstraintEvaluator) string {
	switch fmt.Sprintf("%T", e) {
	case "*settings.exprEvaluator":
		return "expr"
	case "*settings.celEvaluator":
		return "cel"
	case "*settings.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}

func (e *Engine) auditInput(actor Actor, before, after *Override) audit.OverrideEventInput {
	input := audit.OverrideEventInput{
		ActorID: actor.ID,
	}
	subject := after
	if subject == nil {
		subject = before
	}
	input.Module = subject.Module
	input.Key = subject.Key
	input.Level = subject.Level.String()
	input.InstanceID = subject.InstanceID
	if before != nil {
		input.OldValue = cloneValue(before.Value)
	}
	if after != nil {
		input.NewValue = cloneValue(after.Value)
		input.Locked = after.Locked
	}
	return input
}

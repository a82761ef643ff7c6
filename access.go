package settings

import (
	"context"
	"fmt"
)

// CapabilityChecker answers whether the current actor holds a capability
// for a module action. The underlying role/ACL model is owned by an
// external authorization component; the engine only consumes the verdict.
type CapabilityChecker interface {
	HasPermission(ctx context.Context, module, action string) (bool, error)
}

// CapabilityFunc adapts a plain function to CapabilityChecker.
type CapabilityFunc func(ctx context.Context, module, action string) (bool, error)

// HasPermission dispatches to the underlying function. A nil func denies.
func (fn CapabilityFunc) HasPermission(ctx context.Context, module, action string) (bool, error) {
	if fn == nil {
		return false, nil
	}
	return fn(ctx, module, action)
}

// IsAllowed reports whether the actor may exercise (module, key) for
// action: the resolved boolean value must be true and the capability check
// must pass. Non-boolean settings always answer false. Never mutates state.
func (e *Engine) IsAllowed(ctx context.Context, module, key, action string, scope Context, caps CapabilityChecker) (bool, error) {
	reason, err := e.RestrictionReason(ctx, module, key, action, scope, caps)
	if err != nil {
		return false, err
	}
	return reason == "", nil
}

// RestrictionReason explains why an action is restricted, or returns the
// empty string when it is allowed. The message names the failing side,
// either the setting (including the scope that pinned it) or the missing
// capability, so screens can render a precise notice.
func (e *Engine) RestrictionReason(ctx context.Context, module, key, action string, scope Context, caps CapabilityChecker) (string, error) {
	setting, err := e.Resolve(ctx, module, key, scope)
	if err != nil {
		return "", err
	}
	if setting.Definition.Type != TypeBool {
		return "", fmt.Errorf("settings: %s/%s is not a boolean setting", module, key)
	}
	if !Truthy(setting.Value) {
		if setting.Source.Level == LevelGlobal {
			return fmt.Sprintf("disabled by default for %s/%s", module, key), nil
		}
		return fmt.Sprintf("disabled by %s policy", setting.Source.Identifier()), nil
	}

	allowed := false
	if caps != nil {
		allowed, err = caps.HasPermission(ctx, module, action)
		if err != nil {
			return "", fmt.Errorf("settings: capability check %s:%s: %w", module, action, err)
		}
	}
	if !allowed {
		return fmt.Sprintf("missing permission %s:%s", module, action), nil
	}
	return "", nil
}

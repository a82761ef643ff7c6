package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSetting indicates a (module, key) pair absent from the
	// catalog. This is a catalog/code mismatch, never retried.
	ErrUnknownSetting = errors.New("settings: unknown setting")
	// ErrScopeNotAllowed indicates a write targeting a level the setting's
	// definition does not permit.
	ErrScopeNotAllowed = errors.New("settings: scope not allowed")
	// ErrLockedByAncestor indicates a write blocked by a binding lock at a
	// more general scope.
	ErrLockedByAncestor = errors.New("settings: locked by ancestor")
	// ErrPermissionDenied indicates the actor lacks the manage capability
	// for the module.
	ErrPermissionDenied = errors.New("settings: permission denied")
	// ErrConflict indicates a concurrent write was detected; the whole
	// batch is safe to retry once after re-resolving.
	ErrConflict = errors.New("settings: conflict")
	// ErrConstraintViolated indicates a staged value failed the
	// definition's constraint expression.
	ErrConstraintViolated = errors.New("settings: constraint violated")
)

// UnknownSettingError reports a lookup for a (module, key) the catalog does
// not define.
type UnknownSettingError struct {
	Module string
	Key    string
}

func (e *UnknownSettingError) Error() string {
	return fmt.Sprintf("settings: unknown setting %s/%s", e.Module, e.Key)
}

func (e *UnknownSettingError) Unwrap() error { return ErrUnknownSetting }

// ScopeNotAllowedError reports a write targeting a level outside the
// definition's allowed levels.
type ScopeNotAllowedError struct {
	Module string
	Key    string
	Level  Level
}

func (e *ScopeNotAllowedError) Error() string {
	return fmt.Sprintf("settings: %s/%s cannot be overridden at %s level", e.Module, e.Key, e.Level)
}

func (e *ScopeNotAllowedError) Unwrap() error { return ErrScopeNotAllowed }

// LockedByAncestorError reports a write blocked by a binding lock at a more
// general scope. LockedBy identifies the scope holding the lock so a
// consumer can explain "locked by company policy".
type LockedByAncestorError struct {
	Module   string
	Key      string
	Level    Level
	LockedBy Ref
}

func (e *LockedByAncestorError) Error() string {
	return fmt.Sprintf("settings: %s/%s is locked by %s and cannot be overridden at %s level",
		e.Module, e.Key, e.LockedBy.Identifier(), e.Level)
}

func (e *LockedByAncestorError) Unwrap() error { return ErrLockedByAncestor }

// PermissionDeniedError reports a missing actor capability.
type PermissionDeniedError struct {
	Module string
	Action string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("settings: missing permission %s:%s", e.Module, e.Action)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// ConflictError reports a compare-and-set failure on a stored override.
type ConflictError struct {
	Module     string
	Key        string
	Level      Level
	InstanceID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("settings: concurrent write on %s/%s at %s",
		e.Module, e.Key, Ref{Level: e.Level, InstanceID: e.InstanceID}.Identifier())
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConstraintViolatedError reports a staged value rejected by the
// definition's constraint expression.
type ConstraintViolatedError struct {
	Module string
	Key    string
	Value  any
	Expr   string
}

func (e *ConstraintViolatedError) Error() string {
	return fmt.Sprintf("settings: value %v for %s/%s violates constraint %q", e.Value, e.Module, e.Key, e.Expr)
}

func (e *ConstraintViolatedError) Unwrap() error { return ErrConstraintViolated }

// Kind maps an error to its wire-level kind string so consumers can render
// per-field messages. Unrecognised errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownSetting):
		return "unknown_setting"
	case errors.Is(err, ErrScopeNotAllowed):
		return "scope_not_allowed"
	case errors.Is(err, ErrLockedByAncestor):
		return "locked_by_ancestor"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConstraintViolated):
		return "constraint_violated"
	default:
		return "internal"
	}
}

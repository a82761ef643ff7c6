package settings

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unknown setting", &UnknownSettingError{Module: "m", Key: "k"}, "unknown_setting"},
		{"scope not allowed", &ScopeNotAllowedError{Module: "m", Key: "k", Level: LevelUser}, "scope_not_allowed"},
		{"locked by ancestor", &LockedByAncestorError{Module: "m", Key: "k"}, "locked_by_ancestor"},
		{"permission denied", &PermissionDeniedError{Module: "m", Action: "manage"}, "permission_denied"},
		{"conflict", &ConflictError{Module: "m", Key: "k"}, "conflict"},
		{"constraint violated", &ConstraintViolatedError{Module: "m", Key: "k"}, "constraint_violated"},
		{"wrapped sentinel", fmt.Errorf("apply: %w", ErrConflict), "conflict"},
		{"unrecognised", errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want {
				t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&UnknownSettingError{Module: "m", Key: "k"}, ErrUnknownSetting},
		{&ScopeNotAllowedError{Module: "m", Key: "k", Level: LevelTeam}, ErrScopeNotAllowed},
		{&LockedByAncestorError{Module: "m", Key: "k", Level: LevelTeam, LockedBy: Ref{Level: LevelCompany, InstanceID: "x"}}, ErrLockedByAncestor},
		{&PermissionDeniedError{Module: "m", Action: "manage"}, ErrPermissionDenied},
		{&ConflictError{Module: "m", Key: "k", Level: LevelCompany, InstanceID: "x"}, ErrConflict},
		{&ConstraintViolatedError{Module: "m", Key: "k", Value: 9, Expr: "value < 5"}, ErrConstraintViolated},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Fatalf("%T must unwrap to %v", tc.err, tc.sentinel)
		}
		if tc.err.Error() == "" {
			t.Fatalf("%T must render a message", tc.err)
		}
	}
}

func TestLockedByAncestorErrorMessageNamesScope(t *testing.T) {
	err := &LockedByAncestorError{
		Module:   "timetracking",
		Key:      "manual_booking_allowed",
		Level:    LevelTeam,
		LockedBy: Ref{Level: LevelCompany, InstanceID: "acme"},
	}
	want := "settings: timetracking/manual_booking_allowed is locked by company/acme and cannot be overridden at team level"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

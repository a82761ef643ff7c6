package settings

import "time"

// Override is an explicit value stored at one scope instance for a
// (module, key). Multiple overrides for the same setting may coexist at
// different levels; only resolution decides which one is live. Overrides
// are created and updated exclusively through the write gate.
type Override struct {
	Module     string    `json:"module"`
	Key        string    `json:"key"`
	Level      Level     `json:"level"`
	InstanceID string    `json:"instance_id"`
	Value      any       `json:"value"`
	Locked     bool      `json:"locked,omitempty"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// OverrideKey uniquely identifies a stored override.
type OverrideKey struct {
	Module     string
	Key        string
	Level      Level
	InstanceID string
}

// StoreKey returns the override's unique key.
func (o Override) StoreKey() OverrideKey {
	return OverrideKey{Module: o.Module, Key: o.Key, Level: o.Level, InstanceID: o.InstanceID}
}

// Ref returns the scope instance the override is stored at.
func (o Override) Ref() Ref {
	return Ref{Level: o.Level, InstanceID: o.InstanceID}
}

// Ref returns the scope instance the key points at.
func (k OverrideKey) Ref() Ref {
	return Ref{Level: k.Level, InstanceID: k.InstanceID}
}

// Identifier returns a deterministic storage slug, e.g.
// "timetracking/manual_booking_allowed@company/acme".
func (k OverrideKey) Identifier() string {
	return k.Module + "/" + k.Key + "@" + k.Ref().Identifier()
}

// clone returns a detached copy so stored values cannot be mutated through
// records handed to callers.
func (o Override) clone() Override {
	out := o
	out.Value = cloneValue(o.Value)
	return out
}

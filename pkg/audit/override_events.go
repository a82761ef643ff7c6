package audit

import (
	"strings"
	"time"
)

// OverrideEventInput describes the common fields for override lifecycle
// events.
type OverrideEventInput struct {
	ActorID    string
	Module     string
	Key        string
	Level      string
	InstanceID string
	Channel    string
	OldValue   any
	NewValue   any
	Locked     bool
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildOverrideSavedEvent constructs a normalized event for an override
// create or update.
func BuildOverrideSavedEvent(input OverrideEventInput, update bool) Event {
	verb := "settings.override.created"
	if update {
		verb = "settings.override.updated"
	}
	return buildOverrideEvent(verb, input)
}

// BuildOverrideDeletedEvent constructs a normalized event for an override
// deletion (revert to inherited value).
func BuildOverrideDeletedEvent(input OverrideEventInput) Event {
	return buildOverrideEvent("settings.override.deleted", input)
}

func buildOverrideEvent(verb string, input OverrideEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}
	if input.Locked {
		metadata = ensureMetadata(metadata)
		metadata["locked"] = true
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		Module:     strings.TrimSpace(input.Module),
		Key:        strings.TrimSpace(input.Key),
		Level:      strings.TrimSpace(input.Level),
		InstanceID: strings.TrimSpace(input.InstanceID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}

package audit

import "testing"

func TestBuildOverrideSavedEventVerbs(t *testing.T) {
	input := OverrideEventInput{
		ActorID:    "admin-1",
		Module:     "timetracking",
		Key:        "manual_booking_allowed",
		Level:      "company",
		InstanceID: "acme",
		OldValue:   true,
		NewValue:   false,
		Locked:     true,
	}

	created := BuildOverrideSavedEvent(input, false)
	if created.Verb != "settings.override.created" {
		t.Fatalf("create verb = %q", created.Verb)
	}
	updated := BuildOverrideSavedEvent(input, true)
	if updated.Verb != "settings.override.updated" {
		t.Fatalf("update verb = %q", updated.Verb)
	}

	if updated.Metadata["old_value"] != true || updated.Metadata["new_value"] != false {
		t.Fatalf("metadata must carry both values: %+v", updated.Metadata)
	}
	if updated.Metadata["locked"] != true {
		t.Fatalf("metadata must record the lock: %+v", updated.Metadata)
	}
	if updated.Level != "company" || updated.InstanceID != "acme" {
		t.Fatalf("scope fields lost: %+v", updated)
	}
}

func TestBuildOverrideDeletedEvent(t *testing.T) {
	event := BuildOverrideDeletedEvent(OverrideEventInput{
		ActorID:  "admin-1",
		Module:   "timetracking",
		Key:      "manual_booking_allowed",
		Level:    "user",
		OldValue: false,
	})
	if event.Verb != "settings.override.deleted" {
		t.Fatalf("delete verb = %q", event.Verb)
	}
	if event.Metadata["old_value"] != false {
		t.Fatalf("delete must record the removed value: %+v", event.Metadata)
	}
	if _, ok := event.Metadata["new_value"]; ok {
		t.Fatalf("delete must not carry a new value")
	}
}

func TestBuildOverrideEventWithoutValuesHasNoMetadata(t *testing.T) {
	event := BuildOverrideSavedEvent(OverrideEventInput{
		Module: "timetracking",
		Key:    "manual_booking_allowed",
	}, false)
	if event.Metadata != nil {
		t.Fatalf("no values means no metadata, got %+v", event.Metadata)
	}
}

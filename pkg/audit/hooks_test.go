package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		Verb:       "settings.override.updated",
		ActorID:    "admin-1",
		Module:     "timetracking",
		Key:        "manual_booking_allowed",
		Level:      "company",
		InstanceID: "acme",
	}
}

func TestHooksNotifyFansOut(t *testing.T) {
	first := &CaptureHook{}
	second := &CaptureHook{}
	hooks := Hooks{first, nil, second}

	if !hooks.Enabled() {
		t.Fatalf("hooks with entries must report enabled")
	}
	if err := hooks.Notify(context.Background(), validEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Events) != 1 || len(second.Events) != 1 {
		t.Fatalf("every hook must receive the event: %d/%d", len(first.Events), len(second.Events))
	}
}

func TestHooksNotifyJoinsErrors(t *testing.T) {
	errA := errors.New("sink a down")
	errB := errors.New("sink b down")
	received := &CaptureHook{}
	hooks := Hooks{
		&CaptureHook{Err: errA},
		received,
		&CaptureHook{Err: errB},
	}

	err := hooks.Notify(context.Background(), validEvent())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both hook errors joined, got %v", err)
	}
	if len(received.Events) != 1 {
		t.Fatalf("a failing sibling must not stop delivery")
	}
}

func TestHooksNotifySkipsIncompleteEvents(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}

	if err := hooks.Notify(context.Background(), Event{Verb: "settings.override.updated"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("events without module/key must be dropped")
	}
}

func TestHookFuncNilReceiver(t *testing.T) {
	var fn HookFunc
	if err := fn.Notify(context.Background(), validEvent()); err != nil {
		t.Fatalf("nil HookFunc must be a no-op, got %v", err)
	}
}

func TestNormalizeEvent(t *testing.T) {
	meta := map[string]any{"old_value": true}
	event := Event{
		Verb:     "  settings.override.updated ",
		ActorID:  " admin-1 ",
		Module:   " timetracking ",
		Key:      " manual_booking_allowed ",
		Metadata: meta,
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb != "settings.override.updated" || normalized.Module != "timetracking" {
		t.Fatalf("fields must be trimmed: %+v", normalized)
	}
	if normalized.OccurredAt.IsZero() {
		t.Fatalf("a missing timestamp must be filled in")
	}

	normalized.Metadata["old_value"] = false
	if meta["old_value"] != true {
		t.Fatalf("metadata must be cloned, not shared")
	}

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event.OccurredAt = fixed
	if got := NormalizeEvent(event).OccurredAt; !got.Equal(fixed) {
		t.Fatalf("an explicit timestamp must be kept, got %v", got)
	}
}

func TestEventSetting(t *testing.T) {
	if got := validEvent().Setting(); got != "timetracking/manual_booking_allowed" {
		t.Fatalf("Setting() = %q", got)
	}
}

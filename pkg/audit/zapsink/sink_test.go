package zapsink

import (
	"context"
	"testing"
	"time"

	"github.com/workforcekit/go-settings/pkg/audit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHookLogsStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	hook := New(zap.New(core))

	err := hook.Notify(context.Background(), audit.Event{
		Verb:       "settings.override.updated",
		ActorID:    "admin-1",
		Module:     "timetracking",
		Key:        "manual_booking_allowed",
		Level:      "company",
		InstanceID: "acme",
		Channel:    "workforce",
		Metadata:   map[string]any{"locked": true},
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "settings audit event" {
		t.Fatalf("message = %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["verb"] != "settings.override.updated" || fields["module"] != "timetracking" {
		t.Fatalf("missing structured fields: %+v", fields)
	}
	if fields["instance"] != "acme" || fields["channel"] != "workforce" {
		t.Fatalf("optional fields not logged: %+v", fields)
	}
}

func TestHookOmitsEmptyOptionalFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	hook := New(zap.New(core))

	if err := hook.Notify(context.Background(), audit.Event{
		Verb:   "settings.override.created",
		Module: "m",
		Key:    "k",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := logs.All()[0].ContextMap()
	if _, ok := fields["instance"]; ok {
		t.Fatalf("empty instance must not be logged")
	}
	if _, ok := fields["metadata"]; ok {
		t.Fatalf("empty metadata must not be logged")
	}
}

func TestNewNilLoggerFallsBackToNop(t *testing.T) {
	hook := New(nil)
	if err := hook.Notify(context.Background(), audit.Event{Verb: "v", Module: "m", Key: "k"}); err != nil {
		t.Fatalf("nop hook must not fail: %v", err)
	}
}

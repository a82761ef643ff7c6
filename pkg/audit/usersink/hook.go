// Package usersink adapts audit events to a go-users ActivitySink so
// settings changes appear in the surrounding application's activity feed.
package usersink

import (
	"context"
	"strings"
	"time"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
	"github.com/workforcekit/go-settings/pkg/audit"
)

// Hook adapts audit events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event audit.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := audit.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.Module == "" || normalized.Key == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	objectID := normalized.Setting()
	if normalized.Level != "" {
		objectID += "@" + normalized.Level
		if normalized.InstanceID != "" {
			objectID += "/" + normalized.InstanceID
		}
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		Verb:       normalized.Verb,
		ObjectType: "settings.override",
		ObjectID:   objectID,
		Channel:    normalized.Channel,
		Data:       cloneMap(normalized.Metadata),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	record.Data["module"] = normalized.Module
	record.Data["key"] = normalized.Key
	if normalized.Level != "" {
		record.Data["scope_level"] = normalized.Level
	}
	if normalized.InstanceID != "" {
		record.Data["scope_instance"] = normalized.InstanceID
	}

	return h.Sink.Log(ctx, record)
}

func parseUUID(input string) uuid.UUID {
	value := strings.TrimSpace(input)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

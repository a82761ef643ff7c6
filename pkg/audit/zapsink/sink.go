// Package zapsink logs audit events through a zap logger, the operational
// trail services keep alongside the store's authoritative audit table.
package zapsink

import (
	"context"

	"github.com/workforcekit/go-settings/pkg/audit"
	"go.uber.org/zap"
)

// Hook logs every audit event at info level with structured fields.
type Hook struct {
	Logger *zap.Logger
}

// New constructs a Hook; a nil logger falls back to zap.NewNop.
func New(logger *zap.Logger) Hook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Hook{Logger: logger}
}

// Notify implements audit.Hook.
func (h Hook) Notify(_ context.Context, event audit.Event) error {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("verb", event.Verb),
		zap.String("actor", event.ActorID),
		zap.String("module", event.Module),
		zap.String("key", event.Key),
		zap.String("level", event.Level),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.InstanceID != "" {
		fields = append(fields, zap.String("instance", event.InstanceID))
	}
	if event.Channel != "" {
		fields = append(fields, zap.String("channel", event.Channel))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	logger.Info("settings audit event", fields...)
	return nil
}

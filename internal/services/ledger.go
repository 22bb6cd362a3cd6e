package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/broadcast"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
)

// DeliveryStore applies delivery-count increments.
type DeliveryStore interface {
	IncrementDelivered(ctx context.Context, id uint, hackathonID string, n int64) error
}

// DeliveryLedger consumes acknowledgment events and maintains per-notification
// delivered counts. The count is best-effort telemetry: acks are at-least-once,
// so a retried fan-out can ack twice and overcount. Consumers must not treat
// it as an exact total.
type DeliveryLedger struct {
	store  DeliveryStore
	logger *slog.Logger
}

func NewDeliveryLedger(store DeliveryStore, logger *slog.Logger) *DeliveryLedger {
	return &DeliveryLedger{store: store, logger: logger}
}

// Run subscribes to the acknowledgment channel until the context is
// cancelled. Fan-out never waits on this path.
func (l *DeliveryLedger) Run(ctx context.Context, bus broadcast.Broadcaster) error {
	return bus.Subscribe(ctx, models.AckChannel, func(payload []byte) {
		l.Apply(ctx, payload)
	})
}

// Apply processes one raw ack payload. Malformed payloads are logged and
// dropped; they must never take the subscriber down.
func (l *DeliveryLedger) Apply(ctx context.Context, payload []byte) {
	var ack models.AckEvent
	if err := json.Unmarshal(payload, &ack); err != nil {
		metrics.AcksMalformedTotal.Inc()
		l.logger.Warn("dropping malformed ack payload", slog.Any("error", err))
		return
	}
	if ack.NotificationID == 0 || ack.HackathonID == "" {
		metrics.AcksMalformedTotal.Inc()
		l.logger.Warn("dropping ack with missing fields",
			slog.Uint64("notification_id", uint64(ack.NotificationID)),
			slog.String("hackathon_id", ack.HackathonID))
		return
	}

	if err := l.store.IncrementDelivered(ctx, ack.NotificationID, ack.HackathonID, ack.Delivered); err != nil {
		l.logger.Error("failed to apply ack",
			slog.Uint64("notification_id", uint64(ack.NotificationID)),
			slog.String("hackathon_id", ack.HackathonID),
			slog.Any("error", err))
		return
	}
	metrics.AcksAppliedTotal.Inc()
	l.logger.Debug("ack applied",
		slog.Uint64("notification_id", uint64(ack.NotificationID)),
		slog.String("hackathon_id", ack.HackathonID),
		slog.Int64("delivered", ack.Delivered))
}

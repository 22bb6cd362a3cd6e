package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/broadcast"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/queue"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
)

// ConnectionResolver yields every live connection for a hackathon.
type ConnectionResolver interface {
	Resolve(ctx context.Context, hackathonID string) ([]string, error)
}

// StreamAppender records a delivery attempt on the tenant's backpressure
// stream.
type StreamAppender interface {
	Append(ctx context.Context, hackathonID string, notificationID uint) (string, error)
}

// FanoutProcessor is the job handler run by the worker pool: resolve the
// tenant's connections, push the notification over the bus, record the
// stream entry, publish the acknowledgment.
type FanoutProcessor struct {
	resolver ConnectionResolver
	bus      broadcast.Broadcaster
	stream   StreamAppender
	logger   *slog.Logger
}

func NewFanoutProcessor(resolver ConnectionResolver, bus broadcast.Broadcaster, stream StreamAppender, logger *slog.Logger) *FanoutProcessor {
	return &FanoutProcessor{
		resolver: resolver,
		bus:      bus,
		stream:   stream,
		logger:   logger,
	}
}

// Process fans one job out. Any error before the ack step fails the job and
// re-enters the retry policy, so clients may see the same notification more
// than once; the ack itself is fire-and-forget because re-running a whole
// fan-out over a lost ack would duplicate pushes without bound.
func (p *FanoutProcessor) Process(ctx context.Context, job *queue.Job) error {
	conns, err := p.resolver.Resolve(ctx, job.HackathonID)
	if err != nil {
		return fmt.Errorf("resolve connections: %w", err)
	}

	payload, err := json.Marshal(models.NotificationEvent{
		ID:      job.NotificationID,
		Message: job.Message,
		Type:    job.Type,
	})
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	// Target the room and every resolved connection. The room covers
	// sockets that joined after the resolve; the explicit ids cover
	// sockets whose room membership is stale. The hub delivers once per
	// socket either way.
	err = p.bus.Broadcast(ctx, broadcast.Message{
		Event:         models.EventNotificationReceived,
		HackathonID:   job.HackathonID,
		ConnectionIDs: conns,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("broadcast notification %d: %w", job.NotificationID, err)
	}

	if _, err := p.stream.Append(ctx, job.HackathonID, job.NotificationID); err != nil {
		return fmt.Errorf("append stream entry for notification %d: %w", job.NotificationID, err)
	}

	metrics.PushesSentTotal.WithLabelValues(job.HackathonID).Add(float64(len(conns)))

	ack, err := json.Marshal(models.AckEvent{
		NotificationID: job.NotificationID,
		HackathonID:    job.HackathonID,
		Delivered:      int64(len(conns)),
	})
	if err != nil {
		return fmt.Errorf("marshal ack event: %w", err)
	}
	if err := p.bus.Publish(ctx, models.AckChannel, ack); err != nil {
		p.logger.Warn("ack publish failed",
			slog.Uint64("notification_id", uint64(job.NotificationID)),
			slog.String("hackathon_id", job.HackathonID),
			slog.Any("error", err))
	}

	p.logger.Info("fan-out complete",
		slog.Uint64("notification_id", uint64(job.NotificationID)),
		slog.String("hackathon_id", job.HackathonID),
		slog.Int("connections", len(conns)))
	return nil
}

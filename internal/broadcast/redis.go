package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// busChannel carries socket-bound messages between instances. Every gateway
// instance subscribes; workers only publish.
const busChannel = "notifications:broadcast"

// ErrSubscriptionClosed reports a pubsub message channel that closed before
// the subscription context was cancelled. A gateway that keeps serving
// traffic after its subscription dies delivers nothing, so callers must
// treat this as fatal, not as a clean exit.
var ErrSubscriptionClosed = errors.New("broadcast: subscription closed")

// Redis is the multi-instance Broadcaster backed by Redis pub/sub.
type Redis struct {
	rdb        redis.UniversalClient
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewRedis returns a Redis-backed broadcaster. dispatcher may be nil on
// publish-only processes such as the fan-out worker.
func NewRedis(rdb redis.UniversalClient, dispatcher Dispatcher, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, dispatcher: dispatcher, logger: logger}
}

func (r *Redis) Broadcast(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}
	if err := r.rdb.Publish(ctx, busChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish broadcast message: %w", err)
	}
	return nil
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	sub := r.rdb.Subscribe(ctx, channel)
	defer sub.Close()
	return consume(ctx, sub.Channel(), handler)
}

func consume(ctx context.Context, ch <-chan *redis.Message, handler func(payload []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}
			handler([]byte(msg.Payload))
		}
	}
}

// Listen consumes the bus channel and hands each message to the local
// dispatcher. Gateway instances run this for the lifetime of the process.
func (r *Redis) Listen(ctx context.Context) error {
	if r.dispatcher == nil {
		return fmt.Errorf("broadcast listen requires a dispatcher")
	}
	return r.Subscribe(ctx, busChannel, func(payload []byte) {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.logger.Warn("dropping malformed broadcast message", slog.Any("error", err))
			return
		}
		r.dispatcher.Dispatch(msg)
	})
}

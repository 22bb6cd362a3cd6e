// Package broadcast is the cross-instance publish/subscribe fabric. Client
// connections are pinned to whichever gateway instance accepted them, but
// fan-out jobs run on any worker, so every push crosses the bus: the worker
// publishes a targeted message and each gateway instance delivers it to the
// local sockets it owns.
package broadcast

import (
	"context"
	"encoding/json"
)

// Message targets a hackathon room, an explicit set of connection ids, or
// both. The dispatcher delivers to the union of the two target sets exactly
// once per socket, so room coverage and direct addressing can be combined
// without double delivery on the same instance.
type Message struct {
	Event         string          `json:"event"`
	HackathonID   string          `json:"hackathon_id,omitempty"`
	ConnectionIDs []string        `json:"connection_ids,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Dispatcher delivers bus messages to the sockets owned by this instance.
type Dispatcher interface {
	Dispatch(msg Message)
}

// Broadcaster is the fabric shared by every delivery-server instance.
// Broadcast carries socket-bound pushes; Publish/Subscribe is the
// general-purpose channel used for delivery acknowledgments.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) error
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe invokes handler for every payload on the channel until the
	// context is cancelled.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}

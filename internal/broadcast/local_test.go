package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []Message
}

func (d *recordingDispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func (d *recordingDispatcher) messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.msgs...)
}

func TestLocalBroadcastDispatches(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	bus := NewLocal(dispatcher)

	payload, _ := json.Marshal(map[string]string{"message": "Deadline for demo!"})
	err := bus.Broadcast(context.Background(), Message{
		Event:         "notification:received",
		HackathonID:   "demo-2025",
		ConnectionIDs: []string{"conn-1", "conn-2"},
		Payload:       payload,
	})
	require.NoError(t, err)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "demo-2025", msgs[0].HackathonID)
	assert.Equal(t, []string{"conn-1", "conn-2"}, msgs[0].ConnectionIDs)
}

func TestLocalPublishReachesSubscriber(t *testing.T) {
	bus := NewLocal(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	subDone := make(chan struct{})
	go func() {
		_ = bus.Subscribe(ctx, "notifications:delivered", func(payload []byte) {
			received <- payload
		})
		close(subDone)
	}()

	// Let the subscriber register before publishing.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs["notifications:delivered"]) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, bus.Publish(ctx, "notifications:delivered", []byte(`{"delivered":3}`)))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"delivered":3}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive payload")
	}

	cancel()
	select {
	case <-subDone:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop on context cancel")
	}
}

func TestLocalPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewLocal(nil)
	assert.NoError(t, bus.Publish(context.Background(), "notifications:delivered", []byte("x")))
}

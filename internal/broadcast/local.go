package broadcast

import (
	"context"
	"sync"
)

// Local is the single-instance Broadcaster: messages dispatch straight to
// the in-process hub and published payloads go to in-process subscribers.
// Worker logic is identical under Local and Redis; swapping the backend
// never touches the fan-out path.
type Local struct {
	dispatcher Dispatcher

	mu   sync.Mutex
	subs map[string]map[int]func([]byte)
	next int
}

func NewLocal(dispatcher Dispatcher) *Local {
	return &Local{
		dispatcher: dispatcher,
		subs:       make(map[string]map[int]func([]byte)),
	}
}

func (l *Local) Broadcast(_ context.Context, msg Message) error {
	if l.dispatcher != nil {
		l.dispatcher.Dispatch(msg)
	}
	return nil
}

func (l *Local) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.Lock()
	handlers := make([]func([]byte), 0, len(l.subs[channel]))
	for _, h := range l.subs[channel] {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	l.mu.Lock()
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[int]func([]byte))
	}
	id := l.next
	l.next++
	l.subs[channel][id] = handler
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	delete(l.subs[channel], id)
	l.mu.Unlock()
	return ctx.Err()
}

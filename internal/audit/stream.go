package audit

import (
	"context"
	"sync"
	"time"
)

// Stream fans emitted events out to in-process subscribers (the live
// security feed). It implements Emitter so it can sit alongside the durable
// sinks in a MultiEmitter.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	now  func() time.Time
}

// NewStream initialises an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan Event), now: time.Now}
}

var _ Emitter = (*Stream)(nil)

// Subscribe registers a subscriber and returns a channel which receives
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Emit fan-outs the event to all subscribers.
func (s *Stream) Emit(ctx context.Context, event Event) error {
	event.Normalize(s.now)
	event.Detail = contextDetail(ctx, event)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return nil
}

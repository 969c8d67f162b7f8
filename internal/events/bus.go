package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
)

// DefaultBufferSize is used when NewBus is given a non-positive size.
const DefaultBufferSize = 256

// Bus is a bounded, in-process event queue. Publish never blocks: when the
// buffer is full the event is dropped, logged and counted.
type Bus struct {
	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus holding at most size undelivered events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Bus{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues e, or drops it when the buffer is full or the bus is
// closed.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.EventDropped()
		return
	}

	select {
	case b.ch <- e:
	default:
		metrics.EventDropped()
		log.Warn().
			Str("entity", string(e.Entity)).
			Str("kind", string(e.Kind)).
			Str("id", e.ID).
			Msg("Event buffer full, dropping event")
	}
}

// Run delivers events to observers until the bus is closed and drained or
// ctx is cancelled. It must be called from exactly one goroutine.
func (b *Bus) Run(ctx context.Context, observers ...Observer) {
	defer close(b.done)

	for {
		select {
		case e, ok := <-b.ch:
			if !ok {
				return
			}
			deliver(e, observers)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops accepting events. Events already queued are still delivered
// by Run, which returns once the queue is empty.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// Done is closed when Run has returned.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func deliver(e Event, observers []Observer) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("entity", string(e.Entity)).
						Str("kind", string(e.Kind)).
						Msg("Event observer panicked")
				}
			}()
			o.Observe(e)
		}()
	}
}

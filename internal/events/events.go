// Package events carries typed lifecycle events from the services to
// observers. Services publish without blocking; a single consumer goroutine
// fans events out to every observer in publish order.
package events

import "time"

// Entity names the kind of record an event is about.
type Entity string

const (
	EntityUser    Entity = "user"
	EntitySession Entity = "session"
	EntityTweet   Entity = "tweet"
	EntityChat    Entity = "chat"
	EntityMessage Entity = "message"
)

// Kind names what happened to the record.
type Kind string

const (
	KindCreated         Kind = "created"
	KindUpdated         Kind = "updated"
	KindDeleted         Kind = "deleted"
	KindLiked           Kind = "liked"
	KindUnliked         Kind = "unliked"
	KindPasswordChanged Kind = "password_changed"
	KindDestroyed       Kind = "destroyed"
)

// Event is an immutable record of one lifecycle change. ActorID is empty
// for changes nobody asked for, such as a session timing out.
type Event struct {
	Entity  Entity
	Kind    Kind
	ID      string
	ActorID string
	At      time.Time
	Detail  string
}

// New builds an event stamped with the current time.
func New(entity Entity, kind Kind, id, actorID string) Event {
	return Event{
		Entity:  entity,
		Kind:    kind,
		ID:      id,
		ActorID: actorID,
		At:      time.Now().UTC(),
	}
}

// WithDetail returns a copy of e carrying a short free-form detail, such as
// the reason a session was destroyed.
func (e Event) WithDetail(detail string) Event {
	e.Detail = detail
	return e
}

// Publisher accepts events. Implementations must not block the caller.
type Publisher interface {
	Publish(Event)
}

// Observer receives every event delivered by a Bus.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}

// Package pubsub provides the generic publish/subscribe plumbing that
// kernel lifecycle, session store, and log tailing events flow through.
// Payload types stay with their owning packages; this package only knows
// about envelopes and delivery.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened to the payload's subject.
type EventType string

// Generic store event types. Domain packages define their own richer sets
// (kernel lifecycle, registry reloads) next to their payload types.
const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is a published envelope. Source identifies the publisher — a kernel
// ID, a watched file path, a component name — so subscribers shared by many
// publishers can tell streams apart without inspecting payloads.
type Event[T any] struct {
	Type      EventType
	Source    string
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, source string, payload T)
}

// Package hooks implements a small fan-out event bus decoupling event
// producers (currently DomainAgent) from consumers
// (interaction logging, metrics, UIs). Producers publish typed Events;
// subscribers register a Subscriber and receive every event published after
// registration.
package hooks

import (
	"context"
	"sort"
	"sync"
)

// EventType enumerates well-known lifecycle events broadcast on the bus.
type EventType string

const (
	RunStarted         EventType = "run_started"
	RunCompleted       EventType = "run_completed"
	ToolCallScheduled  EventType = "tool_call_scheduled"
	ToolResultReceived EventType = "tool_result_received"
	ModelCallStarted   EventType = "model_call_started"
	ModelCallCompleted EventType = "model_call_completed"
	AgentSwitchOccurred EventType = "agent_switch_occurred"
	SessionCleared     EventType = "session_cleared"
)

// Event is a single occurrence published on the bus. Payload carries
// event-specific data; subscribers that care about a particular EventType
// type-assert Payload according to a documented convention per type (see
// the telemetry.InteractionLog subscriber for an example).
type Event struct {
	Type      EventType
	TaskID    string
	AgentID   string
	SessionID string
	Payload   any
}

// Subscriber receives published events. HandleEvent errors are passed to
// the bus's onErr callback (or discarded when it is nil) and never fail the
// publisher.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts an ordinary function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription is a handle returned by Bus.Register; Close unregisters.
type Subscription struct {
	bus *Bus
	id  int
}

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
}

// Bus is a synchronous, in-process fan-out publisher. Publish calls every
// registered subscriber in registration order on the calling goroutine;
// producers that must not block on slow subscribers should wrap them in
// their own async adapter.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]Subscriber
	nextID int
	onErr  func(error)
}

// NewBus constructs an empty Bus. onErr, if non-nil, receives errors
// returned by subscriber HandleEvent calls; a nil onErr silently discards
// them.
func NewBus(onErr func(error)) *Bus {
	return &Bus{subs: map[int]Subscriber{}, onErr: onErr}
}

// Register adds a subscriber and returns a Subscription for unregistering.
func (b *Bus) Register(sub Subscriber) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	return &Subscription{bus: b, id: id}
}

// Publish fans the event out to every currently registered subscriber.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, b.subs[id])
	}
	b.mu.RUnlock()
	for _, s := range subs {
		if err := s.HandleEvent(ctx, event); err != nil && b.onErr != nil {
			b.onErr(err)
		}
	}
}

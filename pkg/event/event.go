// pkg/event/event.go
package event

import (
	"sync"
	"time"
)

// Type represents the type of event
type Type string

// Pipeline event types
const (
	FieldGenerated     Type = "field_generated"
	HeightfieldSampled Type = "heightfield_sampled"
	MeshBuilt          Type = "mesh_built"
	ArtifactWritten    Type = "artifact_written"
	RunFailed          Type = "run_failed"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Subscription identifies one registered handler.
type Subscription struct {
	bus       *Bus
	eventType Type
	id        uint64
}

// Cancel removes the handler from the bus. Calling it twice is harmless.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s.eventType, s.id)
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]subscriber
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscriber),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, handler: handler})

	return &Subscription{bus: b, eventType: eventType, id: id}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight Publish calls keep their snapshot
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.handlers[eventType] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribed handlers synchronously. A nil
// bus drops the event.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// RunEvent describes one stage of a generation run.
type RunEvent struct {
	BaseEvent
	RunID    string
	Stage    string
	Rows     int
	Cols     int
	Vertices int
	Elapsed  time.Duration
	Err      error
}

// NewRunEvent creates a new run event
func NewRunEvent(eventType Type, source interface{}, runID string) *RunEvent {
	return &RunEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		RunID: runID,
	}
}

// ArtifactEvent reports a file written by the exporter.
type ArtifactEvent struct {
	BaseEvent
	RunID string
	Path  string
	Kind  string
	Bytes int64
}

// NewArtifactEvent creates a new artifact event
func NewArtifactEvent(source interface{}, runID, path, kind string, size int64) *ArtifactEvent {
	return &ArtifactEvent{
		BaseEvent: BaseEvent{
			EventType: ArtifactWritten,
			Source:    source,
		},
		RunID: runID,
		Path:  path,
		Kind:  kind,
		Bytes: size,
	}
}

package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventGraphChanged      EventType = "graph_changed"
	EventNodeGenerated     EventType = "node_generated"
	EventGenerationFailed  EventType = "generation_failed"
	EventProjectSaved      EventType = "project_saved"
	EventProjectDeleted    EventType = "project_deleted"
	EventTemplatesReloaded EventType = "templates_reloaded"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// GraphChanged is the payload of EventGraphChanged
type GraphChanged struct {
	ProjectID   string `json:"projectId"`
	Fingerprint string `json:"fingerprint"`
	CanUndo     bool   `json:"canUndo"`
	CanRedo     bool   `json:"canRedo"`
}

// GenerationResult is the payload of EventNodeGenerated and EventGenerationFailed
type GenerationResult struct {
	ProjectID string `json:"projectId"`
	NodeID    string `json:"nodeId"`
	Error     string `json:"error,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSessionStarted   = "session_started"
	EventSessionCancelled = "session_cancelled"
	EventSessionExpired   = "session_expired"
	EventBookingConfirmed = "booking_confirmed"
	EventPaymentRedirect  = "payment_redirect"
	EventPaymentCancelled = "payment_cancelled"
	EventSubmissionFailed = "submission_failed"
)

// SessionEventPayload is the minimal session snapshot for event consumers.
type SessionEventPayload struct {
	SessionID   string `json:"session_id"`
	Vertical    string `json:"vertical"`
	State       string `json:"state"`
	ServiceID   int64  `json:"service_id,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	BookingID   int64  `json:"booking_id,omitempty"`
	Operator    bool   `json:"operator,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Event represents a lightweight domain event. Processed is set by the bus
// after dispatch and reports whether every handler accepted the event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	processed := true
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			processed = false
		}
	}
	event.Processed = processed
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

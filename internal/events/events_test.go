package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	if !received.Processed {
		t.Error("expected event to be marked processed")
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerFailure(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe("event", func(_ *Event) error { return errors.New("boom") })
	bus.Subscribe("event", func(_ *Event) error { return nil })

	ev := &Event{Type: "event"}
	bus.Publish(ev)

	if ev.Processed {
		t.Error("expected event to stay unprocessed after a handler failure")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestSessionEventPayload(t *testing.T) {
	bus := NewEventBus()

	var got SessionEventPayload
	bus.Subscribe(EventBookingConfirmed, func(event *Event) error {
		return json.Unmarshal(event.Payload, &got)
	})

	payload := SessionEventPayload{SessionID: "sess-1", Vertical: "class_session", BookingID: 42}
	if err := bus.PublishJSON(EventBookingConfirmed, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if got.SessionID != "sess-1" || got.BookingID != 42 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Vertical != "class_session" {
		t.Errorf("expected vertical class_session, got %s", got.Vertical)
	}
}

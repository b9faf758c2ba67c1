package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Scan lifecycle.
	EventScanStarted  EventType = "scan.started"
	EventDeviceFound  EventType = "scan.device"
	EventScanFinished EventType = "scan.finished"
	EventScanFailed   EventType = "scan.failed"

	// Connection lifecycle.
	EventConnectionState EventType = "connection.state"
	EventConnectionError EventType = "connection.error"

	// GATT discovery.
	EventServiceDiscovered EventType = "gatt.service.discovered"
	EventServiceState      EventType = "gatt.service.state"
	EventTargetSelected    EventType = "gatt.target.selected"
	EventTargetCleared     EventType = "gatt.target.cleared"

	// Control values and writes.
	EventControlChanged EventType = "control.changed"
	EventPayloadSent    EventType = "payload.sent"
	EventPayloadFailed  EventType = "payload.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with the payload marshalled as JSON. A payload that
// fails to marshal is dropped rather than failing the publish.
func NewEvent(t EventType, sessionID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// Event payloads.

// ConnectionStatePayload accompanies EventConnectionState.
type ConnectionStatePayload struct {
	From    ConnectionState `json:"from"`
	To      ConnectionState `json:"to"`
	Address string          `json:"address,omitempty"`
}

// ConnectionErrorPayload accompanies EventConnectionError and EventScanFailed.
type ConnectionErrorPayload struct {
	Kind    ControllerErrorKind `json:"kind,omitempty"`
	Code    ErrorCode           `json:"code"`
	Message string              `json:"message"`
}

// ServiceStatePayload accompanies EventServiceDiscovered and EventServiceState.
type ServiceStatePayload struct {
	UUID  string       `json:"uuid"`
	State ServiceState `json:"state"`
}

// WritePayload accompanies EventPayloadSent and EventPayloadFailed.
type WritePayload struct {
	Characteristic string    `json:"characteristic,omitempty"`
	Bytes          []int     `json:"bytes"`
	Error          string    `json:"error,omitempty"`
	Code           ErrorCode `json:"code,omitempty"`
}

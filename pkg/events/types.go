package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published
type EventType string

const (
	// Launch lifecycle
	EventLaunchStarted   EventType = "launch.started"
	EventLaunchCompleted EventType = "launch.completed"
	EventLaunchFailed    EventType = "launch.failed"

	// Destroy lifecycle
	EventDestroyStarted   EventType = "destroy.started"
	EventDestroyCompleted EventType = "destroy.completed"
	EventDestroyFailed    EventType = "destroy.failed"

	// Router state
	EventSpotReadyChanged EventType = "router.spot_ready_changed"
	EventFailoverTriggered EventType = "router.failover_triggered"

	// Preflight
	EventPreflightFailed EventType = "preflight.failed"
)

// Event represents a single event in the system
type Event struct {
	// ID is a unique identifier for this event (for idempotency)
	ID string

	// Type is the event type
	Type EventType

	// Timestamp is when the event occurred
	Timestamp time.Time

	// ServiceName is the deployment this event belongs to (empty for
	// events that aren't scoped to one, if any).
	ServiceName string

	// Payload contains event-specific data
	Payload map[string]interface{}
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(eventType EventType, serviceName string, payload map[string]interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ServiceName: serviceName,
		Payload:     payload,
	}
}

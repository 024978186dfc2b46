package discovery

import "time"

// EventBusinessDiscovered is published when a business is inserted.
const EventBusinessDiscovered = "business.discovered"

// BusinessEvent is the payload of a discovery event.
type BusinessEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"runId"`
	OccurredAt time.Time `json:"occurredAt"`
	Business   Business  `json:"business"`
}

// EventType exposes the event type as a message attribute.
func (e BusinessEvent) EventType() string { return e.Type }

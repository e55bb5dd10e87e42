package practice

import "time"

// EventKind names a session event published to observers.
type EventKind string

const (
	EventStatus         EventKind = "status"
	EventPartnerPartial EventKind = "partner.partial"
	EventPartnerFinal   EventKind = "partner.final"
	EventTraineeFinal   EventKind = "trainee.final"
	EventTimeWarning    EventKind = "time.warning"
	EventQuality        EventKind = "quality"
	EventAdvisory       EventKind = "advisory"
	EventEnded          EventKind = "ended"
)

type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status,omitempty"`
	Text      string    `json:"text,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink receives session events. Implementations must not block; the
// session publishes while holding its lock.
type EventSink interface {
	Publish(evt Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

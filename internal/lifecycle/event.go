package lifecycle

import "time"

type EventName string

const (
	EventActivated   EventName = "activated"
	EventDeactivated EventName = "deactivated"
	EventStopped     EventName = "stopped"
)

// Event is a lifecycle notification. EpisodeID identifies the activity
// episode the event belongs to: a fresh ID is minted every time the
// machine comes up from dormant or stopped.
type Event struct {
	Name      EventName `json:"name"`
	EpisodeID string    `json:"episodeId"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives lifecycle events. Events are delivered synchronously
// with the transition that caused them, in transition order, so an observer
// never sees a notification for a state the machine has not reached yet.
// Observers must not call back into the machine.
type Observer interface {
	LifecycleEvent(Event)
}

// Snapshot is a point-in-time copy of the machine's externally visible
// state, safe to hand to HTTP handlers and WS clients.
type Snapshot struct {
	State          State     `json:"state"`
	Running        bool      `json:"running"`
	EpisodeID      string    `json:"episodeId,omitempty"`
	LastActivityAt time.Time `json:"lastActivityAt,omitempty"`
}

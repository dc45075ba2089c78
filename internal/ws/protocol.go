package ws

import (
	"github.com/dormouse/backend/internal/lifecycle"
)

type MessageType string

const (
	MsgStatus    MessageType = "status"
	MsgEvent     MessageType = "event"
	MsgResources MessageType = "resources"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusPayload is sent once to every client on connect.
type StatusPayload struct {
	lifecycle.Snapshot
}

// EventPayload carries one lifecycle event.
type EventPayload struct {
	lifecycle.Event
}

// ResourcesPayload carries one usage sample, in the units the usage log
// record reports.
type ResourcesPayload struct {
	MemoryMB uint64  `json:"memory_mb"`
	CPULoad  float64 `json:"cpu_load"`
}

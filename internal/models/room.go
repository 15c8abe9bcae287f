package models

import "time"

// Room status values. The durable record is authoritative for status:
// every transition is written to the store before (or atomically with) the
// corresponding in-memory change.
const (
	RoomStatusActive     = "ACTIVE"
	RoomStatusInProgress = "IN_PROGRESS"
	RoomStatusClosed     = "CLOSED"
)

// RoomCapacity is the fixed participant limit per room. Joins are guarded by
// a conditional durable update against this value, never read-then-write.
const RoomCapacity = 5

// Room is the durable room record.
type Room struct {
	RoomCode         string    `json:"roomCode"`
	HostID           string    `json:"hostId"`
	Status           string    `json:"status"`
	Participants     []string  `json:"participants"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

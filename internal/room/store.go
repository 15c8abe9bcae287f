// internal/room/store.go
package room

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"bingo-service/internal/models"
)

// Sentinel errors for the coordination core. Handlers map these onto wire
// behavior: lobby-phase failures become an error event to the originating
// connection only, ErrNotYourTurn and ErrStaleSession are dropped silently.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomUnavailable = errors.New("room is not active")
	ErrRoomFull        = errors.New("room is at capacity")
	ErrNotYourTurn     = errors.New("caller is not the active player")
	ErrStaleSession    = errors.New("session id does not match the current match")
	ErrMatchNotStarted = errors.New("no match is in progress for this room")
)

// Store is the durable session store consumed by the coordination core. It
// is authoritative for room existence, capacity, and status; the in-memory
// Room is authoritative for low-latency turn and readiness data.
//
// AddParticipant must be a conditional write: append the identity and bump
// the count only while status is ACTIVE, the count is below capacity, and
// the identity is absent. A zero-row match reports ErrRoomFull or
// ErrRoomUnavailable, never a phantom success. That conditional update, not
// any in-process lock, is the defense against the join capacity race.
//
// CreateSession runs one transaction: flip the room to IN_PROGRESS, create
// the session row, and create one history row per participant with their
// frozen loadout.
type Store interface {
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	AddParticipant(ctx context.Context, code, playerID string) error
	RemoveParticipant(ctx context.Context, code, playerID string) error
	SetRoomStatus(ctx context.Context, code, status string) error
	CreateSession(ctx context.Context, code string, gridSize int, turnOrder []string, loadouts map[string][]int) (uuid.UUID, error)
	AppendDrawnNumber(ctx context.Context, sessionID uuid.UUID, number int) error
	FinalizeSession(ctx context.Context, code string, sessionID uuid.UUID, winnerID string) error
}

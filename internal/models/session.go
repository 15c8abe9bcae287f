package models

import (
	"time"

	"github.com/google/uuid"
)

// GameSession is the durable record of one played match: a fixed turn order
// and an append-only log of drawn numbers. WinnerID stays empty until a win
// claim is accepted.
type GameSession struct {
	ID           uuid.UUID `json:"id"`
	RoomCode     string    `json:"roomCode"`
	GridSize     int       `json:"gridSize"`
	TurnOrder    []string  `json:"turnOrder"`
	DrawnNumbers []int     `json:"drawnNumbers"`
	WinnerID     string    `json:"winnerId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MatchHistory is one (session, participant) row. Loadout is the board the
// player entered the match with, frozen at match start and never updated.
// Position is the final standing, zero until resolved.
type MatchHistory struct {
	UserID     string    `json:"userId"`
	SessionID  uuid.UUID `json:"sessionId"`
	Loadout    []int     `json:"loadout"`
	LinesCount int       `json:"linesCount"`
	Position   int       `json:"position,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

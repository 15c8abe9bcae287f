package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	// PlayerID is the stable, human-shareable identity ("BNG-XXXXXX") used
	// everywhere outside the users table: room participants, turn orders,
	// match history.
	PlayerID string `json:"playerId"`
}

// Loadout is a saved board arrangement owned by a user. The arrangement a
// player submits for a match is frozen into MatchHistory; rows here are just
// the profile's reusable presets.
type Loadout struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	GridSize    int       `json:"gridSize"`
	Arrangement []int     `json:"arrangement"`
	CreatedAt   time.Time `json:"createdAt"`
}

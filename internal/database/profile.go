// internal/database/profile.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bingo-service/internal/models"
)

// GetLoadouts lists a user's saved board arrangements.
func (s *Store) GetLoadouts(ctx context.Context, userID uuid.UUID) ([]models.Loadout, error) {
	q := `
	SELECT id, name, grid_size, arrangement, created_at
	FROM loadouts
	WHERE user_id = $1
	ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list loadouts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var loadouts []models.Loadout
	for rows.Next() {
		var l models.Loadout
		if err := rows.Scan(&l.ID, &l.Name, &l.GridSize, &l.Arrangement, &l.CreatedAt); err != nil {
			return nil, err
		}
		loadouts = append(loadouts, l)
	}
	return loadouts, rows.Err()
}

// HistoryEntry is one row of the match-history projection: the player's
// frozen loadout and standing joined with the session it belongs to.
type HistoryEntry struct {
	SessionID    uuid.UUID `json:"sessionId"`
	RoomCode     string    `json:"roomCode"`
	GridSize     int       `json:"gridSize"`
	Loadout      []int     `json:"loadout"`
	LinesCount   int       `json:"linesCount"`
	Position     *int      `json:"position"`
	WinnerID     *string   `json:"winnerId"`
	DrawnNumbers []int     `json:"drawnNumbers"`
}

// GetMatchHistory lists a player's concluded and in-flight matches, newest
// first.
func (s *Store) GetMatchHistory(ctx context.Context, playerID string) ([]HistoryEntry, error) {
	q := `
	SELECT h.session_id, g.room_code, g.grid_size, h.loadout, h.lines_count, h.position,
	       g.winner_id, g.drawn_numbers
	FROM match_history h
	JOIN game_sessions g ON g.id = h.session_id
	WHERE h.user_id = $1
	ORDER BY g.created_at DESC
	`
	rows, err := s.pool.Query(ctx, q, playerID)
	if err != nil {
		return nil, fmt.Errorf("list match history for %s: %w", playerID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.SessionID, &e.RoomCode, &e.GridSize, &e.Loadout, &e.LinesCount, &e.Position, &e.WinnerID, &e.DrawnNumbers); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

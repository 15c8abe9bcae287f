// internal/database/session.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

// CreateSession runs the match-initialization transaction: flip the room
// from ACTIVE to IN_PROGRESS, create the session row with an empty drawn
// sequence, and create one match_history row per participant carrying the
// loadout frozen at match start. If the room is no longer ACTIVE the
// status flip matches zero rows and the whole transaction aborts, leaving
// no session behind.
func (s *Store) CreateSession(ctx context.Context, code string, gridSize int, turnOrder []string, loadouts map[string][]int) (uuid.UUID, error) {
	sessionID := uuid.New()

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		statusQ := `UPDATE rooms SET status = $2 WHERE room_code = $1 AND status = $3`
		tag, err := tx.Exec(ctx, statusQ, code, models.RoomStatusInProgress, models.RoomStatusActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return room.ErrRoomUnavailable
		}

		sessionQ := `
		INSERT INTO game_sessions (id, room_code, grid_size, turn_order, drawn_numbers, created_at)
		VALUES ($1, $2, $3, $4, '{}', NOW())
		`
		if _, err := tx.Exec(ctx, sessionQ, sessionID, code, gridSize, turnOrder); err != nil {
			return err
		}

		historyQ := `
		INSERT INTO match_history (user_id, session_id, loadout, lines_count, created_at)
		VALUES ($1, $2, $3, 0, NOW())
		`
		for _, playerID := range turnOrder {
			if _, err := tx.Exec(ctx, historyQ, playerID, sessionID, loadouts[playerID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session for room %s: %w", code, err)
	}
	return sessionID, nil
}

// AppendDrawnNumber appends one number to the session's drawn sequence.
// The sequence is append-only and unfiltered; duplicates land as sent.
func (s *Store) AppendDrawnNumber(ctx context.Context, sessionID uuid.UUID, number int) error {
	q := `
	UPDATE game_sessions
	SET drawn_numbers = array_append(drawn_numbers, $2)
	WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, sessionID, number)
	if err != nil {
		return fmt.Errorf("append drawn number to session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return room.ErrStaleSession
	}
	return nil
}

// FinalizeSession records the winner on the session, marks the winner's
// history row as position 1, and closes the room, all in one transaction,
// since a concluded match is terminal for its room code.
func (s *Store) FinalizeSession(ctx context.Context, code string, sessionID uuid.UUID, winnerID string) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		winnerQ := `UPDATE game_sessions SET winner_id = $2 WHERE id = $1 AND winner_id IS NULL`
		tag, err := tx.Exec(ctx, winnerQ, sessionID, winnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return room.ErrStaleSession
		}

		positionQ := `UPDATE match_history SET position = 1 WHERE session_id = $1 AND user_id = $2`
		if _, err := tx.Exec(ctx, positionQ, sessionID, winnerID); err != nil {
			return err
		}

		closeQ := `UPDATE rooms SET status = $2 WHERE room_code = $1`
		_, err = tx.Exec(ctx, closeQ, code, models.RoomStatusClosed)
		return err
	})
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	return nil
}

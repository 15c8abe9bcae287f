// internal/database/room.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

// InsertRoom creates a new durable room record in ACTIVE state with an
// empty participant list. The host joins like everyone else, over the
// gateway, which is what populates the list.
func (s *Store) InsertRoom(ctx context.Context, code, hostID string) error {
	q := `
	INSERT INTO rooms (room_code, host_id, status, participants, participant_count)
	VALUES ($1, $2, $3, '{}', 0)
	`
	if _, err := s.pool.Exec(ctx, q, code, hostID, models.RoomStatusActive); err != nil {
		return fmt.Errorf("insert room %s: %w", code, err)
	}
	return nil
}

// FindRoomByCode fetches the durable room record. A missing code is
// room.ErrRoomNotFound, distinct from any transport or query failure so
// callers can pick the right rejection event.
func (s *Store) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var rec models.Room
	q := `
	SELECT room_code, host_id, status, participants, participant_count, created_at
	FROM rooms
	WHERE room_code = $1
	`
	err := s.pool.QueryRow(ctx, q, code).Scan(
		&rec.RoomCode,
		&rec.HostID,
		&rec.Status,
		&rec.Participants,
		&rec.ParticipantCount,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room %s: %w", code, err)
	}
	return &rec, nil
}

// AddParticipant appends playerID to the room's participant list with a
// single conditional UPDATE guarded on status, capacity, and absence. The
// guard runs at write time inside the database, so two joins landing on the
// same tick cannot both slip under the capacity limit. A zero-row result is
// resolved by re-reading the record: already present means a reconnect and
// succeeds, otherwise the room was full or concurrently closed.
func (s *Store) AddParticipant(ctx context.Context, code, playerID string) error {
	q := `
	UPDATE rooms
	SET participants = array_append(participants, $2),
	    participant_count = participant_count + 1
	WHERE room_code = $1
	  AND status = $3
	  AND participant_count < $4
	  AND NOT ($2 = ANY(participants))
	`
	tag, err := s.pool.Exec(ctx, q, code, playerID, models.RoomStatusActive, models.RoomCapacity)
	if err != nil {
		return fmt.Errorf("add participant to room %s: %w", code, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	rec, err := s.FindRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	for _, id := range rec.Participants {
		if id == playerID {
			return nil // reconnect: identity already listed
		}
	}
	if rec.Status != models.RoomStatusActive {
		return room.ErrRoomUnavailable
	}
	return room.ErrRoomFull
}

// RemoveParticipant drops playerID from the durable participant list and
// decrements the count. Removing an absent identity is a no-op.
func (s *Store) RemoveParticipant(ctx context.Context, code, playerID string) error {
	q := `
	UPDATE rooms
	SET participants = array_remove(participants, $2),
	    participant_count = participant_count - 1
	WHERE room_code = $1
	  AND $2 = ANY(participants)
	`
	if _, err := s.pool.Exec(ctx, q, code, playerID); err != nil {
		return fmt.Errorf("remove participant from room %s: %w", code, err)
	}
	return nil
}

// SetRoomStatus applies a status transition to the durable record.
func (s *Store) SetRoomStatus(ctx context.Context, code, status string) error {
	q := `UPDATE rooms SET status = $2 WHERE room_code = $1`
	tag, err := s.pool.Exec(ctx, q, code, status)
	if err != nil {
		return fmt.Errorf("set room %s status %s: %w", code, status, err)
	}
	if tag.RowsAffected() == 0 {
		return room.ErrRoomNotFound
	}
	return nil
}

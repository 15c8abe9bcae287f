// internal/room/match.go
package room

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bingo-service/internal/models"
)

// MatchStart carries everything the gateway broadcasts when a match begins.
// Roster is public data only (identity + display name); loadouts remain
// private per-client.
type MatchStart struct {
	SessionID      uuid.UUID
	TurnOrder      []string
	ActivePlayerID string
	Roster         []map[string]interface{}
}

// NumberUpdate is the result of one accepted callNumber action.
type NumberUpdate struct {
	SessionID    uuid.UUID
	Number       int
	NextPlayerID string
}

// MatchEnd is the result of an accepted win claim.
type MatchEnd struct {
	SessionID  uuid.UUID
	WinnerID   string
	WinnerName string
}

// shuffleTurnOrder returns a uniformly random permutation of ids
// (Fisher-Yates via rand.Shuffle). The input is not modified.
func shuffleTurnOrder(ids []string) []string {
	order := append([]string(nil), ids...)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// parseGridSize extracts the board dimension from a game type like "5x5".
func parseGridSize(gameType string) int {
	dim, _, ok := strings.Cut(gameType, "x")
	if ok {
		if n, err := strconv.Atoi(dim); err == nil && n > 0 {
			return n
		}
	}
	return 5
}

// StartMatch initializes a match for r: it derives a random turn order,
// runs the store transaction (room to IN_PROGRESS, one session row, one
// history row per participant with the frozen loadout), and only after the
// transaction commits applies the match fields in memory.
//
// The room lock is not held across the transaction. The snapshot is taken
// under the lock, the store call runs unlocked, and the result is applied
// after re-acquiring and re-checking that no match started in between. On
// any store failure the in-memory state is untouched and the room stays in
// lobby phase; the trigger must be re-issued.
func StartMatch(ctx context.Context, store Store, r *Room) (*MatchStart, error) {
	r.Mu.Lock()
	if r.InMatchUnsafe() {
		r.Mu.Unlock()
		return nil, ErrStaleSession
	}
	if !r.AllLoadoutsSubmittedUnsafe() {
		r.Mu.Unlock()
		return nil, fmt.Errorf("room %s: not every participant has submitted a loadout", r.Code)
	}
	code := r.Code
	gridSize := parseGridSize(r.GameType)
	ids := make([]string, 0, len(r.Participants))
	loadouts := make(map[string][]int, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.PlayerID)
		loadouts[p.PlayerID] = append([]int(nil), p.Loadout...)
	}
	roster := r.ParticipantsPayloadUnsafe()
	r.Mu.Unlock()

	turnOrder := shuffleTurnOrder(ids)

	sessionID, err := store.CreateSession(ctx, code, gridSize, turnOrder, loadouts)
	if err != nil {
		return nil, fmt.Errorf("create session for room %s: %w", code, err)
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.InMatchUnsafe() {
		// A concurrent trigger won the race; this session is orphaned but
		// the durable record stays consistent with the winner's state.
		logrus.Warnf("room %s: match already started, discarding session %s", code, sessionID)
		return nil, ErrStaleSession
	}
	r.SessionID = sessionID
	r.TurnOrder = turnOrder
	r.ActiveTurnIndex = 0
	r.CancelCountdownUnsafe()

	return &MatchStart{
		SessionID:      sessionID,
		TurnOrder:      turnOrder,
		ActivePlayerID: turnOrder[0],
		Roster:         roster,
	}, nil
}

// CallNumber validates and applies one turn action: the durable room must
// still be IN_PROGRESS, the caller must be the active player, the number is
// appended to the session's drawn sequence, and the turn pointer advances.
//
// The durable status check catches the inverse of the usual mismatch: after
// a process restart the in-memory state is empty while the record still
// says IN_PROGRESS, and a concurrently closed room must not accept actions.
// ErrNotYourTurn is returned for any identity mismatch; the gateway drops
// it without a broadcast or an error to the caller.
//
// Duplicate numbers are not filtered; the drawn sequence is append-only and
// raw, with duplicate suppression left to clients.
func CallNumber(ctx context.Context, store Store, r *Room, playerID string, number int) (*NumberUpdate, error) {
	rec, err := store.FindRoomByCode(ctx, r.Code)
	if err != nil {
		return nil, fmt.Errorf("verify room %s: %w", r.Code, err)
	}
	if rec.Status != models.RoomStatusInProgress {
		return nil, ErrRoomUnavailable
	}

	// The per-room lock is held across the durable append: only same-room
	// events serialize behind it, and it keeps the advance paired with the
	// append it belongs to.
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if !r.InMatchUnsafe() {
		return nil, ErrMatchNotStarted
	}
	if r.ActivePlayerUnsafe() != playerID {
		return nil, ErrNotYourTurn
	}
	if err := store.AppendDrawnNumber(ctx, r.SessionID, number); err != nil {
		return nil, fmt.Errorf("append drawn number for session %s: %w", r.SessionID, err)
	}
	next := r.AdvanceTurnUnsafe()
	return &NumberUpdate{
		SessionID:    r.SessionID,
		Number:       number,
		NextPlayerID: next,
	}, nil
}

// ClaimWin ends the match if sessionID names the room's current session.
// A stale id (a claim left over from a previous match on the same code) has
// no observable effect. On success the session is finalized durably (winner
// recorded, room CLOSED) before the in-memory match state is
// cleared, so a racing second claim resolves as stale. The caller
// broadcasts the result and removes the room from the registry; the room
// code is not reusable after a match concludes.
func ClaimWin(ctx context.Context, store Store, r *Room, playerID string, sessionID uuid.UUID) (*MatchEnd, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if !r.InMatchUnsafe() || r.SessionID != sessionID {
		return nil, ErrStaleSession
	}
	winnerName := playerID
	if p := r.findParticipantUnsafe(playerID); p != nil {
		winnerName = p.DisplayName
	}
	if err := store.FinalizeSession(ctx, r.Code, sessionID, playerID); err != nil {
		return nil, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	r.SessionID = uuid.Nil
	r.TurnOrder = nil
	r.ActiveTurnIndex = 0
	return &MatchEnd{
		SessionID:  sessionID,
		WinnerID:   playerID,
		WinnerName: winnerName,
	}, nil
}

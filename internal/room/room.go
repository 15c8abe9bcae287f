// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is a single live connection bound to a room's broadcast group.
// Outgoing messages are queued on OutChan and drained by the gateway's
// write pump.
type Conn struct {
	ID       uuid.UUID
	PlayerID string
	Cancel   func()
	OutChan  chan map[string]interface{}
	IsHost   bool

	mu     sync.Mutex
	closed bool
}

// Write pushes a message onto the connection's OutChan without blocking.
// Messages to a closed connection or a saturated channel are dropped and
// logged. The closed check and the send happen under the same mutex Close
// takes, so a reconnect closing this connection cannot race a write from
// its still-running read goroutine into a send-on-closed panic.
func (c *Conn) Write(msg map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		msgType, _ := msg["type"].(string)
		logrus.Debugf("room: conn for player %s closed, dropped %q", c.PlayerID, msgType)
		return
	}
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		logrus.Warnf("room: OutChan for player %s full, dropped %q", c.PlayerID, msgType)
	}
}

// Close tears the connection down: marks it closed, closes OutChan so the
// write pump drains and exits, and cancels the connection context.
// Idempotent; safe to call while other goroutines are in Write.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.OutChan)
	c.mu.Unlock()
	if c.Cancel != nil {
		c.Cancel()
	}
}

// WriteError sends an error event to this connection only. Per the error
// model, lobby-phase failures are never broadcast.
func (c *Conn) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Participant is one player's seat in a room. The entry is keyed by
// PlayerID and survives reconnects: only Conn is replaced when the same
// identity rebinds, ready state and loadout carry over.
type Participant struct {
	PlayerID    string
	DisplayName string
	IsReady     bool
	Loadout     []int
	Conn        *Conn
}

// Room is the in-memory state for one active room code, owned by the
// Registry. All mutation happens under Mu; methods suffixed Unsafe assume
// the caller holds it. One logical mutation completes before the next
// begins, per room; unrelated rooms never contend.
type Room struct {
	Code   string
	HostID string

	Mu sync.Mutex

	// Participants is ordered by join time, one entry per player identity.
	Participants []*Participant

	// GameType is write-once: the first non-empty value locks it.
	GameType string

	// Match fields, zero until StartMatch commits.
	SessionID       uuid.UUID
	TurnOrder       []string
	ActiveTurnIndex int

	startInitiated bool
	countdownDone  bool
	countdownTimer *time.Timer

	// OnEmpty is invoked after the last connection leaves a room that is
	// still in lobby phase, typically wired to Registry.Remove.
	OnEmpty func(code string)
}

func New(code, hostID string) *Room {
	return &Room{
		Code:   code,
		HostID: hostID,
	}
}

func (r *Room) findParticipantUnsafe(playerID string) *Participant {
	for _, p := range r.Participants {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

// BindConnUnsafe attaches a connection to the participant with the same
// player identity, creating the seat on first join. A rebind replaces only
// the connection handle; the old connection is closed and its context
// cancelled. Returns true when this was a reconnect.
func (r *Room) BindConnUnsafe(conn *Conn, displayName string) bool {
	if p := r.findParticipantUnsafe(conn.PlayerID); p != nil {
		if old := p.Conn; old != nil && old != conn {
			old.Close()
		}
		p.Conn = conn
		p.DisplayName = displayName
		return true
	}
	r.Participants = append(r.Participants, &Participant{
		PlayerID:    conn.PlayerID,
		DisplayName: displayName,
		Conn:        conn,
	})
	return false
}

// RemoveParticipantUnsafe drops the seat for playerID and tears down its
// connection. The identity is not removed from TurnOrder: a mid-match
// departure keeps its slot in the rotation and the turn simply goes unacted.
func (r *Room) RemoveParticipantUnsafe(playerID string) bool {
	for i, p := range r.Participants {
		if p.PlayerID != playerID {
			continue
		}
		if p.Conn != nil {
			p.Conn.Close()
			p.Conn = nil
		}
		r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
		return true
	}
	return false
}

// ResolveConnUnsafe returns the participant currently bound to conn, or nil
// if the connection is stale (the identity reconnected elsewhere) or the
// seat is gone. Actions from stale connections are ignored.
func (r *Room) ResolveConnUnsafe(conn *Conn) *Participant {
	p := r.findParticipantUnsafe(conn.PlayerID)
	if p == nil || p.Conn != conn {
		return nil
	}
	return p
}

// SetGameTypeUnsafe locks the game type on first call. Later calls are a
// silent no-op regardless of value: write-once-by-race, no error surfaced.
func (r *Room) SetGameTypeUnsafe(gameType string) bool {
	if r.GameType != "" || gameType == "" {
		return false
	}
	r.GameType = gameType
	return true
}

// ToggleReadyUnsafe flips the ready flag for playerID. No-op if the
// identity holds no seat. Readiness is informational: whether everyone must
// be ready before a start is a client-side policy, not enforced here.
func (r *Room) ToggleReadyUnsafe(playerID string) bool {
	p := r.findParticipantUnsafe(playerID)
	if p == nil {
		return false
	}
	p.IsReady = !p.IsReady
	return true
}

// SetLoadoutUnsafe records a participant's board layout. The loadout is set
// exactly once per match; resubmissions are ignored so the copy frozen into
// history always matches the first accepted submission.
func (r *Room) SetLoadoutUnsafe(playerID string, loadout []int) bool {
	p := r.findParticipantUnsafe(playerID)
	if p == nil || p.Loadout != nil || len(loadout) == 0 {
		return false
	}
	p.Loadout = append([]int(nil), loadout...)
	return true
}

// AllLoadoutsSubmittedUnsafe reports whether every current participant has
// a non-nil loadout, the precondition for match initialization.
func (r *Room) AllLoadoutsSubmittedUnsafe() bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if p.Loadout == nil {
			return false
		}
	}
	return true
}

func (r *Room) InMatchUnsafe() bool {
	return r.SessionID != uuid.Nil
}

// ActivePlayerUnsafe names the identity whose action is currently valid.
func (r *Room) ActivePlayerUnsafe() string {
	if len(r.TurnOrder) == 0 {
		return ""
	}
	return r.TurnOrder[r.ActiveTurnIndex]
}

// AdvanceTurnUnsafe rotates the turn pointer modulo the turn-order length
// and returns the next actor. ActiveTurnIndex stays a valid index into
// TurnOrder at all times.
func (r *Room) AdvanceTurnUnsafe() string {
	r.ActiveTurnIndex = (r.ActiveTurnIndex + 1) % len(r.TurnOrder)
	return r.TurnOrder[r.ActiveTurnIndex]
}

func (r *Room) EmptyUnsafe() bool {
	for _, p := range r.Participants {
		if p.Conn != nil {
			return false
		}
	}
	return true
}

// ParticipantsPayloadUnsafe builds the roster broadcast: identity, display
// name, host flag, and ready state. Loadouts stay private per-client and
// never appear in any broadcast.
func (r *Room) ParticipantsPayloadUnsafe() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, map[string]interface{}{
			"playerId":    p.PlayerID,
			"displayName": p.DisplayName,
			"isHost":      p.PlayerID == r.HostID,
			"isReady":     p.IsReady,
		})
	}
	return out
}

// BroadcastUnsafe fans msg out to every connection bound to the room, in
// participant order. Writes are non-blocking, so holding the lock here
// cannot stall on a slow client.
func (r *Room) BroadcastUnsafe(msg map[string]interface{}) {
	for _, p := range r.Participants {
		if p.Conn != nil {
			p.Conn.Write(msg)
		}
	}
}

// Broadcast acquires the room lock and fans msg out.
func (r *Room) Broadcast(msg map[string]interface{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BroadcastUnsafe(msg)
}

// StartCountdownUnsafe arms the pre-match countdown after the host issues
// initiate_start. The countdown is a client-visible cue; onElapsed fires
// once when it completes so the caller can check whether every loadout is
// already in. Returns false if a countdown is running or a match started.
func (r *Room) StartCountdownUnsafe(seconds int, onElapsed func(*Room)) bool {
	if r.InMatchUnsafe() || r.countdownTimer != nil {
		return false
	}
	r.startInitiated = true
	r.BroadcastUnsafe(map[string]interface{}{
		"type":    "start_countdown",
		"seconds": seconds,
	})

	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		r.Mu.Lock()
		if r.countdownTimer != timer {
			// A stale timer fired after cancellation.
			r.Mu.Unlock()
			return
		}
		r.countdownTimer = nil
		r.countdownDone = true
		r.Mu.Unlock()
		onElapsed(r)
	})
	r.countdownTimer = timer
	return true
}

// CancelCountdownUnsafe stops a pending countdown, if any.
func (r *Room) CancelCountdownUnsafe() {
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
		r.countdownTimer = nil
		r.startInitiated = false
	}
}

// ReadyToStartUnsafe reports whether match initialization should run now:
// the host triggered a start, its countdown has elapsed, no match is live,
// and the last loadout submission completed the set.
func (r *Room) ReadyToStartUnsafe() bool {
	return r.startInitiated && r.countdownDone && !r.InMatchUnsafe() && r.AllLoadoutsSubmittedUnsafe()
}

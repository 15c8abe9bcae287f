// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

// countdownSeconds is the pre-match countdown length broadcast to clients
// when the host initiates a start. Purely a client-visible cue; no turn
// timer exists server-side.
var countdownSeconds = 5

// RoomWSHandler upgrades the connection and performs the join: durable
// validation first (existence, ACTIVE status, conditional capacity write),
// in-memory binding second, then the roster broadcast. Any failure before
// the bind is reported to the joining connection only and nothing is
// broadcast.
func RoomWSHandler(logger *logrus.Logger, gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rooms/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(pathParts[0])

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"bingo"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "bingo" {
			c.Close(BadSubprotocolError, "client must speak the bingo subprotocol")
			return
		}

		user, err := authenticateRequest(gw, r)
		if err != nil {
			logger.Warnf("authentication failed for room %s: %v", code, err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		rec, err := joinDurable(ctx, gw, code, user.PlayerID)
		if err != nil {
			switch {
			case errors.Is(err, room.ErrRoomNotFound):
				c.Close(InvalidRoomCodeError, "room does not exist")
			case errors.Is(err, room.ErrRoomUnavailable):
				writeDirect(ctx, c, map[string]interface{}{"type": "error", "message": "room is no longer active"})
				c.Close(RoomUnavailableError, "room is no longer active")
			case errors.Is(err, room.ErrRoomFull):
				writeDirect(ctx, c, map[string]interface{}{"type": "error", "message": "room is full"})
				c.Close(RoomUnavailableError, "room is full")
			default:
				logger.Errorf("join %s for %s failed: %v", code, user.PlayerID, err)
				writeDirect(ctx, c, map[string]interface{}{"type": "error", "message": "unable to join"})
				c.Close(websocket.StatusInternalError, "store unavailable")
			}
			return
		}

		rm := gw.Registry.GetOrCreate(code, rec.HostID)
		conn := &room.Conn{
			ID:       uuid.New(),
			PlayerID: user.PlayerID,
			Cancel:   cancel,
			OutChan:  make(chan map[string]interface{}, 16),
			IsHost:   rec.HostID == user.PlayerID,
		}

		rm.Mu.Lock()
		rejoined := rm.BindConnUnsafe(conn, user.Username)
		rm.BroadcastUnsafe(map[string]interface{}{
			"type":         "update_participants",
			"participants": rm.ParticipantsPayloadUnsafe(),
		})
		if rm.GameType != "" {
			rm.BroadcastUnsafe(map[string]interface{}{
				"type":     "game_type_locked",
				"gameType": rm.GameType,
			})
		}
		rm.Mu.Unlock()

		logger.WithFields(logrus.Fields{
			"room":     code,
			"player":   user.PlayerID,
			"remote":   remoteAddr,
			"rejoined": rejoined,
		}).Info("player joined room")

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, gw, rm, conn, logger)

		// readPump exited: explicit leave, transport drop, or rebind.
		handleDeparture(gw, rm, conn, logger)
	}
}

// joinDurable runs the durable half of a join: the record must exist and
// be ACTIVE, then the identity is appended with the store's conditional
// capacity write. That conditional write, not any in-process lock, is the
// sole defense against two joins racing past the capacity limit. A
// reconnecting identity passes through unchanged.
func joinDurable(ctx context.Context, gw *Gateway, code, playerID string) (*models.Room, error) {
	rec, err := gw.Store.FindRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.RoomStatusActive {
		return nil, room.ErrRoomUnavailable
	}
	if err := gw.Store.AddParticipant(ctx, code, playerID); err != nil {
		return nil, err
	}
	return rec, nil
}

// writeDirect sends one frame outside the pump, used for pre-bind errors.
func writeDirect(ctx context.Context, c *websocket.Conn, msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = c.Write(writeCtx, websocket.MessageText, data)
}

// readPump reads frames until the connection dies and dispatches each
// tagged message. Per-room serialization happens inside the handlers via
// the room mutex; the pump itself holds no locks.
func readPump(ctx context.Context, c *websocket.Conn, gw *Gateway, rm *room.Room, conn *room.Conn, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("room %s: websocket closed normally for %s", rm.Code, conn.PlayerID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("room %s: read error for %s: %v", rm.Code, conn.PlayerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		if leave := handleRoomMessage(ctx, gw, rm, conn, data, logger); leave {
			return
		}
	}
}

// handleRoomMessage decodes one tagged inbound event and applies it.
// Returns true when the connection should stop reading (explicit leave).
func handleRoomMessage(ctx context.Context, gw *Gateway, rm *room.Room, conn *room.Conn, data []byte, logger *logrus.Logger) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		conn.WriteError("invalid JSON format")
		return false
	}

	switch env.Type {
	case msgSetGameType:
		var msg setGameTypeMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.GameType == "" {
			conn.WriteError("invalid payload for set_game_type")
			return false
		}
		rm.Mu.Lock()
		if rm.ResolveConnUnsafe(conn) == nil {
			rm.Mu.Unlock()
			return false
		}
		// First caller wins; later calls are silently ignored.
		if rm.SetGameTypeUnsafe(msg.GameType) {
			rm.BroadcastUnsafe(map[string]interface{}{
				"type":     "game_type_locked",
				"gameType": rm.GameType,
			})
		}
		rm.Mu.Unlock()

	case msgToggleReady:
		rm.Mu.Lock()
		if rm.ResolveConnUnsafe(conn) == nil {
			rm.Mu.Unlock()
			return false
		}
		if rm.ToggleReadyUnsafe(conn.PlayerID) {
			rm.BroadcastUnsafe(map[string]interface{}{
				"type":         "update_participants",
				"participants": rm.ParticipantsPayloadUnsafe(),
			})
		}
		rm.Mu.Unlock()

	case msgInitiateStart:
		rm.Mu.Lock()
		if rm.ResolveConnUnsafe(conn) == nil {
			rm.Mu.Unlock()
			return false
		}
		if conn.PlayerID != rm.HostID {
			rm.Mu.Unlock()
			conn.WriteError("only the host can start the match")
			return false
		}
		started := rm.StartCountdownUnsafe(countdownSeconds, func(r *room.Room) {
			tryStartMatch(context.Background(), gw, r, logger)
		})
		rm.Mu.Unlock()
		if !started {
			conn.WriteError("start already initiated")
		}

	case msgSubmitLoadout:
		var msg submitLoadoutMsg
		if err := json.Unmarshal(data, &msg); err != nil || len(msg.Loadout) == 0 {
			conn.WriteError("invalid payload for submit_loadout")
			return false
		}
		rm.Mu.Lock()
		if rm.ResolveConnUnsafe(conn) == nil {
			rm.Mu.Unlock()
			return false
		}
		rm.SetLoadoutUnsafe(conn.PlayerID, msg.Loadout)
		ready := rm.ReadyToStartUnsafe()
		rm.Mu.Unlock()
		// The trigger condition is "last submission completes the set".
		if ready {
			tryStartMatch(ctx, gw, rm, logger)
		}

	case msgCallNumber:
		var msg callNumberMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteError("invalid payload for call_number")
			return false
		}
		update, err := room.CallNumber(ctx, gw.Store, rm, conn.PlayerID, msg.Number)
		if err != nil {
			switch {
			case errors.Is(err, room.ErrNotYourTurn), errors.Is(err, room.ErrMatchNotStarted):
				// Out-of-turn actions are dropped without any visible effect.
				logger.Debugf("room %s: dropped call_number from %s: %v", rm.Code, conn.PlayerID, err)
			case errors.Is(err, room.ErrRoomUnavailable), errors.Is(err, room.ErrRoomNotFound):
				conn.WriteError("match is no longer in progress")
			default:
				logger.Warnf("room %s: call_number persistence failure: %v", rm.Code, err)
				conn.WriteError("failed to record number, please retry")
			}
			return false
		}
		rm.Broadcast(map[string]interface{}{
			"type":         "number_updated",
			"number":       update.Number,
			"nextPlayerId": update.NextPlayerID,
		})
		gw.publishEvent(update.SessionID, rm.Code, conn.PlayerID, "number_called", map[string]interface{}{
			"number": update.Number,
		})

	case msgClaimWin:
		var msg claimWinMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteError("invalid payload for claim_win")
			return false
		}
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			conn.WriteError("invalid session id")
			return false
		}
		end, err := room.ClaimWin(ctx, gw.Store, rm, conn.PlayerID, sessionID)
		if err != nil {
			if errors.Is(err, room.ErrStaleSession) {
				// A claim for a previous match on this code: no effect.
				logger.Debugf("room %s: stale win claim from %s", rm.Code, conn.PlayerID)
			} else {
				logger.Warnf("room %s: claim_win persistence failure: %v", rm.Code, err)
				conn.WriteError("failed to record win, please retry")
			}
			return false
		}
		rm.Broadcast(map[string]interface{}{
			"type":       "match_ended",
			"winnerId":   end.WinnerID,
			"winnerName": end.WinnerName,
		})
		gw.publishEvent(end.SessionID, rm.Code, conn.PlayerID, "match_ended", map[string]interface{}{
			"winnerId": end.WinnerID,
		})
		// A concluded match is terminal for the room code.
		gw.Registry.Remove(rm.Code)
		logger.Infof("room %s: match %s won by %s", rm.Code, end.SessionID, end.WinnerID)

	case msgChat:
		var msg chatMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.Msg == "" {
			return false
		}
		rm.Mu.Lock()
		p := rm.ResolveConnUnsafe(conn)
		if p != nil {
			rm.BroadcastUnsafe(map[string]interface{}{
				"type":        "chat",
				"playerId":    p.PlayerID,
				"displayName": p.DisplayName,
				"msg":         msg.Msg,
				"ts":          time.Now().Unix(),
			})
		}
		rm.Mu.Unlock()

	case msgLeaveRoom:
		handleDeparture(gw, rm, conn, logger)
		return true

	default:
		logger.Warnf("room %s: unknown action %q from %s", rm.Code, env.Type, conn.PlayerID)
		conn.WriteError("unknown action type: " + env.Type)
	}
	return false
}

// tryStartMatch runs the match initializer if the room's start conditions
// hold. On persistence failure nothing is broadcast and the room stays in
// lobby phase; the trigger must be re-issued by the client.
func tryStartMatch(ctx context.Context, gw *Gateway, rm *room.Room, logger *logrus.Logger) {
	rm.Mu.Lock()
	ready := rm.ReadyToStartUnsafe()
	rm.Mu.Unlock()
	if !ready {
		return
	}

	start, err := room.StartMatch(ctx, gw.Store, rm)
	if err != nil {
		if !errors.Is(err, room.ErrStaleSession) {
			logger.Errorf("room %s: match initialization failed: %v", rm.Code, err)
		}
		return
	}

	rm.Broadcast(map[string]interface{}{
		"type":           "match_started",
		"sessionId":      start.SessionID.String(),
		"turnOrder":      start.TurnOrder,
		"activePlayerId": start.ActivePlayerID,
		"participants":   start.Roster,
	})
	gw.publishEvent(start.SessionID, rm.Code, rm.HostID, "match_started", map[string]interface{}{
		"turnOrder": start.TurnOrder,
	})
	logger.Infof("room %s: match %s started, first actor %s", rm.Code, start.SessionID, start.ActivePlayerID)
}

// handleDeparture resolves a dropped or leaving connection to its seat and
// applies the departure rules: a departing host is terminal for the room
// (durable CLOSED first, then room_destroyed to the remaining connections,
// then registry removal); a guest is removed from the durable list and the
// roster, and the updated roster is broadcast. A stale connection, one
// whose identity already rebound elsewhere, is ignored.
func handleDeparture(gw *Gateway, rm *room.Room, conn *room.Conn, logger *logrus.Logger) {
	rm.Mu.Lock()
	p := rm.ResolveConnUnsafe(conn)
	if p == nil {
		rm.Mu.Unlock()
		return
	}
	isHost := conn.PlayerID == rm.HostID
	rm.Mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if isHost {
		// Losing durable consistency is preferred over leaving guests stuck
		// in a room whose host is gone: log the failure and tear down anyway.
		if err := gw.Store.SetRoomStatus(ctx, rm.Code, models.RoomStatusClosed); err != nil {
			logger.Errorf("room %s: failed to close durable record: %v", rm.Code, err)
		}
		rm.Mu.Lock()
		rm.CancelCountdownUnsafe()
		rm.RemoveParticipantUnsafe(conn.PlayerID)
		rm.BroadcastUnsafe(map[string]interface{}{
			"type":    "room_destroyed",
			"message": "Host has closed the lobby.",
		})
		rm.Mu.Unlock()
		gw.Registry.Remove(rm.Code)
		logger.Infof("room %s: host %s departed, room destroyed", rm.Code, conn.PlayerID)
		return
	}

	if err := gw.Store.RemoveParticipant(ctx, rm.Code, conn.PlayerID); err != nil {
		logger.Errorf("room %s: failed to remove %s from durable record: %v", rm.Code, conn.PlayerID, err)
	}
	rm.Mu.Lock()
	rm.RemoveParticipantUnsafe(conn.PlayerID)
	rm.BroadcastUnsafe(map[string]interface{}{
		"type":         "update_participants",
		"participants": rm.ParticipantsPayloadUnsafe(),
	})
	empty := rm.EmptyUnsafe()
	inMatch := rm.InMatchUnsafe()
	onEmpty := rm.OnEmpty
	rm.Mu.Unlock()

	logger.Infof("room %s: guest %s departed", rm.Code, conn.PlayerID)
	if empty && !inMatch && onEmpty != nil {
		onEmpty(rm.Code)
	}
}

// writePump drains the connection's out channel onto the socket and keeps
// the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *room.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for %s: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for %s: %v", conn.PlayerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for %s, assuming disconnect: %v", conn.PlayerID, err)
				return
			}
		}
	}
}

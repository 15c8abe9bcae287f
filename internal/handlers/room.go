// internal/handlers/room.go
package handlers

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRoomCode returns a six-character shareable room code.
func newRoomCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, 6)
	for i, b := range buf {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code), nil
}

// CreateRoomHandler creates a durable ACTIVE room owned by the caller and
// returns its record. The in-memory state appears later, on the first
// confirmed join over the gateway. Code collisions are retried a few times
// on the unique constraint.
func CreateRoomHandler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := authenticateRequest(gw, r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		var code string
		for attempt := 0; attempt < 3; attempt++ {
			code, err = newRoomCode()
			if err != nil {
				break
			}
			err = gw.Store.InsertRoom(r.Context(), code, user.PlayerID)
			if err == nil {
				break
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
				break
			}
		}
		if err != nil {
			gw.Logger.Errorf("failed to create room: %v", err)
			http.Error(w, "error creating room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Room{
			RoomCode: code,
			HostID:   user.PlayerID,
			Status:   models.RoomStatusActive,
		})
	}
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

// JoinRoomHandler validates a room before the client opens its socket: the
// record must exist and be ACTIVE. The join itself (the conditional
// capacity write and the roster broadcast) happens on the websocket.
func JoinRoomHandler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(gw, r); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		var req joinRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		writeRoomByCode(gw, w, r, strings.ToUpper(req.RoomCode))
	}
}

// GetRoomHandler serves GET /rooms/{code}.
func GetRoomHandler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(gw, r); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		code := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/rooms/"))
		if code == "" || strings.Contains(code, "/") {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}
		writeRoomByCode(gw, w, r, code)
	}
}

func writeRoomByCode(gw *Gateway, w http.ResponseWriter, r *http.Request, code string) {
	rec, err := gw.Store.FindRoomByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
		} else {
			gw.Logger.Errorf("room %s lookup failed: %v", code, err)
			http.Error(w, "store unavailable", http.StatusInternalServerError)
		}
		return
	}
	if rec.Status != models.RoomStatusActive {
		http.Error(w, "room is no longer active", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

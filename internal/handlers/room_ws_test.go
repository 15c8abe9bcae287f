// internal/handlers/room_ws_test.go
package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

func bindTestConn(rm *room.Room, playerID, displayName string) *room.Conn {
	conn := &room.Conn{
		ID:       uuid.New(),
		PlayerID: playerID,
		OutChan:  make(chan map[string]interface{}, 64),
		IsHost:   playerID == rm.HostID,
	}
	rm.Mu.Lock()
	rm.BindConnUnsafe(conn, displayName)
	rm.Mu.Unlock()
	return conn
}

func drain(c *room.Conn) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case msg, ok := <-c.OutChan:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastOfType(msgs []map[string]interface{}, typ string) map[string]interface{} {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	return nil
}

func send(t *testing.T, gw *Gateway, rm *room.Room, conn *room.Conn, payload string) bool {
	t.Helper()
	return handleRoomMessage(context.Background(), gw, rm, conn, []byte(payload), gw.Logger)
}

// fullLobby seeds a room with a host and two guests bound over fake conns.
func fullLobby(t *testing.T) (*Gateway, *fakeStorage, *room.Room, *room.Conn, *room.Conn, *room.Conn) {
	t.Helper()
	store := newFakeStorage()
	gw := NewGateway(store, testLogger())

	store.addRoom("AB12CD", "BNG-000000", models.RoomStatusActive)
	for _, id := range []string{"BNG-000000", "BNG-000001", "BNG-000002"} {
		require.NoError(t, store.AddParticipant(context.Background(), "AB12CD", id))
	}
	rm := gw.Registry.GetOrCreate("AB12CD", "BNG-000000")
	host := bindTestConn(rm, "BNG-000000", "Host")
	g1 := bindTestConn(rm, "BNG-000001", "GuestOne")
	g2 := bindTestConn(rm, "BNG-000002", "GuestTwo")
	return gw, store, rm, host, g1, g2
}

// startedMatch runs a full lobby through set_game_type, initiate_start, and
// loadout submission, and returns the room with a live match.
func startedMatch(t *testing.T) (*Gateway, *fakeStorage, *room.Room, *room.Conn, *room.Conn, *room.Conn, map[string]interface{}) {
	t.Helper()
	gw, store, rm, host, g1, g2 := fullLobby(t)

	old := countdownSeconds
	countdownSeconds = 0
	defer func() { countdownSeconds = old }()

	send(t, gw, rm, host, `{"type":"set_game_type","gameType":"5x5"}`)
	send(t, gw, rm, host, `{"type":"submit_loadout","loadout":[1,2,3,4,5]}`)
	send(t, gw, rm, g1, `{"type":"submit_loadout","loadout":[5,4,3,2,1]}`)
	send(t, gw, rm, g2, `{"type":"submit_loadout","loadout":[2,3,4,5,6]}`)
	send(t, gw, rm, host, `{"type":"initiate_start"}`)

	// Every loadout is in, so the zero-length countdown elapsing on its
	// timer goroutine is what starts the match.
	require.Eventually(t, func() bool {
		rm.Mu.Lock()
		defer rm.Mu.Unlock()
		return rm.InMatchUnsafe()
	}, time.Second, 5*time.Millisecond, "match should start once the countdown elapses")

	started := lastOfType(drain(host), "match_started")
	require.NotNil(t, started)
	drain(g1)
	drain(g2)
	return gw, store, rm, host, g1, g2, started
}

func TestSetGameTypeLocksAndBroadcasts(t *testing.T) {
	gw, _, rm, host, g1, _ := fullLobby(t)

	send(t, gw, rm, host, `{"type":"set_game_type","gameType":"5x5"}`)
	locked := lastOfType(drain(g1), "game_type_locked")
	require.NotNil(t, locked)
	assert.Equal(t, "5x5", locked["gameType"])

	// A competing later write is silently ignored: no broadcast, no error.
	send(t, gw, rm, g1, `{"type":"set_game_type","gameType":"4x4"}`)
	assert.Empty(t, drain(g1))
	rm.Mu.Lock()
	assert.Equal(t, "5x5", rm.GameType)
	rm.Mu.Unlock()
}

func TestToggleReadyBroadcastsRoster(t *testing.T) {
	gw, _, rm, _, g1, g2 := fullLobby(t)

	send(t, gw, rm, g1, `{"type":"toggle_ready"}`)
	roster := lastOfType(drain(g2), "update_participants")
	require.NotNil(t, roster)

	participants := roster["participants"].([]map[string]interface{})
	var g1Entry map[string]interface{}
	for _, p := range participants {
		if p["playerId"] == "BNG-000001" {
			g1Entry = p
		}
	}
	require.NotNil(t, g1Entry)
	assert.Equal(t, true, g1Entry["isReady"])
}

func TestInitiateStartHostOnly(t *testing.T) {
	gw, _, rm, _, g1, _ := fullLobby(t)

	send(t, gw, rm, g1, `{"type":"initiate_start"}`)
	errMsg := lastOfType(drain(g1), "error")
	require.NotNil(t, errMsg)
	assert.Contains(t, errMsg["message"], "host")
}

func TestMatchStartedBroadcast(t *testing.T) {
	_, store, _, _, _, _, started := startedMatch(t)

	assert.Equal(t, store.sessionID.String(), started["sessionId"])
	turnOrder := started["turnOrder"].([]string)
	assert.ElementsMatch(t, []string{"BNG-000000", "BNG-000001", "BNG-000002"}, turnOrder)
	assert.Equal(t, turnOrder[0], started["activePlayerId"])

	assert.Equal(t, []int{1, 2, 3, 4, 5}, store.loadouts["BNG-000000"])
	assert.Equal(t, models.RoomStatusInProgress, store.rooms["AB12CD"].Status)
}

func TestCallNumberActiveAndInactive(t *testing.T) {
	gw, store, rm, host, g1, g2, started := startedMatch(t)

	conns := map[string]*room.Conn{
		"BNG-000000": host, "BNG-000001": g1, "BNG-000002": g2,
	}
	turnOrder := started["turnOrder"].([]string)
	active := conns[turnOrder[0]]
	inactive := conns[turnOrder[1]]

	// An out-of-turn call vanishes: no broadcast, no error, no persistence.
	send(t, gw, rm, inactive, `{"type":"call_number","number":13}`)
	assert.Nil(t, lastOfType(drain(inactive), "number_updated"))
	assert.Nil(t, lastOfType(drain(inactive), "error"))
	assert.Empty(t, store.drawn)

	send(t, gw, rm, active, `{"type":"call_number","number":42}`)
	upd := lastOfType(drain(inactive), "number_updated")
	require.NotNil(t, upd)
	assert.Equal(t, 42, upd["number"])
	assert.Equal(t, turnOrder[1], upd["nextPlayerId"])
	assert.Equal(t, []int{42}, store.drawn)
}

func TestClaimWinEndsMatchAndRemovesRoom(t *testing.T) {
	gw, store, rm, _, g1, g2, started := startedMatch(t)

	payload := fmt.Sprintf(`{"type":"claim_win","sessionId":"%s"}`, started["sessionId"])
	send(t, gw, rm, g1, payload)

	ended := lastOfType(drain(g2), "match_ended")
	require.NotNil(t, ended)
	assert.Equal(t, "BNG-000001", ended["winnerId"])
	assert.Equal(t, "GuestOne", ended["winnerName"])

	assert.True(t, store.finalized)
	assert.Equal(t, "BNG-000001", store.winnerID)
	assert.Equal(t, models.RoomStatusClosed, store.rooms["AB12CD"].Status)

	// The room code is terminal after a match concludes.
	_, resident := gw.Registry.Get("AB12CD")
	assert.False(t, resident)
}

func TestClaimWinStaleSessionIsSilentNoOp(t *testing.T) {
	gw, store, rm, _, g1, g2, _ := startedMatch(t)

	payload := fmt.Sprintf(`{"type":"claim_win","sessionId":"%s"}`, uuid.New())
	send(t, gw, rm, g1, payload)

	assert.Nil(t, lastOfType(drain(g2), "match_ended"))
	assert.Nil(t, lastOfType(drain(g1), "error"))
	assert.False(t, store.finalized)
	_, resident := gw.Registry.Get("AB12CD")
	assert.True(t, resident, "stale claim must not tear the room down")
}

func TestChatBroadcast(t *testing.T) {
	gw, _, rm, host, _, g2 := fullLobby(t)

	send(t, gw, rm, host, `{"type":"chat","msg":"glhf"}`)
	chat := lastOfType(drain(g2), "chat")
	require.NotNil(t, chat)
	assert.Equal(t, "glhf", chat["msg"])
	assert.Equal(t, "BNG-000000", chat["playerId"])
	assert.Equal(t, "Host", chat["displayName"])
}

func TestUnknownActionReturnsError(t *testing.T) {
	gw, _, rm, host, _, _ := fullLobby(t)

	send(t, gw, rm, host, `{"type":"warp_drive"}`)
	errMsg := lastOfType(drain(host), "error")
	require.NotNil(t, errMsg)
	assert.Contains(t, errMsg["message"], "warp_drive")
}

func TestStaleConnActionsIgnored(t *testing.T) {
	gw, _, rm, host, g1, _ := fullLobby(t)

	// The same identity rebinds; the original connection goes stale.
	fresh := bindTestConn(rm, "BNG-000001", "GuestOne")
	drain(fresh)

	leave := send(t, gw, rm, g1, `{"type":"toggle_ready"}`)
	assert.False(t, leave)
	assert.Nil(t, lastOfType(drain(host), "update_participants"))

	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	require.Len(t, rm.Participants, 3, "rebind must not duplicate the seat")
}

func TestGuestDepartureUpdatesRoster(t *testing.T) {
	gw, store, rm, host, g1, _ := fullLobby(t)
	drain(host)

	leave := send(t, gw, rm, g1, `{"type":"leave_room"}`)
	assert.True(t, leave)

	roster := lastOfType(drain(host), "update_participants")
	require.NotNil(t, roster)
	assert.Len(t, roster["participants"], 2)
	assert.NotContains(t, store.rooms["AB12CD"].Participants, "BNG-000001")
	_, resident := gw.Registry.Get("AB12CD")
	assert.True(t, resident, "a guest departure never destroys the room")
}

func TestHostDepartureDestroysRoom(t *testing.T) {
	gw, store, rm, host, g1, _ := fullLobby(t)
	drain(g1)

	handleDeparture(gw, rm, host, gw.Logger)

	destroyed := lastOfType(drain(g1), "room_destroyed")
	require.NotNil(t, destroyed)
	assert.Equal(t, models.RoomStatusClosed, store.rooms["AB12CD"].Status,
		"durable CLOSED must precede teardown")
	_, resident := gw.Registry.Get("AB12CD")
	assert.False(t, resident)
}

func TestLastGuestDepartureReleasesLobbyRoom(t *testing.T) {
	store := newFakeStorage()
	gw := NewGateway(store, testLogger())
	store.addRoom("ZZ99XX", "BNG-000000", models.RoomStatusActive)
	require.NoError(t, store.AddParticipant(context.Background(), "ZZ99XX", "BNG-000001"))

	rm := gw.Registry.GetOrCreate("ZZ99XX", "BNG-000000")
	g1 := bindTestConn(rm, "BNG-000001", "GuestOne")

	send(t, gw, rm, g1, `{"type":"leave_room"}`)
	_, resident := gw.Registry.Get("ZZ99XX")
	assert.False(t, resident, "an empty lobby-phase room leaves the registry")
}

func TestJoinCapacityRejectsOverflow(t *testing.T) {
	store := newFakeStorage()
	gw := NewGateway(store, testLogger())
	store.addRoom("AB12CD", "BNG-000000", models.RoomStatusActive)

	ctx := context.Background()
	for i := 0; i < models.RoomCapacity; i++ {
		_, err := joinDurable(ctx, gw, "AB12CD", fmt.Sprintf("BNG-%06d", i))
		require.NoError(t, err)
	}
	require.Len(t, store.rooms["AB12CD"].Participants, models.RoomCapacity)

	// The (C+1)-th join is rejected outright, never a phantom success.
	_, err := joinDurable(ctx, gw, "AB12CD", "BNG-999999")
	assert.ErrorIs(t, err, room.ErrRoomFull)
	assert.Len(t, store.rooms["AB12CD"].Participants, models.RoomCapacity)
	assert.NotContains(t, store.rooms["AB12CD"].Participants, "BNG-999999")

	// A listed identity reconnecting at capacity still passes, without
	// growing the participant list.
	_, err = joinDurable(ctx, gw, "AB12CD", "BNG-000000")
	assert.NoError(t, err)
	assert.Len(t, store.rooms["AB12CD"].Participants, models.RoomCapacity)
}

func TestJoinRejectsMissingOrInactiveRoom(t *testing.T) {
	store := newFakeStorage()
	gw := NewGateway(store, testLogger())
	ctx := context.Background()

	_, err := joinDurable(ctx, gw, "NOPE99", "BNG-000000")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	store.addRoom("AB12CD", "BNG-000000", models.RoomStatusClosed)
	_, err = joinDurable(ctx, gw, "AB12CD", "BNG-000000")
	assert.ErrorIs(t, err, room.ErrRoomUnavailable)
	assert.Empty(t, store.rooms["AB12CD"].Participants)
}

func TestInvalidJSONGetsErrorEvent(t *testing.T) {
	gw, _, rm, host, _, _ := fullLobby(t)

	send(t, gw, rm, host, `{not json`)
	errMsg := lastOfType(drain(host), "error")
	require.NotNil(t, errMsg)
}

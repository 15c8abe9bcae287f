// internal/room/room_test.go
package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(playerID string) *Conn {
	return &Conn{
		PlayerID: playerID,
		OutChan:  make(chan map[string]interface{}, 16),
	}
}

func TestBindConnFirstJoinAndReconnect(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")

	c1 := newConn("BNG-HOST01")
	r.Mu.Lock()
	reconnect := r.BindConnUnsafe(c1, "Alice")
	r.Mu.Unlock()
	assert.False(t, reconnect)
	require.Len(t, r.Participants, 1)

	// Mark state that must survive the reconnect.
	r.Mu.Lock()
	r.ToggleReadyUnsafe("BNG-HOST01")
	r.SetLoadoutUnsafe("BNG-HOST01", []int{3, 1, 2})
	r.Mu.Unlock()

	c2 := newConn("BNG-HOST01")
	r.Mu.Lock()
	reconnect = r.BindConnUnsafe(c2, "Alice")
	r.Mu.Unlock()
	assert.True(t, reconnect)
	require.Len(t, r.Participants, 1, "reconnect must not add a seat")

	p := r.Participants[0]
	assert.Same(t, c2, p.Conn)
	assert.True(t, p.IsReady, "ready state carries over")
	assert.Equal(t, []int{3, 1, 2}, p.Loadout, "loadout carries over")

	// The replaced connection's channel is closed.
	_, open := <-c1.OutChan
	assert.False(t, open)
}

func TestWriteAfterRebindIsDroppedNotPanic(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	old := newConn("BNG-HOST01")

	r.Mu.Lock()
	r.BindConnUnsafe(old, "Alice")
	r.BindConnUnsafe(newConn("BNG-HOST01"), "Alice")
	r.Mu.Unlock()

	// The superseded connection's read goroutine may still emit errors
	// after the rebind closed it; those writes must be silently dropped.
	assert.NotPanics(t, func() {
		old.WriteError("too late")
		old.Write(map[string]interface{}{"type": "chat", "msg": "hi"})
	})

	_, open := <-old.OutChan
	assert.False(t, open, "the replaced connection's channel is closed")
}

func TestConnCloseIsIdempotent(t *testing.T) {
	c := newConn("BNG-HOST01")
	cancelled := 0
	c.Cancel = func() { cancelled++ }

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	assert.Equal(t, 1, cancelled)
}

func TestStaleConnIsNotResolved(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	c1 := newConn("BNG-HOST01")
	c2 := newConn("BNG-HOST01")

	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(c1, "Alice")
	r.BindConnUnsafe(c2, "Alice")

	assert.Nil(t, r.ResolveConnUnsafe(c1), "superseded connection must resolve to nil")
	assert.NotNil(t, r.ResolveConnUnsafe(c2))
}

func TestGameTypeIsWriteOnce(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.False(t, r.SetGameTypeUnsafe(""), "empty value never locks")
	assert.True(t, r.SetGameTypeUnsafe("5x5"))
	assert.False(t, r.SetGameTypeUnsafe("4x4"), "second write is a silent no-op")
	assert.Equal(t, "5x5", r.GameType)
}

func TestLoadoutIsSetOnceAndCopied(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(newConn("BNG-AAAAAA"), "Alice")

	original := []int{5, 4, 3, 2, 1}
	require.True(t, r.SetLoadoutUnsafe("BNG-AAAAAA", original))
	original[0] = 99
	assert.Equal(t, 5, r.Participants[0].Loadout[0], "stored loadout must be a copy")

	assert.False(t, r.SetLoadoutUnsafe("BNG-AAAAAA", []int{9, 9, 9}), "resubmission ignored")
	assert.Equal(t, []int{5, 4, 3, 2, 1}, r.Participants[0].Loadout)

	assert.False(t, r.SetLoadoutUnsafe("BNG-GHOST1", []int{1}), "unknown identity ignored")
}

func TestAllLoadoutsSubmitted(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()

	assert.False(t, r.AllLoadoutsSubmittedUnsafe(), "empty room is never ready")

	r.BindConnUnsafe(newConn("BNG-AAAAAA"), "Alice")
	r.BindConnUnsafe(newConn("BNG-BBBBBB"), "Bob")
	r.SetLoadoutUnsafe("BNG-AAAAAA", []int{1, 2, 3})
	assert.False(t, r.AllLoadoutsSubmittedUnsafe())

	r.SetLoadoutUnsafe("BNG-BBBBBB", []int{3, 2, 1})
	assert.True(t, r.AllLoadoutsSubmittedUnsafe())
}

func TestAdvanceTurnWrapsAround(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.TurnOrder = []string{"a", "b", "c"}
	r.ActiveTurnIndex = 0

	seen := []string{r.ActivePlayerUnsafe()}
	for i := 0; i < 5; i++ {
		seen = append(seen, r.AdvanceTurnUnsafe())
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestRemoveParticipantKeepsTurnOrderSlot(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(newConn("BNG-AAAAAA"), "Alice")
	r.BindConnUnsafe(newConn("BNG-BBBBBB"), "Bob")
	r.TurnOrder = []string{"BNG-BBBBBB", "BNG-AAAAAA"}

	require.True(t, r.RemoveParticipantUnsafe("BNG-BBBBBB"))
	assert.Len(t, r.Participants, 1)
	assert.Equal(t, []string{"BNG-BBBBBB", "BNG-AAAAAA"}, r.TurnOrder,
		"a departed identity keeps its rotation slot")
	assert.False(t, r.RemoveParticipantUnsafe("BNG-BBBBBB"), "second removal is a no-op")
}

func TestBroadcastReachesAllBoundConns(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	a := newConn("BNG-AAAAAA")
	b := newConn("BNG-BBBBBB")
	r.Mu.Lock()
	r.BindConnUnsafe(a, "Alice")
	r.BindConnUnsafe(b, "Bob")
	r.Mu.Unlock()

	r.Broadcast(map[string]interface{}{"type": "chat", "msg": "hi"})

	for _, ch := range []chan map[string]interface{}{a.OutChan, b.OutChan} {
		select {
		case msg := <-ch:
			assert.Equal(t, "chat", msg["type"])
		default:
			t.Fatal("expected a broadcast message on every connection")
		}
	}
}

func TestParticipantsPayloadOmitsLoadouts(t *testing.T) {
	r := New("AB12CD", "BNG-AAAAAA")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(newConn("BNG-AAAAAA"), "Alice")
	r.SetLoadoutUnsafe("BNG-AAAAAA", []int{1, 2, 3})
	r.ToggleReadyUnsafe("BNG-AAAAAA")

	payload := r.ParticipantsPayloadUnsafe()
	require.Len(t, payload, 1)
	assert.Equal(t, "BNG-AAAAAA", payload[0]["playerId"])
	assert.Equal(t, true, payload[0]["isHost"])
	assert.Equal(t, true, payload[0]["isReady"])
	_, hasLoadout := payload[0]["loadout"]
	assert.False(t, hasLoadout, "loadouts are private and never broadcast")
}

func TestReadyToStartRequiresAllThreeConditions(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(newConn("BNG-HOST01"), "Alice")
	r.SetLoadoutUnsafe("BNG-HOST01", []int{1})

	assert.False(t, r.ReadyToStartUnsafe(), "no start initiated yet")

	r.startInitiated = true
	assert.False(t, r.ReadyToStartUnsafe(), "countdown has not elapsed")

	r.countdownDone = true
	assert.True(t, r.ReadyToStartUnsafe())
}

func TestCancelCountdownResetsInitiation(t *testing.T) {
	r := New("AB12CD", "BNG-HOST01")
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BindConnUnsafe(newConn("BNG-HOST01"), "Alice")

	require.True(t, r.StartCountdownUnsafe(60, func(*Room) {}))
	assert.False(t, r.StartCountdownUnsafe(60, func(*Room) {}), "countdown already armed")

	r.CancelCountdownUnsafe()
	assert.False(t, r.startInitiated)
	assert.Nil(t, r.countdownTimer)
}

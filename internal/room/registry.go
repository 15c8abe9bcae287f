// internal/room/registry.go
package room

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the process-wide map of room code to live Room state. It is
// the sole owner of in-memory room data: entries appear on the first
// confirmed join and vanish on host departure or terminal match end. The
// registry lock guards only the map itself; per-room mutation is serialized
// by each Room's own mutex, so unrelated rooms never contend.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Get returns the live state for code, if resident.
func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// GetOrCreate returns the resident state for code, creating it with the
// given host on first call. Idempotent: a second call for a resident code
// returns the existing state unchanged, whatever hostID says.
func (reg *Registry) GetOrCreate(code, hostID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[code]; ok {
		return r
	}
	r := New(code, hostID)
	r.OnEmpty = reg.Remove
	reg.rooms[code] = r
	logrus.Infof("registry: room %s created (host %s)", code, hostID)
	return r
}

// Remove drops the in-memory state for code. The durable record is not
// touched here; status transitions are the caller's responsibility and
// happen before or atomically with removal.
func (reg *Registry) Remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[code]; ok {
		delete(reg.rooms, code)
		logrus.Infof("registry: room %s removed", code)
	}
}

package hub

import (
	"slices"
	"sync"

	"github.com/samber/lo"
	"stealthy-realtime/internal/model"
)

// Connection is one live transport session as seen by the hub.
type Connection interface {
	ID() string
	Send(env model.Envelope) error
	Close() error
}

// Target pairs a resolved connection with the identity it was resolved for.
type Target struct {
	UserID string
	Conn   Connection
}

// Hub owns the connection registry and the presence set. Both are guarded by
// the same mutex so presence snapshots taken right after a registry mutation
// observe a consistent combined state.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Connection
	online map[string]struct{}
}

func New() *Hub {
	return &Hub{
		conns:  make(map[string]Connection),
		online: make(map[string]struct{}),
	}
}

// Join marks userID online and returns the resulting snapshot.
func (h *Hub) Join(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[userID] = struct{}{}
	return h.snapshotLocked()
}

// Leave marks userID offline and returns the resulting snapshot.
func (h *Hub) Leave(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.online, userID)
	return h.snapshotLocked()
}

// Departure is the combined state observed when a connection goes away.
type Departure struct {
	Snapshot []string
	Audience []string
}

// Disconnect removes userID's mapping and presence, but only while conn is
// still the registered connection. A superseded connection leaves the newer
// mapping and the user's presence untouched and reports false.
func (h *Hub) Disconnect(userID string, conn Connection) (Departure, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.conns[userID]
	if !ok || current.ID() != conn.ID() {
		return Departure{}, false
	}
	delete(h.conns, userID)
	delete(h.online, userID)
	return Departure{Snapshot: h.snapshotLocked(), Audience: h.usersLocked()}, true
}

// Drain empties the registry and presence set and returns every connection
// that was registered so the caller can close them.
func (h *Hub) Drain() []Connection {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := lo.Values(h.conns)
	h.conns = make(map[string]Connection)
	h.online = make(map[string]struct{})
	return conns
}

func (h *Hub) Stats() (connections, online int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns), len(h.online)
}

func (h *Hub) snapshotLocked() []string {
	users := lo.Keys(h.online)
	slices.Sort(users)
	return users
}

func (h *Hub) usersLocked() []string {
	users := lo.Keys(h.conns)
	slices.Sort(users)
	return users
}

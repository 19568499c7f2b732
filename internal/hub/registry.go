package hub

// Register maps userID to conn, last write wins. The superseded connection is
// returned (nil if none); closing it is the caller's decision.
func (h *Hub) Register(userID string, conn Connection) Connection {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.conns[userID]
	h.conns[userID] = conn
	if prev != nil && prev.ID() == conn.ID() {
		return nil
	}
	return prev
}

// Deregister removes userID's mapping. Absent entries are a no-op.
func (h *Hub) Deregister(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[userID]; !ok {
		return false
	}
	delete(h.conns, userID)
	return true
}

// Resolve returns the live connections for users, silently dropping identities
// with no active connection.
func (h *Hub) Resolve(users []string) []Target {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make([]Target, 0, len(users))
	for _, u := range users {
		if c, ok := h.conns[u]; ok {
			targets = append(targets, Target{UserID: u, Conn: c})
		}
	}
	return targets
}

func (h *Hub) ResolveOne(userID string) (Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[userID]
	return c, ok
}

// Users lists every identity with a registered connection.
func (h *Hub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usersLocked()
}

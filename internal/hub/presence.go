package hub

// MarkOnline reports whether the user was previously offline.
func (h *Hub) MarkOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.online[userID]; ok {
		return false
	}
	h.online[userID] = struct{}{}
	return true
}

// MarkOffline reports whether the user was previously online.
func (h *Hub) MarkOffline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.online[userID]; !ok {
		return false
	}
	delete(h.online, userID)
	return true
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.online[userID]
	return ok
}

// Snapshot returns the online set sorted by identity.
func (h *Hub) Snapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

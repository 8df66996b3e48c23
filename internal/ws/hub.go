package ws

import (
	"sort"
	"sync"

	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
)

// Hub maps each session key to its single live DeviceSession.
type Hub struct {
	sessions map[model.Key]*DeviceSession
	mu       sync.Mutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[model.Key]*DeviceSession),
	}
}

// Put stores s under key and returns the session it replaced, if any.
func (h *Hub) Put(key model.Key, s *DeviceSession) *DeviceSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.sessions[key]
	h.sessions[key] = s
	return prev
}

// Get returns the live session for key, or nil if none.
func (h *Hub) Get(key model.Key) *DeviceSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[key]
}

// RemoveIfCurrent deletes key only while it still maps to s, so a session
// tearing down after being replaced cannot evict its successor.
func (h *Hub) RemoveIfCurrent(key model.Key, s *DeviceSession) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[key] != s {
		return false
	}
	delete(h.sessions, key)
	return true
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Snapshot lists every live session, ordered by key, with reconnection
// URLs rooted at base.
func (h *Hub) Snapshot(base string) []model.DeviceSnapshot {
	h.mu.Lock()
	sessions := make([]*DeviceSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	out := make([]model.DeviceSnapshot, 0, len(sessions))
	for _, s := range sessions {
		key := s.Key()
		out = append(out, model.DeviceSnapshot{
			DeviceID:    key.DeviceID,
			Tunnel:      key.Tunnel,
			Connected:   !s.IsClosed(),
			ConnectedAt: s.ConnectedAt(),
			LastSeen:    s.LastSeen(),
			UIClients:   s.UICount(),
			UIURL:       publicurl.UIURL(base, key),
			DeviceURL:   publicurl.DeviceURL(base, key),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Tunnel < out[j].Tunnel
	})
	return out
}

// CloseAll closes every live session with code and reason and empties the hub.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	sessions := make([]*DeviceSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[model.Key]*DeviceSession)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(code, reason)
	}
}

package mcp

import (
	"sort"
	"sync"
)

// SessionRegistry maps client IDs to MCP session IDs and tracks which
// timelines each client watches. Populated when a tool call carries a
// client_id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string              // clientID → sessionID
	watches  map[string]map[string]struct{} // timelineID → clientIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]string),
		watches:  make(map[string]map[string]struct{}),
	}
}

// Register associates a client ID with a session ID.
// If the client already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(clientID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientID] = sessionID
}

// SessionFor returns the session ID for the given client, if connected.
func (r *SessionRegistry) SessionFor(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[clientID]
	return sid, ok
}

// Watch subscribes a client to a timeline's events.
func (r *SessionRegistry) Watch(clientID, timelineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watches[timelineID]
	if !ok {
		set = make(map[string]struct{})
		r.watches[timelineID] = set
	}
	set[clientID] = struct{}{}
}

// Watchers returns the clients watching a timeline, sorted.
func (r *SessionRegistry) Watchers(timelineID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watches[timelineID]))
	for c := range r.watches[timelineID] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Remove deletes all client mappings and watches for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid, sid := range r.sessions {
		if sid != sessionID {
			continue
		}
		delete(r.sessions, cid)
		for tl, set := range r.watches {
			delete(set, cid)
			if len(set) == 0 {
				delete(r.watches, tl)
			}
		}
	}
}

package session

import (
	"sort"
	"sync"
)

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns the session with id.
func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Insert adds or replaces a session.
func (m *MemoryStore) Insert(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Remove deletes a session and returns what was stored.
func (m *MemoryStore) Remove(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	return s, ok
}

// List returns every session, oldest first.
func (m *MemoryStore) List() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FlowSet records which devices are inside a flow, and which session holds
// each. It is kept apart from the session table so a mark left behind by a
// lost session can be detected.
type FlowSet struct {
	mu      sync.Mutex
	holders map[string]string
}

// NewFlowSet creates an empty set.
func NewFlowSet() *FlowSet {
	return &FlowSet{holders: make(map[string]string)}
}

// Mark records deviceID as held by sessionID. It reports false, and
// changes nothing, when the device is already marked.
func (f *FlowSet) Mark(deviceID, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.holders[deviceID]; ok {
		return false
	}
	f.holders[deviceID] = sessionID
	return true
}

// Unmark clears deviceID if sessionID holds it. An empty sessionID clears
// the device unconditionally.
func (f *FlowSet) Unmark(deviceID, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	holder, ok := f.holders[deviceID]
	if !ok || (sessionID != "" && holder != sessionID) {
		return false
	}
	delete(f.holders, deviceID)
	return true
}

// Holder returns the session holding deviceID.
func (f *FlowSet) Holder(deviceID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.holders[deviceID]
	return id, ok
}

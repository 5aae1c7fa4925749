package session

import (
	"time"

	"github.com/pborman/uuid"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Manager owns the session table and one flow set per Kind. The PIN and
// recovery sets are independent: marking a device for one flow never
// blocks the other.
type Manager struct {
	store Store
	flows map[Kind]*FlowSet
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over store. A nil store means a fresh
// MemoryStore.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store: store,
		flows: map[Kind]*FlowSet{
			KindPIN:      NewFlowSet(),
			KindRecovery: NewFlowSet(),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin opens a session of kind for deviceID and marks the device as in
// flow. A device already in a flow of the same kind is rejected with
// ErrSessionActive unless force is set, in which case the stale session is
// cleaned first. The device is marked before Begin returns, so callers send
// their first request only after this succeeds.
func (m *Manager) Begin(kind Kind, deviceID string, force bool, init func(*Session)) (Session, error) {
	flows := m.flows[kind]
	if flows == nil {
		return Session{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"kind": string(kind)})
	}
	if deviceID == "" {
		return Session{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"field": "device_id"})
	}

	now := m.now().UTC()
	s := Session{
		ID:        uuid.New(),
		Kind:      kind,
		DeviceID:  deviceID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if init != nil {
		init(&s)
	}

	if !flows.Mark(deviceID, s.ID) {
		if !force {
			holder, _ := flows.Holder(deviceID)
			return Session{}, kkerr.WithSuggestion(
				kkerr.WithDetails(kkerr.ErrSessionActive, map[string]string{
					"device_id":  deviceID,
					"kind":       string(kind),
					"session_id": holder,
				}),
				"cancel the existing session or start again with force")
		}
		m.ForceClean(kind, deviceID)
		if !flows.Mark(deviceID, s.ID) {
			// Lost a race with another Begin.
			return Session{}, kkerr.WithDetails(kkerr.ErrSessionActive, map[string]string{
				"device_id": deviceID,
				"kind":      string(kind),
			})
		}
	}

	m.store.Insert(s)
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (Session, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return Session{}, kkerr.WithDetails(kkerr.ErrSessionNotFound, map[string]string{"session_id": id})
	}
	return s, nil
}

// Active returns the session with id, rejecting closed ones with
// ErrSessionClosed.
func (m *Manager) Active(id string) (Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return Session{}, err
	}
	if !s.Active {
		return s, kkerr.WithDetails(kkerr.ErrSessionClosed, map[string]string{
			"session_id": id,
			"step":       string(s.Step),
		})
	}
	return s, nil
}

// Update writes s back, stamping UpdatedAt. Reaching a terminal step closes
// the session and releases the device.
func (m *Manager) Update(s Session) {
	s.UpdatedAt = m.now().UTC()
	if s.Step.Terminal() {
		s.Active = false
	}
	m.store.Insert(s)
	if !s.Active {
		if flows := m.flows[s.Kind]; flows != nil {
			flows.Unmark(s.DeviceID, s.ID)
		}
	}
}

// Close ends a session in step, which should be terminal.
func (m *Manager) Close(id string, step Step) (Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return Session{}, err
	}
	s.Step = step
	s.Active = false
	m.Update(s)
	return s, nil
}

// Remove deletes a session and releases its device if it still holds it.
func (m *Manager) Remove(id string) bool {
	s, ok := m.store.Remove(id)
	if ok {
		if flows := m.flows[s.Kind]; flows != nil {
			flows.Unmark(s.DeviceID, s.ID)
		}
	}
	return ok
}

// InFlow reports whether deviceID is marked for kind.
func (m *Manager) InFlow(kind Kind, deviceID string) bool {
	flows := m.flows[kind]
	if flows == nil {
		return false
	}
	_, ok := flows.Holder(deviceID)
	return ok
}

// Stale reports whether deviceID is marked for kind by a session that is
// missing or no longer active.
func (m *Manager) Stale(kind Kind, deviceID string) bool {
	flows := m.flows[kind]
	if flows == nil {
		return false
	}
	holder, ok := flows.Holder(deviceID)
	if !ok {
		return false
	}
	s, ok := m.store.Get(holder)
	return !ok || !s.Active
}

// ForceClean drops every session of kind for deviceID and clears the
// device mark. It returns the number of sessions removed.
func (m *Manager) ForceClean(kind Kind, deviceID string) int {
	removed := 0
	for _, s := range m.store.List() {
		if s.Kind == kind && s.DeviceID == deviceID {
			if _, ok := m.store.Remove(s.ID); ok {
				removed++
			}
		}
	}
	if flows := m.flows[kind]; flows != nil {
		flows.Unmark(deviceID, "")
	}
	return removed
}

// List returns every session, oldest first.
func (m *Manager) List() []Session {
	return m.store.List()
}

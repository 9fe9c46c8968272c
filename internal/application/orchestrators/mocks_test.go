package orchestrators

import (
	"context"
	"errors"
	"sync"
	"time"

	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// --- Mock slot store ---

type mockSlotStore struct {
	mu    sync.Mutex
	slots map[string]slot.Slot
	err   error // returned by every call when set
	calls int
}

func newMockSlotStore(slots ...slot.Slot) *mockSlotStore {
	m := &mockSlotStore{slots: make(map[string]slot.Slot)}
	for _, s := range slots {
		m.slots[s.ID] = s
	}
	return m
}

func (m *mockSlotStore) get(id string) (slot.Slot, error) {
	m.calls++
	if m.err != nil {
		return slot.Slot{}, m.err
	}
	s, ok := m.slots[id]
	if !ok {
		return slot.Slot{}, slot.ErrSlotNotFound
	}
	s.Registrations = append([]slot.Registration(nil), s.Registrations...)
	return s, nil
}

// GetByID returns a copy of the stored slot.
func (m *mockSlotStore) GetByID(_ context.Context, id string) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// CreateIfAbsent keys slots by date.
func (m *mockSlotStore) CreateIfAbsent(_ context.Context, candidate slot.Slot) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return slot.Slot{}, m.err
	}
	for _, s := range m.slots {
		if s.Date.Equal(candidate.Date) {
			return s, nil
		}
	}
	m.slots[candidate.ID] = candidate
	return candidate, nil
}

// AddRegistration appends when the capacity predicate holds.
func (m *mockSlotStore) AddRegistration(_ context.Context, slotID string, reg slot.Registration, max int) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(slotID)
	if err != nil {
		return slot.Slot{}, err
	}
	if _, ok := s.FindRegistration(reg.UserID); ok {
		return slot.Slot{}, slot.ErrAlreadyRegistered
	}
	if max > 0 && s.Occupancy()+reg.Footprint() > max {
		return slot.Slot{}, &slot.CapacityError{Occupancy: s.Occupancy(), Max: max, Attempted: reg.Footprint()}
	}
	s.Registrations = append(s.Registrations, reg)
	m.slots[slotID] = s
	return s, nil
}

// ReplaceGuests swaps the guest list when shrinking or when capacity allows.
func (m *mockSlotStore) ReplaceGuests(_ context.Context, slotID, userID string, guests []string, max int) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(slotID)
	if err != nil {
		return slot.Slot{}, err
	}
	for i, r := range s.Registrations {
		if r.UserID != userID {
			continue
		}
		others := s.Occupancy() - r.Footprint()
		if len(guests) > len(r.Guests) && max > 0 && others+1+len(guests) > max {
			return slot.Slot{}, &slot.CapacityError{Occupancy: others, Max: max, Attempted: 1 + len(guests)}
		}
		s.Registrations[i].Guests = guests
		m.slots[slotID] = s
		return s, nil
	}
	return slot.Slot{}, slot.ErrNotRegistered
}

// RemoveRegistration deletes the member's registration.
func (m *mockSlotStore) RemoveRegistration(_ context.Context, slotID, userID string) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(slotID)
	if err != nil {
		return slot.Slot{}, err
	}
	for i, r := range s.Registrations {
		if r.UserID == userID {
			s.Registrations = append(s.Registrations[:i], s.Registrations[i+1:]...)
			m.slots[slotID] = s
			return s, nil
		}
	}
	return slot.Slot{}, slot.ErrNotRegistered
}

// RecordDetails replaces the slot's details.
func (m *mockSlotStore) RecordDetails(_ context.Context, slotID string, details slot.Details) (slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(slotID)
	if err != nil {
		return slot.Slot{}, err
	}
	s.Details = details
	m.slots[slotID] = s
	return s, nil
}

// --- Mock user store ---

type mockUserStore struct {
	users map[string]user.User
}

func newMockUserStore(users ...user.User) *mockUserStore {
	m := &mockUserStore{users: make(map[string]user.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// GetByID returns the user or ErrUserNotFound.
func (m *mockUserStore) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

// Create enforces unique email and display name.
func (m *mockUserStore) Create(_ context.Context, u user.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
		if user.SameDisplayName(existing.DisplayName, u.DisplayName) {
			return user.ErrDisplayNameTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

// UpdateProfile edits names, keeping display names unique.
func (m *mockUserStore) UpdateProfile(_ context.Context, id string, p userStore.Profile) (user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	for _, existing := range m.users {
		if existing.ID != id && user.SameDisplayName(existing.DisplayName, p.DisplayName) {
			return user.User{}, user.ErrDisplayNameTaken
		}
	}
	u.DisplayName, u.FirstName, u.LastName = p.DisplayName, p.FirstName, p.LastName
	m.users[id] = u
	return u, nil
}

// List returns every user; order is irrelevant to the orchestrators.
func (m *mockUserStore) List(_ context.Context, filter userStore.ListFilter) ([]user.User, error) {
	var out []user.User
	for _, u := range m.users {
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Count returns the number of users.
func (m *mockUserStore) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

var fixedNow = time.Date(2025, 12, 8, 12, 0, 0, 0, time.UTC) // a Monday

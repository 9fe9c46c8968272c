package slot

import (
	"context"
	"time"

	domain "slotmanager/internal/domain/slot"
)

// Store persists Slot state.
// Every mutating call is a single conditional write: the capacity predicate is
// evaluated by the backend in the same statement that changes the slot.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Slot, error)
	FindByDate(ctx context.Context, date time.Time) (domain.Slot, error)
	CreateIfAbsent(ctx context.Context, candidate domain.Slot) (domain.Slot, error)
	AddRegistration(ctx context.Context, slotID string, reg domain.Registration, max int) (domain.Slot, error)
	ReplaceGuests(ctx context.Context, slotID, userID string, guests []string, max int) (domain.Slot, error)
	RemoveRegistration(ctx context.Context, slotID, userID string) (domain.Slot, error)
	RecordDetails(ctx context.Context, slotID string, details domain.Details) (domain.Slot, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Slot, error)
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]domain.Slot, error)
	Ping(ctx context.Context) error
}

// ListFilter carries paging parameters for List. Slots are ordered by date, newest first.
type ListFilter struct {
	Limit  int
	Offset int
}

// rejectRegister classifies an AddRegistration that matched nothing.
// PRE: s is the slot as read after the failed write
func rejectRegister(s domain.Slot, userID string, attempted, max int) error {
	if _, ok := s.FindRegistration(userID); ok {
		return domain.ErrAlreadyRegistered
	}
	return &domain.CapacityError{Occupancy: s.Occupancy(), Max: max, Attempted: attempted}
}

// rejectReplace classifies a ReplaceGuests that matched nothing.
// Occupancy reports the other registrations only.
func rejectReplace(s domain.Slot, userID string, guests []string, max int) error {
	reg, ok := s.FindRegistration(userID)
	if !ok {
		return domain.ErrNotRegistered
	}
	return &domain.CapacityError{
		Occupancy: s.Occupancy() - reg.Footprint(),
		Max:       max,
		Attempted: 1 + len(guests),
	}
}

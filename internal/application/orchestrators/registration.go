package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"slotmanager/internal/adapters/storage"
	"slotmanager/internal/adapters/telemetry"
	"slotmanager/internal/domain/slot"
)

const tracerName = "slotmanager/orchestrators"

// RegistrationSlotStore defines the slot store interface needed by the registration engine.
type RegistrationSlotStore interface {
	GetByID(ctx context.Context, id string) (slot.Slot, error)
	AddRegistration(ctx context.Context, slotID string, reg slot.Registration, max int) (slot.Slot, error)
	ReplaceGuests(ctx context.Context, slotID, userID string, guests []string, max int) (slot.Slot, error)
	RemoveRegistration(ctx context.Context, slotID, userID string) (slot.Slot, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// Authorizer decides whether actor may act on a registration.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, reg slot.Registration) error
}

// OwnerOrAdmin allows the member who created the registration, and admins.
type OwnerOrAdmin struct{}

// Authorize implements Authorizer.
// POST: Returns nil or slot.ErrForbidden
func (OwnerOrAdmin) Authorize(_ context.Context, actor Actor, reg slot.Registration) error {
	if actor.IsAdmin || (actor.UserID != "" && actor.UserID == reg.CreatedBy) {
		return nil
	}
	return slot.ErrForbidden
}

// RegistrationInput carries input for register, update and cancel.
type RegistrationInput struct {
	SlotID string
	Actor  Actor
	UserID string // member whose registration is affected; empty means Actor.UserID
	Guests []string
}

func (in RegistrationInput) target() string {
	if in.UserID != "" {
		return in.UserID
	}
	return in.Actor.UserID
}

// RegistrationDeps holds dependencies for the registration engine.
type RegistrationDeps struct {
	SlotStore    RegistrationSlotStore
	Authorizer   Authorizer // nil uses OwnerOrAdmin
	Retrier      storage.Retrier
	MaxOccupancy int // 0 disables the cap
	MaxGuests    int // 0 allows any number of guests
	Now          func() time.Time
}

func (d RegistrationDeps) authorizer() Authorizer {
	if d.Authorizer != nil {
		return d.Authorizer
	}
	return OwnerOrAdmin{}
}

func (d RegistrationDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ExecuteRegisterForSlot adds a registration for the target member.
// PRE: SlotID names an existing slot
// POST: Slot returned with the new registration appended, or
// ErrAlreadyRegistered / *CapacityError / ErrSlotNotFound / ErrForbidden / ErrStoreUnavailable
// INVARIANT: occupancy never exceeds MaxOccupancy when it is positive
func ExecuteRegisterForSlot(ctx context.Context, input RegistrationInput, deps RegistrationDeps) (slot.Slot, error) {
	ctx, span := startSpan(ctx, "RegisterForSlot", input)
	defer span.End()

	userID := input.target()
	reg := slot.Registration{
		UserID:       userID,
		Guests:       slot.NormalizeGuests(input.Guests),
		CreatedBy:    userID,
		RegisteredAt: deps.now(),
	}
	if err := reg.Validate(deps.MaxGuests); err != nil {
		return slot.Slot{}, fail(span, err)
	}
	if err := deps.authorizer().Authorize(ctx, input.Actor, reg); err != nil {
		return slot.Slot{}, fail(span, err)
	}

	attempts := 0
	s, err := storage.Retry(ctx, deps.Retrier, "add_registration", func(ctx context.Context) (slot.Slot, error) {
		attempts++
		s, err := deps.SlotStore.AddRegistration(ctx, input.SlotID, reg, deps.MaxOccupancy)
		if attempts > 1 && errors.Is(err, slot.ErrAlreadyRegistered) {
			return ownRegistration(ctx, deps, input.SlotID, reg)
		}
		return s, err
	})
	if err != nil {
		logRejected("registered", input, err)
		return slot.Slot{}, fail(span, storeErr(err))
	}

	slog.Info("slot_event", "event", "registered", "slot_id", s.ID, "user_id", userID, "actor_id", input.Actor.UserID, "guests", len(reg.Guests), "occupancy", s.Occupancy())
	return s, nil
}

// ExecuteUpdateRegistration replaces the guest list of an existing registration.
// Reducing guests never fails on capacity.
// POST: Slot returned with the guests replaced, or ErrNotRegistered / *CapacityError / ErrForbidden
func ExecuteUpdateRegistration(ctx context.Context, input RegistrationInput, deps RegistrationDeps) (slot.Slot, error) {
	ctx, span := startSpan(ctx, "UpdateRegistration", input)
	defer span.End()

	userID := input.target()
	guests := slot.NormalizeGuests(input.Guests)
	proposed := slot.Registration{UserID: userID, Guests: guests}
	if err := proposed.Validate(deps.MaxGuests); err != nil {
		return slot.Slot{}, fail(span, err)
	}
	if err := authorizeExisting(ctx, input, deps); err != nil {
		return slot.Slot{}, fail(span, err)
	}

	s, err := storage.Retry(ctx, deps.Retrier, "replace_guests", func(ctx context.Context) (slot.Slot, error) {
		return deps.SlotStore.ReplaceGuests(ctx, input.SlotID, userID, guests, deps.MaxOccupancy)
	})
	if err != nil {
		logRejected("registration_updated", input, err)
		return slot.Slot{}, fail(span, storeErr(err))
	}

	slog.Info("slot_event", "event", "registration_updated", "slot_id", s.ID, "user_id", userID, "actor_id", input.Actor.UserID, "guests", len(guests), "occupancy", s.Occupancy())
	return s, nil
}

// ExecuteCancelRegistration removes the target member's registration.
// POST: Slot returned without the registration, or ErrNotRegistered / ErrForbidden
func ExecuteCancelRegistration(ctx context.Context, input RegistrationInput, deps RegistrationDeps) (slot.Slot, error) {
	ctx, span := startSpan(ctx, "CancelRegistration", input)
	defer span.End()

	userID := input.target()
	if err := authorizeExisting(ctx, input, deps); err != nil {
		return slot.Slot{}, fail(span, err)
	}

	attempts := 0
	s, err := storage.Retry(ctx, deps.Retrier, "remove_registration", func(ctx context.Context) (slot.Slot, error) {
		attempts++
		s, err := deps.SlotStore.RemoveRegistration(ctx, input.SlotID, userID)
		if attempts > 1 && errors.Is(err, slot.ErrNotRegistered) {
			// An earlier attempt committed the delete before failing.
			slog.Warn("slot_event", "event", "cancel_recovered", "slot_id", input.SlotID, "user_id", userID, "attempts", attempts)
			return deps.SlotStore.GetByID(ctx, input.SlotID)
		}
		return s, err
	})
	if err != nil {
		logRejected("registration_cancelled", input, err)
		return slot.Slot{}, fail(span, storeErr(err))
	}

	slog.Info("slot_event", "event", "registration_cancelled", "slot_id", s.ID, "user_id", userID, "actor_id", input.Actor.UserID, "occupancy", s.Occupancy())
	return s, nil
}

// ownRegistration resolves ErrAlreadyRegistered seen on a retried attempt.
// The earlier attempt may have committed before its answer was lost; the
// stored registration is accepted when it is the one this call wrote.
// POST: Returns the slot, or ErrAlreadyRegistered when another write owns the row
func ownRegistration(ctx context.Context, deps RegistrationDeps, slotID string, reg slot.Registration) (slot.Slot, error) {
	s, err := deps.SlotStore.GetByID(ctx, slotID)
	if err != nil {
		return slot.Slot{}, err
	}
	stored, ok := s.FindRegistration(reg.UserID)
	if !ok || !sameRegistration(stored, reg) {
		return slot.Slot{}, slot.ErrAlreadyRegistered
	}
	slog.Warn("slot_event", "event", "register_recovered", "slot_id", slotID, "user_id", reg.UserID)
	return s, nil
}

// sameRegistration compares at the second precision every store keeps.
func sameRegistration(a, b slot.Registration) bool {
	if a.CreatedBy != b.CreatedBy || !slices.Equal(a.Guests, b.Guests) {
		return false
	}
	return a.RegisteredAt.Truncate(time.Second).Equal(b.RegisteredAt.Truncate(time.Second))
}

// authorizeExisting checks the actor against the stored registration.
// The write that follows re-checks existence atomically.
func authorizeExisting(ctx context.Context, input RegistrationInput, deps RegistrationDeps) error {
	userID := input.target()
	s, err := storage.Retry(ctx, deps.Retrier, "get_slot", func(ctx context.Context) (slot.Slot, error) {
		return deps.SlotStore.GetByID(ctx, input.SlotID)
	})
	if err != nil {
		return storeErr(err)
	}
	reg, ok := s.FindRegistration(userID)
	if !ok {
		// Non-admins may only learn about their own registrations.
		if !input.Actor.IsAdmin && input.Actor.UserID != userID {
			return slot.ErrForbidden
		}
		return slot.ErrNotRegistered
	}
	return deps.authorizer().Authorize(ctx, input.Actor, reg)
}

// storeErr maps exhausted retries onto the domain sentinel.
func storeErr(err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		return fmt.Errorf("%w: %v", slot.ErrStoreUnavailable, err)
	}
	return err
}

func logRejected(event string, input RegistrationInput, err error) {
	var capErr *slot.CapacityError
	if errors.As(err, &capErr) {
		slog.Info("slot_event", "event", event+"_rejected", "slot_id", input.SlotID, "user_id", input.target(),
			"reason", "capacity", "occupancy", capErr.Occupancy, "max", capErr.Max, "attempted", capErr.Attempted)
		return
	}
	slog.Info("slot_event", "event", event+"_rejected", "slot_id", input.SlotID, "user_id", input.target(), "reason", err.Error())
}

func startSpan(ctx context.Context, name string, input RegistrationInput) (context.Context, trace.Span) {
	return telemetry.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("slot.id", input.SlotID),
		attribute.String("user.id", input.target()),
		attribute.String("actor.id", input.Actor.UserID),
		attribute.Int("guests", len(input.Guests)),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

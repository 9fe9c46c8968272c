package orchestrators

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotmanager/internal/adapters/storage"
	"slotmanager/internal/adapters/telemetry"
	"slotmanager/internal/domain/schedule"
	"slotmanager/internal/domain/slot"
)

// NextSlotStore defines the slot store interface needed to resolve the next slot.
type NextSlotStore interface {
	CreateIfAbsent(ctx context.Context, candidate slot.Slot) (slot.Slot, error)
}

// NextSlotDeps holds dependencies for GetNextSlot.
type NextSlotDeps struct {
	SlotStore  NextSlotStore
	Rule       schedule.Rule
	Retrier    storage.Retrier
	Now        func() time.Time
	GenerateID func() string // nil uses uuid
}

// ExecuteGetNextSlot resolves the next weekly occurrence and returns its slot,
// creating it on first access.
// PRE: Rule has been validated
// POST: Exactly one slot exists for the resolved date, even under concurrent calls
// INVARIANT: The date always comes from the rule; no current slot is cached
func ExecuteGetNextSlot(ctx context.Context, deps NextSlotDeps) (slot.Slot, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "GetNextSlot")
	defer span.End()

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	date, err := deps.Rule.Next(now)
	if err != nil {
		return slot.Slot{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("slot.date", date.Format(time.RFC3339)))

	newID := deps.GenerateID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	candidate := slot.Slot{
		ID:            newID(),
		Date:          date,
		Registrations: []slot.Registration{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s, err := storage.Retry(ctx, deps.Retrier, "create_slot", func(ctx context.Context) (slot.Slot, error) {
		return deps.SlotStore.CreateIfAbsent(ctx, candidate)
	})
	if err != nil {
		return slot.Slot{}, fail(span, storeErr(err))
	}
	if s.ID == candidate.ID {
		slog.Info("slot_event", "event", "slot_created", "slot_id", s.ID, "date", s.Date)
	}
	return s, nil
}

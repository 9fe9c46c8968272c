package projections

import (
	"context"
	"errors"
	"fmt"

	"slotmanager/internal/adapters/storage"
	slotStore "slotmanager/internal/adapters/storage/slot"
	"slotmanager/internal/application/listutil"
	"slotmanager/internal/domain/slot"
)

// SlotReader defines the slot store interface for slot queries.
type SlotReader interface {
	GetByID(ctx context.Context, id string) (slot.Slot, error)
	List(ctx context.Context, filter slotStore.ListFilter) ([]slot.Slot, error)
	Count(ctx context.Context) (int, error)
}

// SlotQueryDeps holds dependencies for slot projections.
type SlotQueryDeps struct {
	SlotStore SlotReader
	Retrier   storage.Retrier
}

// SlotListResult is one page of slot history.
type SlotListResult struct {
	Slots []slot.Slot
	Page  listutil.PageInfo
}

// QueryGetSlot retrieves one slot.
// POST: Returns the slot, ErrSlotNotFound or ErrStoreUnavailable
func QueryGetSlot(ctx context.Context, id string, deps SlotQueryDeps) (slot.Slot, error) {
	s, err := storage.Retry(ctx, deps.Retrier, "get_slot", func(ctx context.Context) (slot.Slot, error) {
		return deps.SlotStore.GetByID(ctx, id)
	})
	return s, unavailable(err)
}

// QueryListSlots returns a page of slots, newest first.
// POST: Slots is non-nil; Page reflects the total at query time
func QueryListSlots(ctx context.Context, params listutil.PageParams, deps SlotQueryDeps) (SlotListResult, error) {
	total, err := storage.Retry(ctx, deps.Retrier, "count_slots", deps.SlotStore.Count)
	if err != nil {
		return SlotListResult{}, unavailable(err)
	}
	page := listutil.NewPageInfo(params, total)

	slots, err := storage.Retry(ctx, deps.Retrier, "list_slots", func(ctx context.Context) ([]slot.Slot, error) {
		return deps.SlotStore.List(ctx, slotStore.ListFilter{Limit: page.PerPage, Offset: page.Offset()})
	})
	if err != nil {
		return SlotListResult{}, unavailable(err)
	}
	if slots == nil {
		slots = []slot.Slot{}
	}
	return SlotListResult{Slots: slots, Page: page}, nil
}

// unavailable maps exhausted retries onto the domain sentinel.
func unavailable(err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		return fmt.Errorf("%w: %v", slot.ErrStoreUnavailable, err)
	}
	return err
}

package projections

import (
	"context"
	"log/slog"

	"slotmanager/internal/adapters/storage"
	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/stats"
	"slotmanager/internal/domain/user"
)

// StatsSlotStore defines the slot store interface for statistics.
type StatsSlotStore interface {
	ListAll(ctx context.Context) ([]slot.Slot, error)
}

// UserLister defines the user store interface for directory queries.
type UserLister interface {
	List(ctx context.Context, filter userStore.ListFilter) ([]user.User, error)
}

// StatsDeps holds dependencies for statistics projections.
type StatsDeps struct {
	SlotStore StatsSlotStore
	UserStore UserLister
	Retrier   storage.Retrier
}

// QueryGetStats aggregates statistics over the full slot history.
// Slots whose score cannot be parsed are logged and left out of win counts.
// PRE: none
// POST: Report reflects the slots and users read; it may lag concurrent writes
func QueryGetStats(ctx context.Context, deps StatsDeps) (stats.Report, error) {
	report, _, err := computeStats(ctx, deps)
	return report, err
}

// UserStatsResult is one member together with their statistics.
type UserStatsResult struct {
	User  user.User
	Stats stats.UserStats
}

// QueryGetUserStats returns one user's statistics.
// POST: Returns ErrUserNotFound for an unknown id
func QueryGetUserStats(ctx context.Context, userID string, deps StatsDeps) (UserStatsResult, error) {
	report, users, err := computeStats(ctx, deps)
	if err != nil {
		return UserStatsResult{}, err
	}
	s, ok := report.ByUser[userID]
	if !ok {
		return UserStatsResult{}, user.ErrUserNotFound
	}
	result := UserStatsResult{Stats: s}
	for _, u := range users {
		if u.ID == userID {
			result.User = u
			break
		}
	}
	return result, nil
}

func computeStats(ctx context.Context, deps StatsDeps) (stats.Report, []user.User, error) {
	slots, err := storage.Retry(ctx, deps.Retrier, "list_all_slots", deps.SlotStore.ListAll)
	if err != nil {
		return stats.Report{}, nil, unavailable(err)
	}
	users, err := storage.Retry(ctx, deps.Retrier, "list_users", func(ctx context.Context) ([]user.User, error) {
		return deps.UserStore.List(ctx, userStore.ListFilter{})
	})
	if err != nil {
		return stats.Report{}, nil, unavailable(err)
	}

	report := stats.Compute(slots, users)
	for _, id := range report.MalformedScores {
		slog.Warn("stats_event", "event", "malformed_score", "slot_id", id, "error", stats.ErrMalformedScore)
	}
	return report, users, nil
}

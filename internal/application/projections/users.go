package projections

import (
	"context"
	"errors"

	"slotmanager/internal/adapters/storage"
	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// UserReader defines the user store interface for profile queries.
type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context, filter userStore.ListFilter) ([]user.User, error)
}

// UserQueryDeps holds dependencies for user projections.
type UserQueryDeps struct {
	UserStore UserReader
	Retrier   storage.Retrier
}

// UserSummary is the public face of a member.
type UserSummary struct {
	ID          string
	DisplayName string
}

// UserProfile is a user together with its place in the sponsor graph.
type UserProfile struct {
	User      user.User
	Sponsor   *UserSummary
	Sponsored []UserSummary // active users sponsored by User, by display name
}

func listUsers(ctx context.Context, deps UserQueryDeps, filter userStore.ListFilter) ([]user.User, error) {
	users, err := storage.Retry(ctx, deps.Retrier, "list_users", func(ctx context.Context) ([]user.User, error) {
		return deps.UserStore.List(ctx, filter)
	})
	return users, unavailable(err)
}

func getUser(ctx context.Context, deps UserQueryDeps, id string) (user.User, error) {
	u, err := storage.Retry(ctx, deps.Retrier, "get_user", func(ctx context.Context) (user.User, error) {
		return deps.UserStore.GetByID(ctx, id)
	})
	return u, unavailable(err)
}

// QueryListUsers returns active users ordered by display name.
// POST: Result is non-nil
func QueryListUsers(ctx context.Context, deps UserQueryDeps) ([]user.User, error) {
	users, err := listUsers(ctx, deps, userStore.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}

// QueryGetUserProfile returns a user with their sponsor and sponsored members.
// A sponsor that no longer resolves is omitted rather than failing the query.
// POST: Returns ErrUserNotFound for an unknown id
func QueryGetUserProfile(ctx context.Context, id string, deps UserQueryDeps) (UserProfile, error) {
	u, err := getUser(ctx, deps, id)
	if err != nil {
		return UserProfile{}, err
	}
	profile := UserProfile{User: u, Sponsored: []UserSummary{}}

	if u.SponsorID != "" {
		sponsor, err := getUser(ctx, deps, u.SponsorID)
		switch {
		case err == nil:
			profile.Sponsor = &UserSummary{ID: sponsor.ID, DisplayName: sponsor.DisplayName}
		case !errors.Is(err, user.ErrUserNotFound):
			return UserProfile{}, err
		}
	}

	active, err := listUsers(ctx, deps, userStore.ListFilter{ActiveOnly: true})
	if err != nil {
		return UserProfile{}, err
	}
	for _, other := range active {
		if other.SponsorID == u.ID {
			profile.Sponsored = append(profile.Sponsored, UserSummary{ID: other.ID, DisplayName: other.DisplayName})
		}
	}
	return profile, nil
}

// QueryRegistrants resolves the members registered on slots, inactive ones
// included, with one directory read.
// POST: Result is keyed by user id; registrants missing from the directory are absent
func QueryRegistrants(ctx context.Context, deps UserQueryDeps, slots ...slot.Slot) (map[string]user.User, error) {
	wanted := make(map[string]bool)
	for _, s := range slots {
		for _, r := range s.Registrations {
			wanted[r.UserID] = true
		}
	}
	found := make(map[string]user.User, len(wanted))
	if len(wanted) == 0 {
		return found, nil
	}
	users, err := listUsers(ctx, deps, userStore.ListFilter{})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if wanted[u.ID] {
			found[u.ID] = u
		}
	}
	return found, nil
}

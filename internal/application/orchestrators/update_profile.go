package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/user"
)

// UserStoreForProfile defines the store interface needed by UpdateProfile.
type UserStoreForProfile interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, p userStore.Profile) (user.User, error)
}

// UpdateProfileInput carries input for the orchestrator.
type UpdateProfileInput struct {
	ActorID     string
	UserID      string
	DisplayName string
	FirstName   string
	LastName    string
}

// UpdateProfileDeps holds dependencies for UpdateProfile.
type UpdateProfileDeps struct {
	UserStore UserStoreForProfile
}

// ExecuteUpdateProfile edits a member's own display and legal names.
// PRE: ActorID is the authenticated caller
// POST: Profile updated, or ErrNotProfileOwner / ErrDisplayNameTaken / validation error
// INVARIANT: Only the user themself may edit their profile, admins included
func ExecuteUpdateProfile(ctx context.Context, input UpdateProfileInput, deps UpdateProfileDeps) (user.User, error) {
	if input.ActorID == "" || input.ActorID != input.UserID {
		return user.User{}, user.ErrNotProfileOwner
	}

	current, err := deps.UserStore.GetByID(ctx, input.UserID)
	if err != nil {
		return user.User{}, err
	}
	candidate := current
	candidate.DisplayName = input.DisplayName
	candidate.FirstName = input.FirstName
	candidate.LastName = input.LastName
	candidate.Normalize()
	if err := candidate.Validate(); err != nil {
		return user.User{}, err
	}

	updated, err := deps.UserStore.UpdateProfile(ctx, input.UserID, userStore.Profile{
		DisplayName: candidate.DisplayName,
		FirstName:   candidate.FirstName,
		LastName:    candidate.LastName,
	})
	if err != nil {
		return user.User{}, err
	}

	renamed := !strings.EqualFold(current.DisplayName, updated.DisplayName)
	slog.Info("user_event", "event", "profile_updated", "user_id", updated.ID, "renamed", renamed)
	return updated, nil
}

package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/user"
)

// UserStoreForCreate defines the store interface needed by CreateUser.
type UserStoreForCreate interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, u user.User) error
	List(ctx context.Context, filter userStore.ListFilter) ([]user.User, error)
	Count(ctx context.Context) (int, error)
}

// CreateUserInput carries input for the orchestrator.
type CreateUserInput struct {
	Actor       Actor
	DisplayName string
	FirstName   string
	LastName    string
	Email       string
	SponsorID   string // empty means the actor sponsors
}

// CreateUserDeps holds dependencies for CreateUser.
type CreateUserDeps struct {
	UserStore  UserStoreForCreate
	Now        func() time.Time
	GenerateID func() string
}

// ExecuteCreateUser signs up a sponsored member.
// PRE: Actor is an active member
// POST: User created, active, with SponsorID set to an active member
// INVARIANT: The sponsor graph stays acyclic and never self-references
func ExecuteCreateUser(ctx context.Context, input CreateUserInput, deps CreateUserDeps) (user.User, error) {
	sponsorID := strings.TrimSpace(input.SponsorID)
	if sponsorID == "" {
		sponsorID = input.Actor.UserID
	}
	if sponsorID == "" {
		return user.User{}, user.ErrSponsorNotFound
	}

	sponsor, err := deps.UserStore.GetByID(ctx, sponsorID)
	if errors.Is(err, user.ErrUserNotFound) {
		return user.User{}, user.ErrSponsorNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	if !sponsor.IsActive {
		return user.User{}, user.ErrSponsorInactive
	}

	u := newUser(input.DisplayName, input.FirstName, input.LastName, input.Email, deps)
	u.SponsorID = sponsor.ID
	u.Normalize()
	if err := u.Validate(); err != nil {
		return user.User{}, err
	}

	all, err := deps.UserStore.List(ctx, userStore.ListFilter{})
	if err != nil {
		return user.User{}, err
	}
	sponsorOf := make(map[string]string, len(all))
	for _, existing := range all {
		sponsorOf[existing.ID] = existing.SponsorID
	}
	if err := user.ValidateSponsorship(u.ID, u.SponsorID, sponsorOf); err != nil {
		return user.User{}, err
	}

	if err := deps.UserStore.Create(ctx, u); err != nil {
		return user.User{}, err
	}

	slog.Info("user_event", "event", "user_created", "user_id", u.ID, "display_name", u.DisplayName, "sponsor_id", u.SponsorID, "actor_id", input.Actor.UserID)
	return u, nil
}

// ExecuteSeedFounder creates the first, unsponsored admin when the directory is empty.
// PRE: Storage is migrated
// POST: Founder exists if the directory was empty; otherwise nothing changes
func ExecuteSeedFounder(ctx context.Context, deps CreateUserDeps, email, displayName string) error {
	count, err := deps.UserStore.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if strings.TrimSpace(email) == "" {
		slog.Warn("user_event", "event", "founder_seed_skipped", "reason", "no founder email configured")
		return nil
	}

	first, last, _ := strings.Cut(strings.TrimSpace(displayName), " ")
	if last == "" {
		last = first
	}
	u := newUser(displayName, first, last, email, deps)
	u.IsAdmin = true
	u.Normalize()
	if err := u.Validate(); err != nil {
		return err
	}
	if err := deps.UserStore.Create(ctx, u); err != nil {
		return err
	}

	slog.Info("user_event", "event", "founder_seeded", "user_id", u.ID, "email", u.Email)
	return nil
}

func newUser(displayName, first, last, email string, deps CreateUserDeps) user.User {
	id := uuid.New().String()
	if deps.GenerateID != nil {
		id = deps.GenerateID()
	}
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	return user.User{
		ID:               id,
		DisplayName:      displayName,
		FirstName:        first,
		LastName:         last,
		Email:            email,
		RegistrationDate: now,
		IsActive:         true,
	}
}

package user

import (
	"context"

	domain "slotmanager/internal/domain/user"
)

// Store persists User state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByDisplayName(ctx context.Context, name string) (domain.User, error)
	Create(ctx context.Context, u domain.User) error
	UpdateProfile(ctx context.Context, id string, p Profile) (domain.User, error)
	List(ctx context.Context, filter ListFilter) ([]domain.User, error)
	Count(ctx context.Context) (int, error)
}

// Profile carries the self-editable fields of a user.
type Profile struct {
	DisplayName string
	FirstName   string
	LastName    string
}

// ListFilter carries filtering parameters for List. Results are ordered by
// display name, case-insensitive.
type ListFilter struct {
	ActiveOnly bool
}

package user

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength        = 100
	MaxDisplayNameLength = 50
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDisplayNameTaken   = errors.New("display name already in use")
	ErrEmailTaken         = errors.New("email already in use")
	ErrSelfSponsor        = errors.New("a user cannot sponsor themself")
	ErrSponsorCycle       = errors.New("sponsorship would create a cycle")
	ErrSponsorNotFound    = errors.New("sponsor not found")
	ErrSponsorInactive    = errors.New("sponsor is not an active member")
	ErrNotProfileOwner    = errors.New("only the user can edit their own profile")
	ErrInactiveIdentity   = errors.New("user is not active")
	ErrMissingDisplayName = errors.New("display name cannot be empty")
	ErrDisplayNameTooLong = errors.New("display name cannot exceed 50 characters")
	ErrMissingNames       = errors.New("first and last name are required")
	ErrNameTooLong        = errors.New("names cannot exceed 100 characters")
	ErrInvalidEmail       = errors.New("email must be valid")
)

// User is a member of the group. Identity is asserted by the upstream proxy;
// no credentials are stored.
type User struct {
	ID               string
	DisplayName      string // unique
	FirstName        string
	LastName         string
	Email            string // unique
	RegistrationDate time.Time
	SponsorID        string // empty for the founder
	IsActive         bool
	IsAdmin          bool
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Validate checks if the User has valid data.
// PRE: User struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: Email must contain '@', DisplayName must not be empty
func (u *User) Validate() error {
	if strings.TrimSpace(u.DisplayName) == "" {
		return ErrMissingDisplayName
	}
	if utf8.RuneCountInString(u.DisplayName) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" {
		return ErrMissingNames
	}
	if utf8.RuneCountInString(u.FirstName) > MaxNameLength || utf8.RuneCountInString(u.LastName) > MaxNameLength {
		return ErrNameTooLong
	}
	if !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	if u.SponsorID != "" && u.SponsorID == u.ID {
		return ErrSelfSponsor
	}
	return nil
}

// Normalize trims whitespace and lowercases the email.
func (u *User) Normalize() {
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.SponsorID = strings.TrimSpace(u.SponsorID)
}

// ValidateSponsorship rejects self-sponsorship and cycles in the sponsor graph.
// sponsorOf maps each existing user id to its sponsor id ("" for none).
// PRE: sponsorOf reflects the persisted graph without the pending edge
// POST: Returns nil if userID -> sponsorID keeps the graph acyclic
func ValidateSponsorship(userID, sponsorID string, sponsorOf map[string]string) error {
	if sponsorID == "" {
		return nil
	}
	if sponsorID == userID {
		return ErrSelfSponsor
	}
	seen := map[string]bool{userID: true}
	for cur := sponsorID; cur != ""; cur = sponsorOf[cur] {
		if seen[cur] {
			return ErrSponsorCycle
		}
		seen[cur] = true
	}
	return nil
}

// SameDisplayName compares display names case-insensitively.
func SameDisplayName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

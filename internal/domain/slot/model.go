package slot

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Max length constants for user-editable fields.
const (
	MaxGuestNameLength = 100
	MaxScoreLength     = 20
	MaxNotesLength     = 5000
)

// Team keys used in Details.Teams.
const (
	TeamA = "teamA"
	TeamB = "teamB"
)

// Domain errors
var (
	ErrAlreadyRegistered = errors.New("already registered for this slot")
	ErrNotRegistered     = errors.New("registration not found")
	ErrCapacityExceeded  = errors.New("slot is full")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrForbidden         = errors.New("not allowed to modify this registration")
	ErrStoreUnavailable  = errors.New("slot store unavailable, try again")
	ErrTooManyGuests     = errors.New("too many guests")
	ErrGuestNameTooLong  = errors.New("guest name cannot exceed 100 characters")
	ErrEmptyUserID       = errors.New("registration must belong to a member")
	ErrScoreTooLong      = errors.New("final score cannot exceed 20 characters")
	ErrNotesTooLong      = errors.New("notes cannot exceed 5000 characters")
	ErrBlankTeamLabel    = errors.New("team player labels cannot be empty")
)

// CapacityError reports the occupancy observed when a registration was refused.
// errors.Is(err, ErrCapacityExceeded) holds for every *CapacityError.
type CapacityError struct {
	Occupancy int // units taken before the attempt
	Max       int
	Attempted int // units the attempt needed
}

// Error implements error.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("slot is full: %d/%d taken, %d requested", e.Occupancy, e.Max, e.Attempted)
}

// Is makes *CapacityError match ErrCapacityExceeded.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// Slot is one calendar occurrence of the weekly game.
type Slot struct {
	ID            string
	Date          time.Time // unique; always produced by the schedule rule
	Registrations []Registration
	Details       Details
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Registration is a member's claim on a slot, possibly bringing guests.
type Registration struct {
	UserID       string
	Guests       []string
	CreatedBy    string
	RegisteredAt time.Time
}

// Details is the post-game record of a slot.
type Details struct {
	Teams      Teams
	FinalScore string
	Notes      string // markdown match report
}

// Teams holds the player labels of both sides.
type Teams struct {
	TeamA []string `json:"teamA"`
	TeamB []string `json:"teamB"`
}

// Footprint returns the capacity units this registration occupies.
// INVARIANT: Registration is not mutated
func (r Registration) Footprint() int {
	return 1 + len(r.Guests)
}

// OccupantKind tags an Occupant.
type OccupantKind string

const (
	KindMember OccupantKind = "member"
	KindGuest  OccupantKind = "guest"
)

// Occupant is one body on the pitch: either a member or a named guest.
// Members carry UserID; guests carry Name and AddedBy.
type Occupant struct {
	Kind    OccupantKind
	UserID  string
	Name    string
	AddedBy string
}

// Occupants flattens the registration into its member followed by its guests.
// POST: len(result) == Footprint()
func (r Registration) Occupants() []Occupant {
	out := make([]Occupant, 0, r.Footprint())
	out = append(out, Occupant{Kind: KindMember, UserID: r.UserID})
	for _, g := range r.Guests {
		out = append(out, Occupant{Kind: KindGuest, Name: g, AddedBy: r.UserID})
	}
	return out
}

// Occupancy sums the footprint of every registration.
// INVARIANT: Recomputed on every call; no cached counter exists
func (s *Slot) Occupancy() int {
	total := 0
	for _, r := range s.Registrations {
		total += r.Footprint()
	}
	return total
}

// Occupants lists every occupant in registration order.
func (s *Slot) Occupants() []Occupant {
	var out []Occupant
	for _, r := range s.Registrations {
		out = append(out, r.Occupants()...)
	}
	return out
}

// IsFull reports whether max is reached. A max of 0 means uncapped.
func (s *Slot) IsFull(max int) bool {
	return max > 0 && s.Occupancy() >= max
}

// FindRegistration returns the registration for userID, if any.
func (s *Slot) FindRegistration(userID string) (Registration, bool) {
	for _, r := range s.Registrations {
		if r.UserID == userID {
			return r, true
		}
	}
	return Registration{}, false
}

// HasResult reports whether a final score has been recorded.
func (s *Slot) HasResult() bool {
	return strings.TrimSpace(s.Details.FinalScore) != ""
}

// Validate checks if the Registration has valid data.
// PRE: Guests have been normalised with NormalizeGuests
// POST: Returns nil if valid, error otherwise
func (r *Registration) Validate(maxGuests int) error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if maxGuests > 0 && len(r.Guests) > maxGuests {
		return ErrTooManyGuests
	}
	for _, g := range r.Guests {
		if utf8.RuneCountInString(g) > MaxGuestNameLength {
			return ErrGuestNameTooLong
		}
	}
	return nil
}

// NormalizeGuests trims guest names and drops blank ones.
// Duplicate names are kept: guests are free text, not identities.
// POST: Returns a non-nil slice
func NormalizeGuests(guests []string) []string {
	out := make([]string, 0, len(guests))
	for _, g := range guests {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// Validate checks if the Details have valid data.
// A malformed score is accepted here; statistics skip it.
func (d *Details) Validate() error {
	if utf8.RuneCountInString(d.FinalScore) > MaxScoreLength {
		return ErrScoreTooLong
	}
	if utf8.RuneCountInString(d.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	for _, label := range append(append([]string{}, d.Teams.TeamA...), d.Teams.TeamB...) {
		if strings.TrimSpace(label) == "" {
			return ErrBlankTeamLabel
		}
	}
	return nil
}

package stats

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// ErrMalformedScore is returned for a final score that is not "A-B".
var ErrMalformedScore = errors.New("final score is not in A-B form")

// Accepts "5-3", "5 – 3" (en dash) and "5:3".
var scorePattern = regexp.MustCompile(`^\s*(\d+)\s*[-–:]\s*(\d+)\s*$`)

// Side identifies the winning team of a slot.
type Side int

const (
	SideNone Side = iota // draw or unknown
	SideA
	SideB
)

// Score is a parsed final score.
type Score struct {
	A int
	B int
}

// ParseScore parses a final score string.
// POST: Returns ErrMalformedScore unless s matches the score pattern
func ParseScore(s string) (Score, error) {
	m := scorePattern.FindStringSubmatch(s)
	if m == nil {
		return Score{}, ErrMalformedScore
	}
	a, errA := strconv.Atoi(m[1])
	b, errB := strconv.Atoi(m[2])
	if errA != nil || errB != nil {
		return Score{}, ErrMalformedScore
	}
	return Score{A: a, B: b}, nil
}

// Winner returns the winning side. A draw has no winner.
func (s Score) Winner() Side {
	switch {
	case s.A > s.B:
		return SideA
	case s.B > s.A:
		return SideB
	default:
		return SideNone
	}
}

// UserStats aggregates one user's history.
type UserStats struct {
	UserID             string
	DisplayName        string
	RegistrationDate   time.Time
	IsActive           bool
	Attendance         int
	Wins               int
	GuestsInvited      int
	SponsoredUsers     int
	TotalContributions int
}

// Leaders holds the global arg-max winners. A nil entry means nobody scored above zero.
type Leaders struct {
	MostWins       *UserStats
	BestAttendance *UserStats
	TopContributor *UserStats
}

// Report is the full aggregation over every slot and user.
type Report struct {
	Leaders Leaders
	All     []UserStats // active users, attendance desc
	ByUser  map[string]UserStats
	// MalformedScores lists slot ids whose score could not be parsed.
	MalformedScores []string
}

// Compute aggregates statistics from every slot and user.
// PRE: slots and users are complete snapshots
// POST: Leaders and All consider active users only; ByUser covers every user
// INVARIANT: Inputs are not mutated
func Compute(slots []slot.Slot, users []user.User) Report {
	byUser := make(map[string]*UserStats, len(users))
	byName := make(map[string]string, len(users))
	for _, u := range users {
		byUser[u.ID] = &UserStats{
			UserID:           u.ID,
			DisplayName:      u.DisplayName,
			RegistrationDate: u.RegistrationDate,
			IsActive:         u.IsActive,
		}
		byName[strings.ToLower(strings.TrimSpace(u.DisplayName))] = u.ID
	}
	for _, u := range users {
		if !u.IsActive || u.SponsorID == "" {
			continue
		}
		if s, ok := byUser[u.SponsorID]; ok {
			s.SponsoredUsers++
		}
	}

	var malformed []string
	for i := range slots {
		sl := &slots[i]
		for _, r := range sl.Registrations {
			s, ok := byUser[r.UserID]
			if !ok {
				continue
			}
			s.Attendance++
			s.GuestsInvited += len(r.Guests)
		}
		if !sl.HasResult() {
			continue
		}
		score, err := ParseScore(sl.Details.FinalScore)
		if err != nil {
			malformed = append(malformed, sl.ID)
			continue
		}
		for _, id := range winners(sl, score.Winner(), byName) {
			if s, ok := byUser[id]; ok {
				s.Wins++
			}
		}
	}

	report := Report{ByUser: make(map[string]UserStats, len(byUser)), MalformedScores: malformed}
	var active []UserStats
	for _, s := range byUser {
		s.TotalContributions = s.GuestsInvited + s.SponsoredUsers
		report.ByUser[s.UserID] = *s
		if s.IsActive {
			active = append(active, *s)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Attendance != active[j].Attendance {
			return active[i].Attendance > active[j].Attendance
		}
		return earlier(active[i], active[j])
	})
	report.All = active
	report.Leaders = Leaders{
		MostWins:       leader(active, func(s UserStats) int { return s.Wins }),
		BestAttendance: leader(active, func(s UserStats) int { return s.Attendance }),
		TopContributor: leader(active, func(s UserStats) int { return s.TotalContributions }),
	}
	return report
}

// winners resolves the labels of the winning team to registrant ids.
// A label matches a registrant by user id or by display name, case-insensitive.
// Each registrant is credited at most once per slot.
func winners(sl *slot.Slot, side Side, byName map[string]string) []string {
	var labels []string
	switch side {
	case SideA:
		labels = sl.Details.Teams.TeamA
	case SideB:
		labels = sl.Details.Teams.TeamB
	default:
		return nil
	}

	registered := make(map[string]bool, len(sl.Registrations))
	for _, r := range sl.Registrations {
		registered[r.UserID] = true
	}

	credited := make(map[string]bool)
	var ids []string
	for _, label := range labels {
		label = strings.TrimSpace(label)
		id := label
		if !registered[id] {
			id = byName[strings.ToLower(label)]
		}
		if id == "" || !registered[id] || credited[id] {
			continue
		}
		credited[id] = true
		ids = append(ids, id)
	}
	return ids
}

// leader returns the arg-max of metric, or nil when the maximum is not positive.
// Ties go to the earliest registration date, then the lowest id.
func leader(all []UserStats, metric func(UserStats) int) *UserStats {
	var best *UserStats
	for i := range all {
		s := all[i]
		if metric(s) <= 0 {
			continue
		}
		if best == nil || metric(s) > metric(*best) || (metric(s) == metric(*best) && earlier(s, *best)) {
			cp := s
			best = &cp
		}
	}
	return best
}

func earlier(a, b UserStats) bool {
	if !a.RegistrationDate.Equal(b.RegistrationDate) {
		return a.RegistrationDate.Before(b.RegistrationDate)
	}
	return a.UserID < b.UserID
}

package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Day of week constants
const (
	Monday    = "monday"
	Tuesday   = "tuesday"
	Wednesday = "wednesday"
	Thursday  = "thursday"
	Friday    = "friday"
	Saturday  = "saturday"
	Sunday    = "sunday"
)

// ValidDays contains all valid day values.
var ValidDays = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdays = map[string]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// Domain errors
var (
	ErrInvalidDay       = errors.New("day must be a valid day of the week")
	ErrEmptyStartTime   = errors.New("start time cannot be empty")
	ErrEmptyEndTime     = errors.New("end time cannot be empty")
	ErrInvalidStartTime = errors.New("start time must be in HH:MM format")
)

// Rule describes the recurring weekly slot: same weekday, same time of day.
// Slot dates are resolved on the fly from Rule + wall-clock time; no
// "current slot" is ever cached.
type Rule struct {
	Day       string // monday, tuesday, etc.
	StartTime string // HH:MM format
	EndTime   string // HH:MM format
	Location  *time.Location
}

// Validate checks if the Rule has valid data.
// PRE: Rule struct is populated
// POST: Returns nil if valid, error otherwise
func (r *Rule) Validate() error {
	if !isValidDay(r.Day) {
		return ErrInvalidDay
	}
	if strings.TrimSpace(r.StartTime) == "" {
		return ErrEmptyStartTime
	}
	if strings.TrimSpace(r.EndTime) == "" {
		return ErrEmptyEndTime
	}
	if _, _, err := r.clock(); err != nil {
		return err
	}
	return nil
}

// DurationHours returns the session duration in hours.
// PRE: StartTime and EndTime are in HH:MM format
// POST: Returns duration as float64 hours, or error if times can't be parsed
func (r *Rule) DurationHours() (float64, error) {
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", r.StartTime, err)
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", r.EndTime, err)
	}
	dur := end.Sub(start)
	if dur <= 0 {
		dur += 24 * time.Hour // late games running past midnight
	}
	return dur.Hours(), nil
}

// Next resolves the next slot instant for this rule.
// PRE: Rule has been validated
// POST: Returns the first instant >= now (exclusive of now itself) matching Day and StartTime in Location
func (r *Rule) Next(now time.Time) (time.Time, error) {
	hour, minute, err := r.clock()
	if err != nil {
		return time.Time{}, err
	}
	wd, ok := weekdays[r.Day]
	if !ok {
		return time.Time{}, ErrInvalidDay
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return NextOccurrence(now.In(loc), wd, hour, minute), nil
}

// NextOccurrence returns the next weekly occurrence of weekday@hour:minute.
// The calendar is that of now's location.
//
// If today is the target weekday and now is strictly before today's slot
// time, today's slot is returned. Otherwise the result is 1..7 days ahead.
// now equal to the slot instant counts as past and rolls to next week.
// Days are stepped with time.Date so the wall-clock time survives DST shifts.
// A slot time inside a spring-forward gap does not exist on that day; time.Date
// then moves it forward by the gap, so 02:30 becomes 03:30 when clocks jump
// from 02:00 to 03:00. The following week returns to the configured time.
func NextOccurrence(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	loc := now.Location()
	y, m, d := now.Date()

	today := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if now.Weekday() == weekday && now.Before(today) {
		return today
	}
	for i := 1; i <= 7; i++ {
		candidate := time.Date(y, m, d+i, hour, minute, 0, 0, loc)
		if candidate.Weekday() == weekday {
			return candidate
		}
	}
	// unreachable: seven consecutive days cover every weekday
	return today.AddDate(0, 0, 7)
}

func (r *Rule) clock() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(r.StartTime))
	if err != nil {
		return 0, 0, ErrInvalidStartTime
	}
	return t.Hour(), t.Minute(), nil
}

func isValidDay(day string) bool {
	for _, d := range ValidDays {
		if d == day {
			return true
		}
	}
	return false
}

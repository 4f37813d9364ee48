// Package rota defines the scheduling domain shared by the pipeline: schedule
// definitions, the roster and shift input read from the data source, and the
// rules the optimizer enforces.
package rota

import (
	"sort"
	"time"
)

// DateLayout is the canonical date format used in storage, fingerprints and output.
const DateLayout = "2006-01-02"

// Employee is one roster row. IDs are trusted verbatim; the pipeline never
// matches people by name or role.
type Employee struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Role            string      `json:"role"`
	ContractedHours int         `json:"contracted_hours,omitempty"` // weekly; 0 = uncapped
	Unavailable     []time.Time `json:"unavailable,omitempty"`
}

// IsAvailable reports whether the employee can work on day.
func (e Employee) IsAvailable(day time.Time) bool {
	key := day.Format(DateLayout)
	for _, d := range e.Unavailable {
		if d.Format(DateLayout) == key {
			return false
		}
	}
	return true
}

// Clock is minutes after midnight.
type Clock int

// String renders the clock as HH:MM.
func (c Clock) String() string {
	m := int(c) % (24 * 60)
	return time.Date(0, 1, 1, m/60, m%60, 0, 0, time.UTC).Format("15:04")
}

// ShiftTemplate describes one recurring shift and its staffing requirement.
type ShiftTemplate struct {
	Name      string         `json:"name"`
	Start     Clock          `json:"start"`
	End       Clock          `json:"end"` // End <= Start wraps past midnight
	Headcount int            `json:"headcount"`
	RoleMix   map[string]int `json:"role_mix,omitempty"` // minimum per role
	Days      []time.Weekday `json:"days,omitempty"`     // empty = every day
	From      time.Time      `json:"from,omitempty"`     // first date the row covers; zero = horizon start
	To        time.Time      `json:"to,omitempty"`       // last date, inclusive; zero = horizon end
}

// DurationMinutes is the length of the shift, accounting for overnight wrap.
func (s ShiftTemplate) DurationMinutes() int {
	d := int(s.End) - int(s.Start)
	if d <= 0 {
		d += 24 * 60
	}
	return d
}

// AppliesOn reports whether the template requires staff on day.
func (s ShiftTemplate) AppliesOn(day time.Time) bool {
	if !s.From.IsZero() && day.Before(s.From) {
		return false
	}
	if !s.To.IsZero() && day.After(s.To) {
		return false
	}
	if len(s.Days) == 0 {
		return true
	}
	for _, wd := range s.Days {
		if day.Weekday() == wd {
			return true
		}
	}
	return false
}

// AcceptsRole reports whether an employee with role may fill this shift.
// Templates without a role mix accept anyone.
func (s ShiftTemplate) AcceptsRole(role string) bool {
	if len(s.RoleMix) == 0 {
		return true
	}
	_, ok := s.RoleMix[role]
	return ok || s.openSeats() > 0
}

// openSeats is the headcount not reserved for a specific role.
func (s ShiftTemplate) openSeats() int {
	reserved := 0
	for _, n := range s.RoleMix {
		reserved += n
	}
	return s.Headcount - reserved
}

// Roles returns the role mix keys in sorted order.
func (s ShiftTemplate) Roles() []string {
	roles := make([]string, 0, len(s.RoleMix))
	for r := range s.RoleMix {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// Horizon is an inclusive date range.
type Horizon struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days lists every date in the horizon; empty when End precedes Start.
func (h Horizon) Days() []time.Time {
	var days []time.Time
	for d := Day(h.Start); !d.After(Day(h.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in the horizon.
func (h Horizon) Len() int {
	return len(h.Days())
}

// Preference is a weighted wish for (or against) a shift. Weight > 0 wants
// the shift, Weight < 0 avoids it. A zero Date applies to every day.
type Preference struct {
	EmployeeID string    `json:"employee_id"`
	Shift      string    `json:"shift"`
	Date       time.Time `json:"date,omitempty"`
	Weight     int       `json:"weight"`
}

// AnyDate reports whether the preference applies to the whole horizon.
func (p Preference) AnyDate() bool {
	return p.Date.IsZero()
}

// Rules are the legal/contract limits and objective weights applied to every
// schedule. They come from configuration, not from the data source.
type Rules struct {
	MinRestHours       int `json:"min_rest_hours"`
	MaxConsecutiveDays int `json:"max_consecutive_days"` // 0 = unlimited
	PreferenceWeight   int `json:"preference_weight"`
	FairnessWeight     int `json:"fairness_weight"`
}

// Input is everything the model builder needs for one schedule run.
type Input struct {
	Employees   []Employee      `json:"employees"`
	Shifts      []ShiftTemplate `json:"shifts"`
	Horizon     Horizon         `json:"horizon"`
	Preferences []Preference    `json:"preferences,omitempty"`
	Rules       Rules           `json:"rules"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

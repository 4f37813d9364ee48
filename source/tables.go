package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/rota"
)

// MaxPreferenceWeight bounds the magnitude of a preference weight cell.
const MaxPreferenceWeight = 100

// column aliases, keyed by canonical name. Headers are matched after
// lower-casing and replacing spaces with underscores.
var (
	rosterColumns = map[string][]string{
		"employee_id":      {"employee_id", "employee", "staff_id", "id"},
		"name":             {"name", "employee_name"},
		"role":             {"role", "position"},
		"contracted_hours": {"contracted_hours", "hours", "weekly_hours"},
		"unavailable":      {"unavailable", "unavailability", "days_off"},
	}
	shiftColumns = map[string][]string{
		"shift":      {"shift", "shift_name", "name"},
		"start":      {"start", "start_time"},
		"end":        {"end", "end_time"},
		"headcount":  {"headcount", "required", "staff_required"},
		"start_date": {"start_date", "from"},
		"end_date":   {"end_date", "to", "until"},
		"roles":      {"roles", "role_mix"},
		"days":       {"days", "weekdays"},
	}
	preferenceColumns = map[string][]string{
		"employee_id": {"employee_id", "employee", "staff_id", "id"},
		"shift":       {"shift", "shift_name"},
		"weight":      {"weight", "score"},
		"rank":        {"rank"},
		"date":        {"date"},
	}
)

// table is a parsed tab: a header index plus data rows.
type table struct {
	tab  string
	cols map[string]int
	rows [][]string
	line []int // 1-based sheet row of each data row
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// newTable locates the header (the first non-blank row), maps it onto the
// canonical column names and drops blank data rows.
func newTable(tab string, raw [][]string, aliases map[string][]string, required ...string) (*table, error) {
	t := &table{tab: tab, cols: map[string]int{}}
	header := -1
	for i, r := range raw {
		if !blank(r) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, errors.NewSourceFormat("tab %q is empty", tab)
	}

	seen := map[string]int{}
	for i, h := range raw[header] {
		seen[normalizeHeader(h)] = i
	}
	for canonical, names := range aliases {
		for _, n := range names {
			if idx, ok := seen[n]; ok {
				t.cols[canonical] = idx
				break
			}
		}
	}
	for _, col := range required {
		if _, ok := t.cols[col]; !ok {
			return nil, errors.WithDetailf(
				errors.NewSourceFormat("tab %q: missing required column %q", tab, col),
				"header: %s", strings.Join(raw[header], ", "))
		}
	}

	for i := header + 1; i < len(raw); i++ {
		if blank(raw[i]) {
			continue
		}
		t.rows = append(t.rows, raw[i])
		t.line = append(t.line, i+1)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// cell returns the trimmed value of col in data row i; "" when absent.
func (t *table) cell(i int, col string) string {
	idx, ok := t.cols[col]
	if !ok || idx >= len(t.rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.rows[i][idx])
}

func (t *table) errorf(i int, col, format string, args ...interface{}) error {
	return errors.WithDetailf(
		errors.NewSourceFormat("tab %q row %d column %q: "+format, append([]interface{}{t.tab, t.line[i], col}, args...)...),
		"row: %s", strings.Join(t.rows[i], ", "))
}

func (t *table) integer(i int, col string, required bool) (int, error) {
	v := t.cell(i, col)
	if v == "" {
		if required {
			return 0, t.errorf(i, col, "value is required")
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Sheets renders whole numbers as "8.0" when the cell is formatted.
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, t.errorf(i, col, "%q is not an integer", v)
		}
		n = int(f)
	}
	return n, nil
}

func (t *table) date(i int, col string) (time.Time, error) {
	v := t.cell(i, col)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := rota.ParseDate(v)
	if err != nil {
		return time.Time{}, t.errorf(i, col, "%v", err)
	}
	return d, nil
}

// parseRoster reads the Roster tab. Rows without an employee id are passed
// through so the model builder reports them as invalid input.
func parseRoster(raw [][]string) ([]rota.Employee, error) {
	t, err := newTable(RosterTab, raw, rosterColumns, "employee_id", "name", "role")
	if err != nil {
		return nil, err
	}
	employees := make([]rota.Employee, 0, len(t.rows))
	for i := range t.rows {
		e := rota.Employee{
			ID:   t.cell(i, "employee_id"),
			Name: t.cell(i, "name"),
			Role: t.cell(i, "role"),
		}
		if e.ContractedHours, err = t.integer(i, "contracted_hours", false); err != nil {
			return nil, err
		}
		if e.ContractedHours < 0 {
			return nil, t.errorf(i, "contracted_hours", "must not be negative")
		}
		if v := t.cell(i, "unavailable"); v != "" {
			if e.Unavailable, err = rota.ParseDateList(v); err != nil {
				return nil, t.errorf(i, "unavailable", "%v", err)
			}
		}
		employees = append(employees, e)
	}
	return employees, nil
}

// parseShifts reads the Shifts tab. Each row covers its own start_date to
// end_date; the horizon spans the earliest start_date to the latest end_date
// across rows.
func parseShifts(raw [][]string) ([]rota.ShiftTemplate, rota.Horizon, error) {
	var horizon rota.Horizon
	t, err := newTable(ShiftsTab, raw, shiftColumns, "shift", "start", "end", "headcount", "start_date", "end_date")
	if err != nil {
		return nil, horizon, err
	}

	shifts := make([]rota.ShiftTemplate, 0, len(t.rows))
	for i := range t.rows {
		s := rota.ShiftTemplate{Name: t.cell(i, "shift")}
		if s.Name == "" {
			return nil, horizon, t.errorf(i, "shift", "value is required")
		}

		start, end := t.cell(i, "start"), t.cell(i, "end")
		if start == "" && end == "" {
			var ok bool
			if s.Start, s.End, ok = rota.StandardShiftTimes(s.Name); !ok {
				return nil, horizon, t.errorf(i, "start", "no times given and %q is not a standard shift code", s.Name)
			}
		} else {
			if s.Start, err = rota.ParseClock(start); err != nil {
				return nil, horizon, t.errorf(i, "start", "%v", err)
			}
			if s.End, err = rota.ParseClock(end); err != nil {
				return nil, horizon, t.errorf(i, "end", "%v", err)
			}
		}

		if s.Headcount, err = t.integer(i, "headcount", true); err != nil {
			return nil, horizon, err
		}
		if v := t.cell(i, "roles"); v != "" {
			if s.RoleMix, err = rota.ParseRoleMix(v); err != nil {
				return nil, horizon, t.errorf(i, "roles", "%v", err)
			}
		}
		if v := t.cell(i, "days"); v != "" {
			if s.Days, err = rota.ParseWeekdays(v); err != nil {
				return nil, horizon, t.errorf(i, "days", "%v", err)
			}
		}

		from, err := t.date(i, "start_date")
		if err != nil {
			return nil, horizon, err
		}
		to, err := t.date(i, "end_date")
		if err != nil {
			return nil, horizon, err
		}
		if !from.IsZero() && !to.IsZero() && to.Before(from) {
			return nil, horizon, t.errorf(i, "end_date", "is before start_date")
		}
		s.From, s.To = from, to
		if !from.IsZero() && (horizon.Start.IsZero() || from.Before(horizon.Start)) {
			horizon.Start = from
		}
		if !to.IsZero() && to.After(horizon.End) {
			horizon.End = to
		}
		shifts = append(shifts, s)
	}

	if len(shifts) > 0 && (horizon.Start.IsZero() || horizon.End.IsZero()) {
		return nil, horizon, errors.NewSourceFormat("tab %q: no row gives both start_date and end_date", ShiftsTab)
	}
	return shifts, horizon, nil
}

// parsePreferences reads the Preferences tab. A rank column is accepted in
// place of weight: rank 1 is the strongest wish.
func parsePreferences(raw [][]string) ([]rota.Preference, error) {
	t, err := newTable(PreferencesTab, raw, preferenceColumns, "employee_id", "shift")
	if err != nil {
		return nil, err
	}
	ranked := !t.has("weight")
	if ranked && !t.has("rank") {
		return nil, errors.NewSourceFormat("tab %q: missing required column %q", PreferencesTab, "weight")
	}

	maxRank := 0
	if ranked {
		for i := range t.rows {
			r, err := t.integer(i, "rank", true)
			if err != nil {
				return nil, err
			}
			if r < 1 {
				return nil, t.errorf(i, "rank", "must be at least 1")
			}
			if r > maxRank {
				maxRank = r
			}
		}
	}

	prefs := make([]rota.Preference, 0, len(t.rows))
	for i := range t.rows {
		p := rota.Preference{
			EmployeeID: t.cell(i, "employee_id"),
			Shift:      t.cell(i, "shift"),
		}
		if ranked {
			r, _ := t.integer(i, "rank", true)
			p.Weight = maxRank - r + 1
		} else {
			if p.Weight, err = t.integer(i, "weight", true); err != nil {
				return nil, err
			}
			if p.Weight > MaxPreferenceWeight || p.Weight < -MaxPreferenceWeight {
				return nil, t.errorf(i, "weight", "%d is outside ±%d", p.Weight, MaxPreferenceWeight)
			}
		}
		if p.Date, err = t.date(i, "date"); err != nil {
			return nil, err
		}
		if p.Weight != 0 {
			prefs = append(prefs, p)
		}
	}
	return prefs, nil
}

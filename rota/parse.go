package rota

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/rota/errors"
)

// dateLayouts are the cell formats seen in tenant spreadsheets.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006年01月02日",
	"2006年1月2日",
}

// ParseDate accepts any of the supported spreadsheet date formats.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised date %q", s)
}

// ParseDateList splits a comma, semicolon or newline separated cell into dates.
func ParseDateList(s string) ([]time.Time, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	var dates []time.Time
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			continue
		}
		d, err := ParseDate(f)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// ParseClock parses HH:MM (or H:MM). "24:00" is accepted as midnight.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, errors.Newf("time %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, errors.Newf("time %q is not HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, errors.Newf("time %q is out of range", s)
	}
	return Clock((h%24)*60 + m), nil
}

// Shift codes used by tenants that only fill in a letter.
var shiftCodes = map[string][2]Clock{
	"D": {8 * 60, 16 * 60},
	"E": {16 * 60, 0},
	"N": {0, 8 * 60},
}

// StandardShiftTimes returns the span for D/E/N codes.
func StandardShiftTimes(code string) (start, end Clock, ok bool) {
	span, ok := shiftCodes[strings.ToUpper(strings.TrimSpace(code))]
	return span[0], span[1], ok
}

// IsOffCode reports whether a cell marks a day off rather than a shift.
func IsOffCode(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF", "休", "-":
		return true
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdays parses "Mon,Wed,Fri" style lists. Full names are accepted.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		key := strings.ToLower(f)
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayNames[key]
		if !ok {
			return nil, errors.Newf("unknown weekday %q", f)
		}
		days = append(days, wd)
	}
	return days, nil
}

// ParseRoleMix parses "nurse:2, senior:1" into minimum counts. A bare role counts as 1.
func ParseRoleMix(s string) (map[string]int, error) {
	mix := map[string]int{}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		role, count, hasCount := strings.Cut(f, ":")
		n := 1
		if hasCount {
			v, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || v < 0 {
				return nil, errors.Newf("role count %q is not a non-negative integer", f)
			}
			n = v
		}
		mix[strings.TrimSpace(role)] += n
	}
	if len(mix) == 0 {
		return nil, nil
	}
	return mix, nil
}

package testing

import (
	"fmt"
	"strconv"
	"time"
)

// HorizonStart is the first day of every fixture schedule (a Monday).
var HorizonStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

// RosterTable returns a Roster tab with employees e1..eN, all holding role.
func RosterTable(employees int, role string) [][]string {
	rows := [][]string{{"employee_id", "name", "role", "contracted_hours", "unavailable"}}
	for i := 1; i <= employees; i++ {
		rows = append(rows, []string{fmt.Sprintf("e%d", i), fmt.Sprintf("Employee %d", i), role, "", ""})
	}
	return rows
}

// ShiftsTable returns a Shifts tab using the standard D/E/N codes, each
// needing headcount staff every day for days days from HorizonStart.
func ShiftsTable(codes []string, headcount, days int) [][]string {
	from := HorizonStart.Format("2006-01-02")
	to := HorizonStart.AddDate(0, 0, days-1).Format("2006-01-02")
	rows := [][]string{{"shift", "start", "end", "headcount", "start_date", "end_date"}}
	for _, code := range codes {
		rows = append(rows, []string{code, "", "", strconv.Itoa(headcount), from, to})
	}
	return rows
}

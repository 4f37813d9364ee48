package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/rota"
)

func inputOf(employees []rota.Employee, shifts []rota.ShiftTemplate, horizon rota.Horizon) rota.Input {
	return rota.Input{Employees: employees, Shifts: shifts, Horizon: horizon}
}

func fingerprintOf(t *testing.T, roster, shifts [][]string) string {
	t.Helper()
	employees, err := parseRoster(roster)
	require.NoError(t, err)
	templates, horizon, err := parseShifts(shifts)
	require.NoError(t, err)
	in := inputOf(employees, templates, horizon)
	return Fingerprint(in)
}

func TestFingerprintIgnoresCosmeticEdits(t *testing.T) {
	shifts := [][]string{
		{"shift", "start", "end", "headcount", "start_date", "end_date"},
		{"D", "08:00", "16:00", "1", "2025-06-02", "2025-06-08"},
	}
	base := fingerprintOf(t, [][]string{
		{"employee_id", "name", "role", "unavailable"},
		{"e1", "Alice", "nurse", "2025-06-03,2025-06-04"},
		{"e2", "Bob", "nurse", ""},
	}, shifts)

	// Reordered columns and rows, an extra column, other date formats, padding.
	cosmetic := fingerprintOf(t, [][]string{
		{"Notes", "Role", "Name", "Unavailable", "Employee ID"},
		{"", "nurse", "Bob", "", "e2"},
		{"night owl", " nurse ", "Alice", "06/04/2025; 2025/06/03", "e1"},
	}, [][]string{
		{"End Date", "Start Date", "Shift", "Start", "End", "Headcount", "Colour"},
		{"2025/06/08", "2025-06-02", "D", "8:00", "16:00", "1.0", "blue"},
	})
	assert.Equal(t, base, cosmetic)

	changed := fingerprintOf(t, [][]string{
		{"employee_id", "name", "role", "unavailable"},
		{"e1", "Alice", "nurse", "2025-06-03"},
		{"e2", "Bob", "nurse", ""},
	}, shifts)
	assert.NotEqual(t, base, changed)
}

func TestFingerprintSeesRowDateRanges(t *testing.T) {
	roster := [][]string{
		{"employee_id", "name", "role"},
		{"e1", "Alice", "nurse"},
	}
	header := []string{"shift", "start", "end", "headcount", "start_date", "end_date"}
	a := fingerprintOf(t, roster, [][]string{
		header,
		{"D", "", "", "1", "2025-06-02", "2025-06-03"},
		{"N", "", "", "1", "2025-06-06", "2025-06-07"},
	})
	// Same horizon, different coverage per row.
	b := fingerprintOf(t, roster, [][]string{
		header,
		{"D", "", "", "1", "2025-06-02", "2025-06-05"},
		{"N", "", "", "1", "2025-06-06", "2025-06-07"},
	})
	assert.NotEqual(t, a, b)
}

package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/rota"
)

func TestParseRoster(t *testing.T) {
	raw := [][]string{
		{},
		{"Role", "Employee ID", "Name", "Notes", "Contracted Hours", "Unavailable"},
		{"nurse", "e1", "Alice", "x", "37", "2025/06/03; 06/05/2025"},
		{"", "", "", "", "", ""},
		{"senior", "e2", " Bob ", "", "8.0", ""},
	}
	employees, err := parseRoster(raw)
	require.NoError(t, err)
	require.Len(t, employees, 2)

	assert.Equal(t, "e1", employees[0].ID)
	assert.Equal(t, "nurse", employees[0].Role)
	assert.Equal(t, 37, employees[0].ContractedHours)
	require.Len(t, employees[0].Unavailable, 2)
	assert.Equal(t, time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), employees[0].Unavailable[1])

	assert.Equal(t, "Bob", employees[1].Name)
	assert.Equal(t, 8, employees[1].ContractedHours)
}

func TestParseShifts(t *testing.T) {
	raw := [][]string{
		{"shift", "start", "end", "headcount", "start_date", "end_date", "roles", "days"},
		{"D", "", "", "2", "2025-06-02", "2025-06-04", "senior:1", ""},
		{"Late", "18:00", "02:00", "1", "2025年06月01日", "", "", "Mon,Tue"},
	}
	shifts, horizon, err := parseShifts(raw)
	require.NoError(t, err)
	require.Len(t, shifts, 2)

	assert.Equal(t, rota.Clock(8*60), shifts[0].Start)
	assert.Equal(t, rota.Clock(16*60), shifts[0].End)
	assert.Equal(t, map[string]int{"senior": 1}, shifts[0].RoleMix)
	assert.Equal(t, rota.Clock(18*60), shifts[1].Start)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, shifts[1].Days)

	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), horizon.Start)
	assert.Equal(t, time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), horizon.End)
}

func TestParseShiftsKeepsRowDates(t *testing.T) {
	raw := [][]string{
		{"shift", "start", "end", "headcount", "start_date", "end_date"},
		{"D", "", "", "1", "2025-06-02", "2025-06-03"},
		{"N", "", "", "1", "2025-06-06", "2025-06-07"},
	}
	shifts, horizon, err := parseShifts(raw)
	require.NoError(t, err)
	require.Len(t, shifts, 2)

	jun := func(d int) time.Time { return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, jun(2), shifts[0].From)
	assert.Equal(t, jun(3), shifts[0].To)
	assert.Equal(t, jun(6), shifts[1].From)
	assert.Equal(t, jun(7), shifts[1].To)
	assert.Equal(t, jun(2), horizon.Start)
	assert.Equal(t, jun(7), horizon.End)

	assert.True(t, shifts[0].AppliesOn(jun(3)))
	assert.False(t, shifts[0].AppliesOn(jun(4)))
	assert.False(t, shifts[1].AppliesOn(jun(5)))
	assert.True(t, shifts[1].AppliesOn(jun(6)))
}

func TestParseShiftsFormatErrors(t *testing.T) {
	header := []string{"shift", "start", "end", "headcount", "start_date", "end_date"}
	tests := []struct {
		name string
		raw  [][]string
		msg  string
	}{
		{"missing column", [][]string{{"shift", "start", "end", "start_date", "end_date"}, {"D", "", "", "2025-06-02", "2025-06-02"}}, `missing required column "headcount"`},
		{"non-integer headcount", [][]string{header, {"D", "", "", "two", "2025-06-02", "2025-06-02"}}, `"two" is not an integer`},
		{"bad time", [][]string{header, {"X", "25:00", "03:00", "1", "2025-06-02", "2025-06-02"}}, "out of range"},
		{"unknown code", [][]string{header, {"X", "", "", "1", "2025-06-02", "2025-06-02"}}, "not a standard shift code"},
		{"bad date", [][]string{header, {"D", "", "", "1", "June 2nd", "2025-06-02"}}, "unrecognised date"},
		{"no horizon", [][]string{header, {"D", "", "", "1", "", ""}}, "start_date and end_date"},
		{"reversed dates", [][]string{header, {"D", "", "", "1", "2025-06-05", "2025-06-02"}}, "before start_date"},
		{"empty tab", [][]string{{"", ""}}, "is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseShifts(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrSourceFormat))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParsePreferences(t *testing.T) {
	t.Run("weighted", func(t *testing.T) {
		prefs, err := parsePreferences([][]string{
			{"employee_id", "shift", "weight", "date"},
			{"e1", "D", "3", ""},
			{"e2", "N", "-2", "2025-06-03"},
			{"e3", "D", "0", ""},
		})
		require.NoError(t, err)
		require.Len(t, prefs, 2, "zero weights are dropped")
		assert.True(t, prefs[0].AnyDate())
		assert.Equal(t, -2, prefs[1].Weight)
		assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), prefs[1].Date)
	})

	t.Run("ranked", func(t *testing.T) {
		prefs, err := parsePreferences([][]string{
			{"employee_id", "shift", "rank"},
			{"e1", "D", "1"},
			{"e1", "E", "3"},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, prefs[0].Weight)
		assert.Equal(t, 1, prefs[1].Weight)
	})

	t.Run("weight out of range", func(t *testing.T) {
		_, err := parsePreferences([][]string{
			{"employee_id", "shift", "weight"},
			{"e1", "D", "-500"},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrSourceFormat))
	})

	t.Run("no weight or rank", func(t *testing.T) {
		_, err := parsePreferences([][]string{{"employee_id", "shift"}, {"e1", "D"}})
		assert.True(t, errors.Is(err, errors.ErrSourceFormat))
	})
}

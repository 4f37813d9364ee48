package rota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-03-07", "2025/03/07", "03/07/2025", "2025年03月07日", "2025年3月7日", "  2025-03-07 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDate("7th March")
	assert.Error(t, err)
}

func TestParseDateList(t *testing.T) {
	dates, err := ParseDateList("2025-03-07; 2025/03/09,\n")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, 9, dates[1].Day())

	_, err = ParseDateList("2025-03-07, soon")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(510), c)
	assert.Equal(t, "08:30", c.String())

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(0), c)

	for _, bad := range []string{"8", "25:00", "08:60", "ab:cd", "24:30"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestStandardShiftTimes(t *testing.T) {
	start, end, ok := StandardShiftTimes("e")
	require.True(t, ok)
	assert.Equal(t, "16:00", start.String())
	assert.Equal(t, "00:00", end.String())

	_, _, ok = StandardShiftTimes("X")
	assert.False(t, ok)
	assert.True(t, IsOffCode("off"))
	assert.False(t, IsOffCode("D"))
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("Mon, wednesday;Fri")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, days)

	_, err = ParseWeekdays("Funday")
	assert.Error(t, err)
}

func TestParseRoleMix(t *testing.T) {
	mix, err := ParseRoleMix("nurse:2, senior")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"nurse": 2, "senior": 1}, mix)

	mix, err = ParseRoleMix("")
	require.NoError(t, err)
	assert.Nil(t, mix)

	_, err = ParseRoleMix("nurse:two")
	assert.Error(t, err)
}

func TestShiftTemplate(t *testing.T) {
	night := ShiftTemplate{Name: "E", Start: 22 * 60, End: 6 * 60, Headcount: 3, RoleMix: map[string]int{"nurse": 2}}
	assert.Equal(t, 8*60, night.DurationMinutes())
	assert.True(t, night.AcceptsRole("nurse"))
	assert.True(t, night.AcceptsRole("porter"), "one seat is unreserved")

	night.Headcount = 2
	assert.False(t, night.AcceptsRole("porter"))

	weekday := ShiftTemplate{Days: []time.Weekday{time.Monday}}
	assert.True(t, weekday.AppliesOn(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, weekday.AppliesOn(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))
}

func TestHorizonDays(t *testing.T) {
	h := Horizon{Start: time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 3, h.Len())

	inverted := Horizon{Start: h.End, End: h.Start}
	assert.Equal(t, 0, inverted.Len())
}

func TestEmployeeAvailability(t *testing.T) {
	off := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	e := Employee{ID: "e1", Unavailable: []time.Time{off}}
	assert.False(t, e.IsAvailable(off.Add(9*time.Hour)))
	assert.True(t, e.IsAvailable(off.AddDate(0, 0, 1)))
}

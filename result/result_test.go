package result

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/solver"
)

var day0 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func input(employees, headcount, days int) rota.Input {
	in := rota.Input{
		Shifts:  []rota.ShiftTemplate{{Name: "D", Start: 8 * 60, End: 16 * 60, Headcount: headcount}},
		Horizon: rota.Horizon{Start: day0, End: day0.AddDate(0, 0, days-1)},
		Rules:   rota.Rules{MinRestHours: 11, MaxConsecutiveDays: 6, PreferenceWeight: 10, FairnessWeight: 5},
	}
	for i := 0; i < employees; i++ {
		in.Employees = append(in.Employees, rota.Employee{
			ID: fmt.Sprintf("e%d", i+1), Name: fmt.Sprintf("Employee %d", i+1), Role: "nurse",
		})
	}
	return in
}

func run(t *testing.T, in rota.Input) Result {
	t.Helper()
	m, err := solver.Build(in)
	require.NoError(t, err)
	return Materialize(in, m, solver.Solve(m, solver.Options{Seed: 1}))
}

func TestMaterializeFeasible(t *testing.T) {
	res := run(t, input(5, 2, 3))

	require.True(t, res.Feasible())
	assert.Len(t, res.Records, 6)
	assert.Equal(t, 6, res.Summary.TotalSlots)

	// Each required slot appears once per headcount unit.
	perDay := map[string]int{}
	for i, r := range res.Records {
		perDay[r.Date.Format(rota.DateLayout)]++
		assert.Equal(t, "08:00", r.Start)
		assert.Equal(t, "16:00", r.End)
		if i > 0 {
			assert.False(t, r.Date.Before(res.Records[i-1].Date), "records ordered by date")
		}
	}
	assert.Equal(t, map[string]int{"2025-06-02": 2, "2025-06-03": 2, "2025-06-04": 2}, perDay)

	require.Len(t, res.Summary.Coverage, 3)
	for _, c := range res.Summary.Coverage {
		assert.Equal(t, c.Required, c.Assigned)
	}

	require.Len(t, res.Summary.Workload, 5)
	totalShifts := 0
	for _, w := range res.Summary.Workload {
		totalShifts += w.Shifts
		assert.Equal(t, float64(w.Shifts*8), w.Hours)
	}
	assert.Equal(t, 6, totalShifts)
}

func TestMaterializeInfeasibleIsEmpty(t *testing.T) {
	res := run(t, input(5, 6, 3))

	assert.False(t, res.Feasible())
	assert.Equal(t, solver.StatusInfeasible, res.Summary.Verdict)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Summary.Coverage)
	assert.Empty(t, res.Summary.Workload)
	assert.NotEmpty(t, res.Summary.Reason)
}

func TestUnmetPreferences(t *testing.T) {
	records := []Record{
		{EmployeeID: "e1", Date: day0, Shift: "D"},
		{EmployeeID: "e2", Date: day0, Shift: "N"},
	}
	days := []time.Time{day0, day0.AddDate(0, 0, 1)}
	prefs := []rota.Preference{
		{EmployeeID: "e1", Shift: "D", Weight: -1},                              // avoided but worked: unmet
		{EmployeeID: "e1", Shift: "D", Date: day0, Weight: 2},                   // wanted and worked: met
		{EmployeeID: "e2", Shift: "D", Weight: 3},                               // wanted days, worked night: unmet
		{EmployeeID: "e2", Shift: "D", Date: day0.AddDate(0, 0, 1), Weight: 1},  // wanted, not worked: unmet
		{EmployeeID: "e3", Shift: "N", Weight: -2},                              // avoided, not worked: met
		{EmployeeID: "e3", Shift: "N", Date: day0.AddDate(0, 0, 30), Weight: 2}, // outside horizon
		{EmployeeID: "e3", Shift: "D", Weight: 0},
	}
	assert.Equal(t, 3, unmetPreferences(prefs, records, days))
}

func TestTables(t *testing.T) {
	res := run(t, input(2, 1, 2))

	rows := res.Table()
	require.Len(t, rows, 3)
	assert.Equal(t, AssignmentHeader, rows[0])
	assert.Equal(t, "2025-06-02", rows[1][0])

	summary := res.Summary.Table()
	assert.Equal(t, []string{"verdict", "OPTIMAL"}, summary[0])
	assert.Contains(t, summary, []string{"date", "shift", "required", "assigned"})
	assert.Contains(t, summary, []string{"2025-06-03", "D", "1", "1"})
	assert.Contains(t, summary, []string{"e1", "Employee 1", "1", "8.0"})
}

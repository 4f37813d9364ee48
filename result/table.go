package result

import (
	"fmt"
	"strconv"

	"github.com/teranos/rota/rota"
)

// AssignmentHeader is the first row of the published assignment tab.
var AssignmentHeader = []string{"date", "shift", "start", "end", "employee_id", "name", "role"}

// Table renders the records as the assignment tab, header first.
func (r Result) Table() [][]string {
	rows := [][]string{append([]string(nil), AssignmentHeader...)}
	for _, rec := range r.Records {
		rows = append(rows, []string{
			rec.Date.Format(rota.DateLayout),
			rec.Shift,
			rec.Start,
			rec.End,
			rec.EmployeeID,
			rec.EmployeeName,
			rec.Role,
		})
	}
	return rows
}

// Table renders the summary block: verdict lines, then coverage, then workload.
func (s Summary) Table() [][]string {
	rows := [][]string{
		{"verdict", string(s.Verdict)},
		{"objective", strconv.FormatFloat(s.Objective, 'f', 2, 64)},
		{"total_slots", strconv.Itoa(s.TotalSlots)},
		{"unmet_preferences", strconv.Itoa(s.UnmetPreferences)},
	}
	if s.Reason != "" {
		rows = append(rows, []string{"reason", s.Reason})
	}

	rows = append(rows, []string{}, []string{"date", "shift", "required", "assigned"})
	for _, c := range s.Coverage {
		rows = append(rows, []string{
			c.Date.Format(rota.DateLayout), c.Shift, strconv.Itoa(c.Required), strconv.Itoa(c.Assigned),
		})
	}

	rows = append(rows, []string{}, []string{"employee_id", "name", "shifts", "hours"})
	for _, w := range s.Workload {
		rows = append(rows, []string{w.EmployeeID, w.Name, strconv.Itoa(w.Shifts), fmt.Sprintf("%.1f", w.Hours)})
	}
	return rows
}

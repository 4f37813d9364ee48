// Package result turns a solver assignment into the records and summary that
// are published to the tenant's spreadsheet and cached for consumers.
package result

import (
	"sort"
	"time"

	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/solver"
)

// Record is one employee working one shift on one date.
type Record struct {
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Date         time.Time `json:"date"`
	Shift        string    `json:"shift"`
	Role         string    `json:"role"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
}

// SlotCoverage compares required and assigned headcount for one shift on one date.
type SlotCoverage struct {
	Date     time.Time `json:"date"`
	Shift    string    `json:"shift"`
	Required int       `json:"required"`
	Assigned int       `json:"assigned"`
}

// EmployeeLoad totals one employee's assignments over the horizon.
type EmployeeLoad struct {
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name"`
	Shifts     int     `json:"shifts"`
	Hours      float64 `json:"hours"`
}

// Summary describes a run's outcome.
type Summary struct {
	Verdict          solver.Status  `json:"verdict"`
	Reason           string         `json:"reason,omitempty"`
	Objective        float64        `json:"objective"`
	Nodes            int64          `json:"nodes"`
	TotalSlots       int            `json:"total_slots"`
	UnmetPreferences int            `json:"unmet_preferences"`
	Coverage         []SlotCoverage `json:"coverage,omitempty"`
	Workload         []EmployeeLoad `json:"workload,omitempty"`
}

// Result is the materialized output of one schedule run.
type Result struct {
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

// Feasible reports whether the result carries a schedule.
func (r Result) Feasible() bool {
	return r.Summary.Verdict == solver.StatusOptimal || r.Summary.Verdict == solver.StatusFeasible
}

// Materialize converts a solution into records ordered by date, shift and
// roster position. Infeasible and timed-out solutions yield no records,
// coverage or workload; only the verdict and reason are kept.
func Materialize(in rota.Input, m *solver.Model, sol solver.Solution) Result {
	res := Result{Summary: Summary{
		Verdict:    sol.Status,
		Reason:     sol.Reason,
		Nodes:      sol.Nodes,
		TotalSlots: m.Slots(),
	}}
	if !sol.Feasible() {
		return res
	}
	res.Summary.Objective = sol.Objective

	assigned := make([][]int, len(m.Groups))
	for _, a := range sol.Assignments {
		assigned[a.Group] = append(assigned[a.Group], a.Employee)
	}

	load := make([]EmployeeLoad, len(m.Employees))
	for i, e := range m.Employees {
		load[i] = EmployeeLoad{EmployeeID: e.ID, Name: e.Name}
	}

	for gi, g := range m.Groups {
		shift := m.Shifts[g.Shift]
		day := m.Days[g.Day]
		staff := append([]int(nil), assigned[gi]...)
		sort.Ints(staff)
		for _, e := range staff {
			emp := m.Employees[e]
			res.Records = append(res.Records, Record{
				EmployeeID:   emp.ID,
				EmployeeName: emp.Name,
				Date:         day,
				Shift:        shift.Name,
				Role:         emp.Role,
				Start:        shift.Start.String(),
				End:          shift.End.String(),
			})
			load[e].Shifts++
			load[e].Hours += float64(g.Duration()) / 60
		}
		res.Summary.Coverage = append(res.Summary.Coverage, SlotCoverage{
			Date:     day,
			Shift:    shift.Name,
			Required: g.Headcount,
			Assigned: len(staff),
		})
	}

	res.Summary.Workload = load
	res.Summary.UnmetPreferences = unmetPreferences(in.Preferences, res.Records, m.Days)
	return res
}

// unmetPreferences counts preference rows the schedule does not satisfy.
// Dated preferences outside the horizon are ignored.
func unmetPreferences(prefs []rota.Preference, records []Record, days []time.Time) int {
	type key struct{ emp, date, shift string }
	worked := map[key]bool{}
	shiftsOf := map[string]map[string]bool{}
	for _, r := range records {
		d := r.Date.Format(rota.DateLayout)
		worked[key{r.EmployeeID, d, r.Shift}] = true
		if shiftsOf[r.EmployeeID] == nil {
			shiftsOf[r.EmployeeID] = map[string]bool{}
		}
		shiftsOf[r.EmployeeID][r.Shift] = true
	}
	inHorizon := map[string]bool{}
	for _, d := range days {
		inHorizon[d.Format(rota.DateLayout)] = true
	}

	unmet := 0
	for _, p := range prefs {
		if p.Weight == 0 {
			continue
		}
		if !p.AnyDate() {
			d := p.Date.Format(rota.DateLayout)
			if !inHorizon[d] {
				continue
			}
			got := worked[key{p.EmployeeID, d, p.Shift}]
			if (p.Weight > 0) != got {
				unmet++
			}
			continue
		}
		shifts := shiftsOf[p.EmployeeID]
		if p.Weight < 0 && shifts[p.Shift] {
			unmet++
		}
		if p.Weight > 0 {
			for s := range shifts {
				if s != p.Shift {
					unmet++
					break
				}
			}
		}
	}
	return unmet
}

package solver

import (
	"fmt"
	"sort"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/rota"
)

// Build validates input and produces a constraint model.
//
// Structural problems fail with an error marked errors.ErrInvalidInput:
//   - an empty roster, horizon or shift list
//   - ambiguous identifiers
//   - a role mix no roster could ever satisfy
//
// Shortfalls that depend on who is available on a given date do not fail.
// They set Model.Infeasible instead, and Solve reports INFEASIBLE for them.
func Build(in rota.Input) (*Model, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	m := &Model{
		Days:      in.Horizon.Days(),
		Employees: in.Employees,
		Shifts:    in.Shifts,
		Rules:     in.Rules,
	}

	for d, day := range m.Days {
		for s, shift := range m.Shifts {
			if !shift.AppliesOn(day) {
				continue
			}
			g := Group{
				Day:       d,
				Shift:     s,
				Headcount: shift.Headcount,
				Start:     d*minutesPerDay + int(shift.Start),
			}
			g.End = g.Start + shift.DurationMinutes()
			for _, role := range shift.Roles() {
				if n := shift.RoleMix[role]; n > 0 {
					g.Needs = append(g.Needs, RoleNeed{Role: role, Min: n})
				}
			}
			for e, emp := range m.Employees {
				if emp.IsAvailable(day) && shift.AcceptsRole(emp.Role) {
					g.Candidates = append(g.Candidates, e)
				}
			}
			g.Costs = make([]int64, len(g.Candidates))
			m.Groups = append(m.Groups, g)
			m.TotalMinutes += g.Headcount * g.Duration()
		}
	}

	m.Infeasible = precheck(m)
	m.MaxMinutes = hourCaps(m)
	m.Target = fairShares(m)
	applyPreferences(m, in.Preferences)

	return m, nil
}

func validate(in rota.Input) error {
	if len(in.Employees) == 0 {
		return errors.NewInvalidInput("roster is empty")
	}
	if in.Horizon.Len() == 0 {
		return errors.NewInvalidInput("horizon %s..%s is empty",
			in.Horizon.Start.Format(rota.DateLayout), in.Horizon.End.Format(rota.DateLayout))
	}
	if len(in.Shifts) == 0 {
		return errors.NewInvalidInput("no shift templates")
	}

	roles := map[string]bool{}
	ids := map[string]bool{}
	for i, e := range in.Employees {
		if e.ID == "" {
			return errors.NewInvalidInput("roster row %d has no employee id", i+1)
		}
		if ids[e.ID] {
			return errors.NewInvalidInput("employee id %q appears more than once", e.ID)
		}
		if e.ContractedHours < 0 {
			return errors.NewInvalidInput("employee %q has negative contracted hours", e.ID)
		}
		ids[e.ID] = true
		roles[e.Role] = true
	}

	shifts := map[string]bool{}
	for _, s := range in.Shifts {
		if s.Name == "" {
			return errors.NewInvalidInput("shift template without a name")
		}
		if shifts[s.Name] {
			return errors.NewInvalidInput("shift %q is defined more than once", s.Name)
		}
		shifts[s.Name] = true
		if s.Headcount <= 0 {
			return errors.NewInvalidInput("shift %q requires headcount %d", s.Name, s.Headcount)
		}
		if s.Start < 0 || s.Start >= minutesPerDay || s.End < 0 || s.End >= minutesPerDay {
			return errors.NewInvalidInput("shift %q has an invalid time span", s.Name)
		}
		reserved := 0
		for _, role := range s.Roles() {
			n := s.RoleMix[role]
			if n < 0 {
				return errors.NewInvalidInput("shift %q has a negative minimum for role %q", s.Name, role)
			}
			if n > 0 && !roles[role] {
				return errors.NewInvalidInput("shift %q requires role %q but no employee holds it", s.Name, role)
			}
			reserved += n
		}
		if reserved > s.Headcount {
			return errors.NewInvalidInput("shift %q role mix needs %d staff but headcount is %d",
				s.Name, reserved, s.Headcount)
		}
	}

	for _, p := range in.Preferences {
		if !ids[p.EmployeeID] {
			return errors.NewInvalidInput("preference names unknown employee %q", p.EmployeeID)
		}
		if !shifts[p.Shift] {
			return errors.NewInvalidInput("preference for %q names unknown shift %q", p.EmployeeID, p.Shift)
		}
	}
	return nil
}

// precheck finds shortfalls that make every assignment impossible without searching.
func precheck(m *Model) string {
	perDay := make([]int, len(m.Days))
	for _, g := range m.Groups {
		day := m.Days[g.Day].Format(rota.DateLayout)
		shift := m.Shifts[g.Shift].Name
		if len(g.Candidates) < g.Headcount {
			return fmt.Sprintf("shift %s on %s needs %d staff but only %d are eligible",
				shift, day, g.Headcount, len(g.Candidates))
		}
		for _, need := range g.Needs {
			have := 0
			for _, e := range g.Candidates {
				if m.Employees[e].Role == need.Role {
					have++
				}
			}
			if have < need.Min {
				return fmt.Sprintf("shift %s on %s needs %d %s but only %d are eligible",
					shift, day, need.Min, need.Role, have)
			}
		}
		perDay[g.Day] += g.Headcount
	}
	for d, day := range m.Days {
		available := 0
		for _, e := range m.Employees {
			if e.IsAvailable(day) {
				available++
			}
		}
		if perDay[d] > available {
			return fmt.Sprintf("%s needs %d staff across shifts but only %d are available",
				day.Format(rota.DateLayout), perDay[d], available)
		}
	}
	return ""
}

// hourCaps converts weekly contracted hours into a cap over the horizon.
func hourCaps(m *Model) []int {
	weeks := (len(m.Days) + 6) / 7
	caps := make([]int, len(m.Employees))
	for i, e := range m.Employees {
		caps[i] = e.ContractedHours * 60 * weeks
	}
	return caps
}

// fairShares splits the required minutes in proportion to contracted hours.
// Employees without contracted hours weigh as much as the average contract.
func fairShares(m *Model) []int {
	weights := make([]int, len(m.Employees))
	sum, n := 0, 0
	for _, e := range m.Employees {
		if e.ContractedHours > 0 {
			sum += e.ContractedHours
			n++
		}
	}
	avg := 1
	if n > 0 {
		avg = (sum + n - 1) / n
	}
	total := 0
	for i, e := range m.Employees {
		weights[i] = e.ContractedHours
		if weights[i] == 0 {
			weights[i] = avg
		}
		total += weights[i]
	}
	targets := make([]int, len(m.Employees))
	for i := range targets {
		targets[i] = m.TotalMinutes * weights[i] / total
	}
	return targets
}

// applyPreferences folds preferences into per-candidate costs. A dated want
// costs its weight unless granted, which is a constant minus the weight on
// the wanted variable. An undated want costs its weight on every other shift.
func applyPreferences(m *Model, prefs []rota.Preference) {
	empIndex := make(map[string]int, len(m.Employees))
	for i, e := range m.Employees {
		empIndex[e.ID] = i
	}
	dayIndex := make(map[string]int, len(m.Days))
	for i, d := range m.Days {
		dayIndex[d.Format(rota.DateLayout)] = i
	}

	for _, p := range prefs {
		e := empIndex[p.EmployeeID]
		day := -1
		if !p.AnyDate() {
			d, ok := dayIndex[p.Date.Format(rota.DateLayout)]
			if !ok {
				continue
			}
			day = d
		}
		w := int64(p.Weight)
		if w > 0 && day >= 0 {
			m.Constant += w
		}
		for gi := range m.Groups {
			g := &m.Groups[gi]
			if day >= 0 && g.Day != day {
				continue
			}
			pos := candidatePos(g, e)
			if pos < 0 {
				continue
			}
			sameShift := m.Shifts[g.Shift].Name == p.Shift
			switch {
			case w < 0 && sameShift:
				g.Costs[pos] += -w
			case w > 0 && day >= 0 && sameShift:
				g.Costs[pos] -= w
			case w > 0 && day < 0 && !sameShift:
				g.Costs[pos] += w
			}
		}
	}
}

func candidatePos(g *Group, employee int) int {
	i := sort.SearchInts(g.Candidates, employee)
	if i < len(g.Candidates) && g.Candidates[i] == employee {
		return i
	}
	return -1
}

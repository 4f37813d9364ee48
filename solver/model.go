// Package solver turns a roster and its shift requirements into a constraint
// model and searches it for a minimum-penalty assignment.
//
// Build and Solve are pure: no I/O, no logging, no package state. Two builds
// of the same input yield identical models, and two solves of the same model
// with the same options yield identical solutions unless the wall-clock
// budget cuts the search short.
package solver

import (
	"time"

	"github.com/teranos/rota/rota"
)

const minutesPerDay = 24 * 60

// RoleNeed is a minimum count of one role within a slot group.
type RoleNeed struct {
	Role string
	Min  int
}

// Group is one (day, shift) slot requiring Headcount distinct employees.
type Group struct {
	Day       int // index into Model.Days
	Shift     int // index into Model.Shifts
	Headcount int
	Needs     []RoleNeed // sorted by role

	// Candidates are employee indices eligible for this slot, in roster order.
	// Costs[i] is the preference cost of assigning Candidates[i].
	Candidates []int
	Costs      []int64

	// Absolute minutes from the first horizon day.
	Start, End int
}

// Duration is the shift length in minutes.
func (g Group) Duration() int {
	return g.End - g.Start
}

// Model is the solver-ready form of one schedule run. It lives for one run.
type Model struct {
	Days      []time.Time
	Employees []rota.Employee
	Shifts    []rota.ShiftTemplate
	Groups    []Group
	Rules     rota.Rules

	// MaxMinutes caps each employee's assigned minutes; 0 means uncapped.
	MaxMinutes []int
	// Target is each employee's fair share of the required minutes.
	Target []int
	// Constant is the preference cost incurred when nothing is assigned.
	Constant int64
	// TotalMinutes is the sum of required minutes over all groups.
	TotalMinutes int

	// Infeasible explains why the pre-check proved that no assignment exists.
	Infeasible string
}

// NumVars is the number of (employee, day, shift) decision variables.
func (m *Model) NumVars() int {
	n := 0
	for _, g := range m.Groups {
		n += len(g.Candidates)
	}
	return n
}

// Slots is the number of headcount units to fill.
func (m *Model) Slots() int {
	n := 0
	for _, g := range m.Groups {
		n += g.Headcount
	}
	return n
}

// Assignment places one employee in one group.
type Assignment struct {
	Group    int
	Employee int
}

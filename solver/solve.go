package solver

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Status is the optimizer's verdict.
type Status string

const (
	StatusOptimal    Status = "OPTIMAL"
	StatusFeasible   Status = "FEASIBLE"
	StatusInfeasible Status = "INFEASIBLE"
	StatusTimeout    Status = "TIMEOUT" // cut off before any valid assignment was found
)

// DefaultNodeLimit bounds the search when Options.NodeLimit is zero.
const DefaultNodeLimit = 2_000_000

// Options bound one solve.
type Options struct {
	TimeBudget time.Duration // 0 = no wall-clock limit
	Seed       int64
	NodeLimit  int64
}

// Solution is the result of Solve. Assignments is nil unless Feasible.
type Solution struct {
	Status      Status
	Assignments []Assignment // ordered by group, then employee
	Cost        int64        // objective in weighted minutes
	Objective   float64      // Cost / 60
	Nodes       int64
	Reason      string // why the model is infeasible, when known
}

// Feasible reports whether the solution carries a valid assignment.
func (s Solution) Feasible() bool {
	return s.Status == StatusOptimal || s.Status == StatusFeasible
}

// Solve searches the model by depth-first branch and bound.
//
// Slot units are filled in group order. Within a group, candidates are tried
// in a per-visit order and each unit only considers candidates after the
// previous unit's choice, so each subset of a group is enumerated once.
// Exhausting the tree proves optimality or infeasibility. Hitting the node
// limit or the time budget returns the incumbent as FEASIBLE, or TIMEOUT
// when there is none.
func Solve(m *Model, opts Options) Solution {
	if m.Infeasible != "" {
		return Solution{Status: StatusInfeasible, Reason: m.Infeasible}
	}

	s := newSearch(m, opts)
	s.fill(0, 0, 0)

	sol := Solution{Nodes: s.nodes}
	switch {
	case s.found && s.cut:
		sol.Status = StatusFeasible
	case s.found:
		sol.Status = StatusOptimal
	case s.cut:
		sol.Status = StatusTimeout
		return sol
	default:
		sol.Status = StatusInfeasible
		sol.Reason = "no assignment satisfies every hard constraint"
		return sol
	}

	sol.Assignments = s.best
	sort.Slice(sol.Assignments, func(i, j int) bool {
		a, b := sol.Assignments[i], sol.Assignments[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Employee < b.Employee
	})
	sol.Cost = s.bestCost
	sol.Objective = float64(s.bestCost) / 60
	return sol
}

type search struct {
	m *Model

	prefScale int64 // preference weight per penalty point, in minutes
	fairScale int64
	restMin   int
	maxStreak int

	rank []int // seeded tie-break per employee

	minutes []int
	maxEnd  []int
	lastDay []int
	streak  []int
	have    [][]int // per group, count per RoleNeed
	orders  [][]int // per group, candidate positions in try order

	prefCost int64
	over     int64 // Σ max(0, minutes - target)
	delta    int64 // TotalMinutes - Σ target
	minCost  []int64
	suffix   []int64 // cheapest possible preference cost of groups g..end

	chosen   []Assignment
	best     []Assignment
	bestCost int64
	found    bool

	nodes     int64
	nodeLimit int64
	deadline  time.Time
	cut       bool
}

func newSearch(m *Model, opts Options) *search {
	n := len(m.Employees)
	s := &search{
		m:         m,
		prefScale: int64(m.Rules.PreferenceWeight) * 60,
		fairScale: int64(m.Rules.FairnessWeight),
		restMin:   m.Rules.MinRestHours * 60,
		maxStreak: m.Rules.MaxConsecutiveDays,
		rank:      rand.New(rand.NewSource(opts.Seed)).Perm(n),
		minutes:   make([]int, n),
		maxEnd:    make([]int, n),
		lastDay:   make([]int, n),
		streak:    make([]int, n),
		have:      make([][]int, len(m.Groups)),
		orders:    make([][]int, len(m.Groups)),
		minCost:   make([]int64, len(m.Groups)),
		suffix:    make([]int64, len(m.Groups)+1),
		nodeLimit: opts.NodeLimit,
	}
	if s.nodeLimit <= 0 {
		s.nodeLimit = DefaultNodeLimit
	}
	if opts.TimeBudget > 0 {
		s.deadline = time.Now().Add(opts.TimeBudget)
	}
	for e := range s.maxEnd {
		s.maxEnd[e] = math.MinInt32
		s.lastDay[e] = -2
	}

	targets := 0
	for _, t := range m.Target {
		targets += t
	}
	s.delta = int64(m.TotalMinutes - targets)

	for gi := len(m.Groups) - 1; gi >= 0; gi-- {
		g := m.Groups[gi]
		s.have[gi] = make([]int, len(g.Needs))
		costs := append([]int64(nil), g.Costs...)
		sort.Slice(costs, func(i, j int) bool { return costs[i] < costs[j] })
		var k int64
		for i := 0; i < g.Headcount && i < len(costs); i++ {
			k += costs[i]
		}
		if len(costs) > 0 {
			s.minCost[gi] = costs[0]
		}
		s.suffix[gi] = s.suffix[gi+1] + k
	}
	return s
}

func (s *search) fill(gi, filled, from int) {
	if gi == len(s.m.Groups) {
		s.record()
		return
	}
	g := &s.m.Groups[gi]
	if filled == g.Headcount {
		s.fill(gi+1, 0, 0)
		return
	}
	if filled == 0 {
		s.orders[gi] = s.order(gi)
	}
	order := s.orders[gi]
	remaining := g.Headcount - filled

	for p := from; p <= len(order)-remaining; p++ {
		ci := order[p]
		e := g.Candidates[ci]
		if !s.allowed(g, e) || !s.rolesReachable(gi, e, remaining-1) {
			continue
		}

		s.nodes++
		if s.nodes >= s.nodeLimit || (s.nodes&1023 == 0 && !s.deadline.IsZero() && time.Now().After(s.deadline)) {
			s.cut = true
			return
		}

		u := s.assign(gi, ci, e)
		if !s.found || s.bound(gi, remaining-1) < s.bestCost {
			s.fill(gi, filled+1, p+1)
		}
		s.undo(gi, e, u)
		if s.cut {
			return
		}
	}
}

// order ranks the group's candidates by marginal cost, then by seeded rank.
func (s *search) order(gi int) []int {
	g := &s.m.Groups[gi]
	dur := g.Duration()
	keys := make([]int64, len(g.Candidates))
	order := make([]int, len(g.Candidates))
	for ci, e := range g.Candidates {
		order[ci] = ci
		before := abs(s.minutes[e] - s.m.Target[e])
		after := abs(s.minutes[e] + dur - s.m.Target[e])
		keys[ci] = s.prefScale*g.Costs[ci] + s.fairScale*int64(after-before)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if keys[a] != keys[b] {
			return keys[a] < keys[b]
		}
		return s.rank[g.Candidates[a]] < s.rank[g.Candidates[b]]
	})
	return order
}

// allowed checks the hard constraints that involve other groups.
func (s *search) allowed(g *Group, e int) bool {
	if s.lastDay[e] == g.Day {
		return false
	}
	if g.Start-s.maxEnd[e] < s.restMin {
		return false
	}
	if limit := s.m.MaxMinutes[e]; limit > 0 && s.minutes[e]+g.Duration() > limit {
		return false
	}
	if s.maxStreak > 0 && s.nextStreak(g, e) > s.maxStreak {
		return false
	}
	return true
}

func (s *search) nextStreak(g *Group, e int) int {
	if s.lastDay[e] == g.Day-1 {
		return s.streak[e] + 1
	}
	return 1
}

// rolesReachable reports whether, after placing e, the remaining units can
// still cover every role minimum.
func (s *search) rolesReachable(gi, e, remainingAfter int) bool {
	g := &s.m.Groups[gi]
	if len(g.Needs) == 0 {
		return true
	}
	role := s.m.Employees[e].Role
	deficit := 0
	for i, need := range g.Needs {
		have := s.have[gi][i]
		if need.Role == role {
			have++
		}
		if have < need.Min {
			deficit += need.Min - have
		}
	}
	return deficit <= remainingAfter
}

type undoState struct {
	minutes, maxEnd, lastDay, streak int
	over, prefCost                   int64
}

func (s *search) assign(gi, ci, e int) undoState {
	g := &s.m.Groups[gi]
	u := undoState{
		minutes: s.minutes[e], maxEnd: s.maxEnd[e], lastDay: s.lastDay[e], streak: s.streak[e],
		over: s.over, prefCost: s.prefCost,
	}

	s.streak[e] = s.nextStreak(g, e)
	s.lastDay[e] = g.Day
	if g.End > s.maxEnd[e] {
		s.maxEnd[e] = g.End
	}
	target := s.m.Target[e]
	s.over -= int64(max(0, s.minutes[e]-target))
	s.minutes[e] += g.Duration()
	s.over += int64(max(0, s.minutes[e]-target))
	s.prefCost += g.Costs[ci]

	role := s.m.Employees[e].Role
	for i, need := range g.Needs {
		if need.Role == role {
			s.have[gi][i]++
		}
	}
	s.chosen = append(s.chosen, Assignment{Group: gi, Employee: e})
	return u
}

func (s *search) undo(gi, e int, u undoState) {
	g := &s.m.Groups[gi]
	s.minutes[e], s.maxEnd[e], s.lastDay[e], s.streak[e] = u.minutes, u.maxEnd, u.lastDay, u.streak
	s.over, s.prefCost = u.over, u.prefCost

	role := s.m.Employees[e].Role
	for i, need := range g.Needs {
		if need.Role == role {
			s.have[gi][i]--
		}
	}
	s.chosen = s.chosen[:len(s.chosen)-1]
}

// bound is a lower bound on the cost of any completion of the current partial
// assignment. Minutes already above target can only grow, and because the
// deviations above and below target differ by delta, the total deviation is
// at least 2*over - delta.
func (s *search) bound(gi, remainingInGroup int) int64 {
	pref := s.m.Constant + s.prefCost + int64(remainingInGroup)*s.minCost[gi] + s.suffix[gi+1]
	fair := 2*s.over - s.delta
	if fair < 0 {
		fair = 0
	}
	return s.prefScale*pref + s.fairScale*fair
}

func (s *search) cost() int64 {
	var dev int64
	for e, mins := range s.minutes {
		dev += int64(abs(mins - s.m.Target[e]))
	}
	return s.prefScale*(s.m.Constant+s.prefCost) + s.fairScale*dev
}

func (s *search) record() {
	c := s.cost()
	if s.found && c >= s.bestCost {
		return
	}
	s.found = true
	s.bestCost = c
	s.best = append(s.best[:0], s.chosen...)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

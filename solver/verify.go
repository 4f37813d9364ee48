package solver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/rota"
)

// Verify checks assignments against every hard constraint of the model and
// returns one error listing all violations, or nil.
func (m *Model) Verify(assignments []Assignment) error {
	var violations []string
	addf := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	byGroup := make([][]int, len(m.Groups))
	byEmployee := make([][]int, len(m.Employees))
	for _, a := range assignments {
		if a.Group < 0 || a.Group >= len(m.Groups) || a.Employee < 0 || a.Employee >= len(m.Employees) {
			addf("assignment %+v out of range", a)
			continue
		}
		byGroup[a.Group] = append(byGroup[a.Group], a.Employee)
		byEmployee[a.Employee] = append(byEmployee[a.Employee], a.Group)
	}

	for gi, g := range m.Groups {
		label := m.groupLabel(gi)
		staff := byGroup[gi]
		if len(staff) != g.Headcount {
			addf("%s: %d assigned, %d required", label, len(staff), g.Headcount)
		}
		seen := map[int]bool{}
		roles := map[string]int{}
		for _, e := range staff {
			if seen[e] {
				addf("%s: %s assigned twice", label, m.Employees[e].ID)
			}
			seen[e] = true
			if candidatePos(&m.Groups[gi], e) < 0 {
				addf("%s: %s is not eligible", label, m.Employees[e].ID)
			}
			roles[m.Employees[e].Role]++
		}
		for _, need := range g.Needs {
			if roles[need.Role] < need.Min {
				addf("%s: %d %s, %d required", label, roles[need.Role], need.Role, need.Min)
			}
		}
	}

	rest := m.Rules.MinRestHours * 60
	for e, groups := range byEmployee {
		sort.Slice(groups, func(i, j int) bool { return m.Groups[groups[i]].Start < m.Groups[groups[j]].Start })
		id := m.Employees[e].ID
		total := 0
		streak, lastDay := 0, -2
		maxEnd := -1 << 31
		for _, gi := range groups {
			g := m.Groups[gi]
			if g.Day == lastDay {
				addf("%s works twice on %s", id, m.Days[g.Day].Format(rota.DateLayout))
			}
			if g.Start-maxEnd < rest {
				addf("%s rests less than %dh before %s", id, m.Rules.MinRestHours, m.groupLabel(gi))
			}
			if g.End > maxEnd {
				maxEnd = g.End
			}
			if g.Day == lastDay+1 {
				streak++
			} else if g.Day != lastDay {
				streak = 1
			}
			if m.Rules.MaxConsecutiveDays > 0 && streak > m.Rules.MaxConsecutiveDays {
				addf("%s works more than %d consecutive days", id, m.Rules.MaxConsecutiveDays)
			}
			lastDay = g.Day
			total += g.Duration()
		}
		if limit := m.MaxMinutes[e]; limit > 0 && total > limit {
			addf("%s assigned %d minutes, contract allows %d", id, total, limit)
		}
	}

	if len(violations) > 0 {
		return errors.Newf("%d hard constraint violations: %s", len(violations), strings.Join(violations, "; "))
	}
	return nil
}

func (m *Model) groupLabel(gi int) string {
	g := m.Groups[gi]
	return m.Shifts[g.Shift].Name + "@" + m.Days[g.Day].Format(rota.DateLayout)
}

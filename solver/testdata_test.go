package solver

import (
	"fmt"
	"time"

	"github.com/teranos/rota/rota"
)

var day0 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // a Monday

func defaultRules() rota.Rules {
	return rota.Rules{MinRestHours: 11, MaxConsecutiveDays: 6, PreferenceWeight: 10, FairnessWeight: 5}
}

func staff(n int) []rota.Employee {
	emps := make([]rota.Employee, n)
	for i := range emps {
		emps[i] = rota.Employee{ID: fmt.Sprintf("e%d", i+1), Name: fmt.Sprintf("Employee %d", i+1), Role: "nurse"}
	}
	return emps
}

func horizon(days int) rota.Horizon {
	return rota.Horizon{Start: day0, End: day0.AddDate(0, 0, days-1)}
}

func dayShift(headcount int) rota.ShiftTemplate {
	return rota.ShiftTemplate{Name: "D", Start: 8 * 60, End: 16 * 60, Headcount: headcount}
}

// scenarioInput is the five-employee, two-per-day, three-day roster.
func scenarioInput(headcount int) rota.Input {
	return rota.Input{
		Employees: staff(5),
		Shifts:    []rota.ShiftTemplate{dayShift(headcount)},
		Horizon:   horizon(3),
		Rules:     defaultRules(),
	}
}

package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/rota/rota"
)

// canonical forms hold only what affects the model, in a fixed order.
type canonicalInput struct {
	Start       string                `json:"start"`
	End         string                `json:"end"`
	Employees   []canonicalEmployee   `json:"employees"`
	Shifts      []canonicalShift      `json:"shifts"`
	Preferences []canonicalPreference `json:"preferences"`
}

type canonicalEmployee struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Hours       int      `json:"hours"`
	Unavailable []string `json:"unavailable"`
}

type canonicalShift struct {
	Name      string   `json:"name"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	Headcount int      `json:"headcount"`
	Roles     []string `json:"roles"` // role=count, sorted
	Days      []int    `json:"days"`
	From      string   `json:"from"`
	To        string   `json:"to"`
}

type canonicalPreference struct {
	EmployeeID string `json:"employee_id"`
	Shift      string `json:"shift"`
	Date       string `json:"date"`
	Weight     int    `json:"weight"`
}

// Fingerprint hashes the normalized input. Row order, column order, extra
// columns and cell formatting do not change it; shift order does, because
// it drives variable ordering in the model.
func Fingerprint(in rota.Input) string {
	c := canonicalInput{
		Start: dateKey(in.Horizon.Start),
		End:   dateKey(in.Horizon.End),
	}

	for _, e := range in.Employees {
		ce := canonicalEmployee{
			ID:    strings.TrimSpace(e.ID),
			Name:  strings.TrimSpace(e.Name),
			Role:  strings.TrimSpace(e.Role),
			Hours: e.ContractedHours,
		}
		for _, d := range e.Unavailable {
			ce.Unavailable = append(ce.Unavailable, dateKey(d))
		}
		sort.Strings(ce.Unavailable)
		c.Employees = append(c.Employees, ce)
	}
	sort.SliceStable(c.Employees, func(i, j int) bool { return c.Employees[i].ID < c.Employees[j].ID })

	for _, s := range in.Shifts {
		cs := canonicalShift{
			Name:      strings.TrimSpace(s.Name),
			Start:     int(s.Start),
			End:       int(s.End),
			Headcount: s.Headcount,
			From:      dateKey(s.From),
			To:        dateKey(s.To),
		}
		for _, r := range s.Roles() {
			cs.Roles = append(cs.Roles, r+"="+strconv.Itoa(s.RoleMix[r]))
		}
		for _, d := range s.Days {
			cs.Days = append(cs.Days, int(d))
		}
		sort.Ints(cs.Days)
		c.Shifts = append(c.Shifts, cs)
	}

	for _, p := range in.Preferences {
		c.Preferences = append(c.Preferences, canonicalPreference{
			EmployeeID: strings.TrimSpace(p.EmployeeID),
			Shift:      strings.TrimSpace(p.Shift),
			Date:       dateKey(p.Date),
			Weight:     p.Weight,
		})
	}
	sort.Slice(c.Preferences, func(i, j int) bool {
		a, b := c.Preferences[i], c.Preferences[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if a.Shift != b.Shift {
			return a.Shift < b.Shift
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Weight < b.Weight
	})

	// Marshal of plain structs, strings and ints cannot fail.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(rota.DateLayout)
}

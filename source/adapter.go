// Package source reads schedule input from tenant workbooks and writes
// results back. Workbooks are addressed by locator (gsheet://, file://,
// mem://) and every backend speaks the same [][]string table contract.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/result"
	"github.com/teranos/rota/rota"
)

// Snapshot is one fetch of a schedule's input.
type Snapshot struct {
	Input       rota.Input `json:"input"`
	Fingerprint string     `json:"fingerprint"`
	Rows        int        `json:"rows"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Employees is the roster size in the snapshot.
func (s *Snapshot) Employees() int {
	return len(s.Input.Employees)
}

// Adapter is the pipeline's view of the external data source.
type Adapter interface {
	Fetch(ctx context.Context, def *rota.Definition) (*Snapshot, error)
	// Publish replaces the results tabs; calling it twice with the same
	// result leaves the workbook in the same state.
	Publish(ctx context.Context, def *rota.Definition, res result.Result) error
}

// TableAdapter implements Adapter over any Workbook.
type TableAdapter struct {
	books  Workbook
	rules  rota.Rules
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewTableAdapter creates an adapter. rules are attached to every fetched
// input; they come from configuration, not from the workbook.
func NewTableAdapter(books Workbook, rules rota.Rules, log *zap.SugaredLogger) *TableAdapter {
	return &TableAdapter{
		books:  books,
		rules:  rules,
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

// Fetch reads the Roster and Shifts tabs of the params workbook and, when the
// definition has one, the Preferences tab of the prefs workbook.
func (a *TableAdapter) Fetch(ctx context.Context, def *rota.Definition) (*Snapshot, error) {
	params, err := ParseLocator(def.ParamsLocator)
	if err != nil {
		return nil, err
	}

	rosterRows, err := a.books.ReadTable(ctx, params.WithTab(RosterTab))
	if err != nil {
		return nil, errors.Wrapf(err, "read roster for %s", def.ID)
	}
	shiftRows, err := a.books.ReadTable(ctx, params.WithTab(ShiftsTab))
	if err != nil {
		return nil, errors.Wrapf(err, "read shifts for %s", def.ID)
	}

	var in rota.Input
	if in.Employees, err = parseRoster(rosterRows); err != nil {
		return nil, err
	}
	if in.Shifts, in.Horizon, err = parseShifts(shiftRows); err != nil {
		return nil, err
	}
	rows := len(rosterRows) + len(shiftRows)

	if def.PrefsLocator != "" {
		prefs, err := ParseLocator(def.PrefsLocator)
		if err != nil {
			return nil, err
		}
		prefRows, err := a.books.ReadTable(ctx, prefs.OrTab(PreferencesTab))
		if err != nil {
			return nil, errors.Wrapf(err, "read preferences for %s", def.ID)
		}
		if in.Preferences, err = parsePreferences(prefRows); err != nil {
			return nil, err
		}
		rows += len(prefRows)
	}
	in.Rules = a.rules

	snap := &Snapshot{
		Input:       in,
		Fingerprint: Fingerprint(in),
		Rows:        rows,
		FetchedAt:   a.now().UTC(),
	}
	a.logger.Debugw("Fetched schedule input",
		logger.FieldScheduleDefID, def.ID,
		logger.FieldLocator, params.String(),
		logger.FieldRows, rows,
		logger.FieldFingerprint, snap.Fingerprint)
	return snap, nil
}

// Publish writes the assignment table to the results tab and the summary to
// "<tab> Summary".
func (a *TableAdapter) Publish(ctx context.Context, def *rota.Definition, res result.Result) error {
	loc, err := ParseLocator(def.ResultsLocator)
	if err != nil {
		return err
	}
	loc = loc.OrTab(ResultsTab)

	if err := a.books.WriteTable(ctx, loc, res.Table()); err != nil {
		return errors.Wrapf(err, "publish assignments for %s", def.ID)
	}
	if err := a.books.WriteTable(ctx, SummaryLocator(loc), res.Summary.Table()); err != nil {
		return errors.Wrapf(err, "publish summary for %s", def.ID)
	}
	a.logger.Infow("Published schedule",
		logger.FieldScheduleDefID, def.ID,
		logger.FieldLocator, loc.String(),
		logger.FieldCount, len(res.Records))
	return nil
}

// SummaryLocator is the tab holding the summary block for results tab loc.
func SummaryLocator(loc Locator) Locator {
	return loc.WithTab(loc.Tab + summarySuffix)
}

package rota

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/rota/db"
	"github.com/teranos/rota/errors"
)

// Definition identifies one tenant/department schedule and where its data lives.
type Definition struct {
	ID                string    `json:"id" yaml:"id"`
	TenantID          string    `json:"tenant_id" yaml:"tenant_id"`
	DepartmentID      string    `json:"department_id" yaml:"department_id"`
	Name              string    `json:"name" yaml:"name"`
	ParamsLocator     string    `json:"params_locator" yaml:"params_locator"`
	PrefsLocator      string    `json:"prefs_locator,omitempty" yaml:"prefs_locator"`
	ResultsLocator    string    `json:"results_locator" yaml:"results_locator"`
	RunCron           string    `json:"run_cron,omitempty" yaml:"run_cron"`
	TimeBudgetSeconds int       `json:"time_budget_seconds,omitempty" yaml:"time_budget_seconds"`
	Active            bool      `json:"active" yaml:"active"`
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the fields the pipeline depends on.
func (d *Definition) Validate() error {
	switch {
	case d.ID == "":
		return errors.NewInvalidRequestError("schedule definition id is required")
	case d.TenantID == "":
		return errors.NewInvalidRequestError("schedule definition %s: tenant_id is required", d.ID)
	case d.ParamsLocator == "":
		return errors.NewInvalidRequestError("schedule definition %s: params_locator is required", d.ID)
	case d.ResultsLocator == "":
		return errors.NewInvalidRequestError("schedule definition %s: results_locator is required", d.ID)
	}
	return nil
}

// DefinitionStore reads schedule definitions. The pipeline never writes them;
// Upsert exists for the admin product and the CLI.
type DefinitionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDefinitionStore creates a definition store over database
func NewDefinitionStore(database *sql.DB) *DefinitionStore {
	return &DefinitionStore{db: database, now: time.Now}
}

const definitionColumns = `id, tenant_id, department_id, name, params_locator, prefs_locator,
	results_locator, run_cron, time_budget_seconds, active, created_at, updated_at`

func scanDefinition(row interface{ Scan(...interface{}) error }) (*Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.TenantID, &d.DepartmentID, &d.Name, &d.ParamsLocator, &d.PrefsLocator,
		&d.ResultsLocator, &d.RunCron, &d.TimeBudgetSeconds, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the definition with id, or errors.ErrNotFound.
func (s *DefinitionStore) Get(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM schedule_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if err != nil {
		return nil, db.NotFound(err, "schedule definition %s", id)
	}
	return d, nil
}

// ListActive returns active definitions ordered by id.
func (s *DefinitionStore) ListActive(ctx context.Context) ([]*Definition, error) {
	return s.list(ctx, `SELECT `+definitionColumns+` FROM schedule_definitions WHERE active = 1 ORDER BY id`)
}

// List returns every definition ordered by id.
func (s *DefinitionStore) List(ctx context.Context) ([]*Definition, error) {
	return s.list(ctx, `SELECT `+definitionColumns+` FROM schedule_definitions ORDER BY id`)
}

func (s *DefinitionStore) list(ctx context.Context, query string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schedule definitions")
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule definition")
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// Upsert inserts or replaces a definition, preserving created_at.
func (s *DefinitionStore) Upsert(ctx context.Context, d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_definitions (`+definitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			department_id = excluded.department_id,
			name = excluded.name,
			params_locator = excluded.params_locator,
			prefs_locator = excluded.prefs_locator,
			results_locator = excluded.results_locator,
			run_cron = excluded.run_cron,
			time_budget_seconds = excluded.time_budget_seconds,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		d.ID, d.TenantID, d.DepartmentID, d.Name, d.ParamsLocator, d.PrefsLocator,
		d.ResultsLocator, d.RunCron, d.TimeBudgetSeconds, d.Active, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert schedule definition %s", d.ID)
	}
	return nil
}

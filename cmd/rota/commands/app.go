package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/archive"
	"github.com/teranos/rota/db"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/orchestrator"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/source"
)

// ExitError ends the process with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// loadConfig honours the --config and --db flags.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg *am.Config
	var err error
	if path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// app is the wired pipeline shared by the commands.
type app struct {
	cfg       *am.Config
	db        *sql.DB
	defs      *rota.DefinitionStore
	queue     *async.Queue
	guard     *guard.Guard
	syncLogs  *guard.SyncLogs
	snapshots *source.SnapshotStore
	cache     *source.CachedStore
	outcomes  *source.OutcomeStore
	adapter   *source.TableAdapter
	stale     *guard.StaleChecker
	orch      *orchestrator.Orchestrator
	log       *zap.SugaredLogger
}

// openApp loads configuration, opens and migrates the database and wires
// every component. Close releases the database.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.Logger

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}

	a := &app{
		cfg:       cfg,
		db:        database,
		defs:      rota.NewDefinitionStore(database),
		queue:     async.NewQueue(database),
		guard:     guard.New(database, cfg.Pulse.MaxRunDuration(), logger.ComponentLogger("pulse.guard")),
		syncLogs:  guard.NewSyncLogs(database),
		snapshots: source.NewSnapshotStore(database),
		cache:     source.NewCachedStore(database),
		outcomes:  source.NewOutcomeStore(database),
		log:       log,
	}
	a.adapter = source.NewTableAdapter(newRouter(ctx, cfg.Source, log), orchestrator.RulesFrom(cfg.Solver), logger.ComponentLogger("source"))
	a.stale = guard.NewStaleChecker(a.guard, a.adapter, a.snapshots, a.cache, a.outcomes, a.syncLogs, cfg.Source.SnapshotMaxAge(), log)

	deps := orchestrator.Deps{
		Definitions: a.defs,
		Queue:       a.queue,
		Guard:       a.guard,
		Adapter:     a.adapter,
		Snapshots:   a.snapshots,
		Cache:       a.cache,
		Outcomes:    a.outcomes,
		SyncLogs:    a.syncLogs,
	}
	if cfg.Archive.Enabled() {
		arch, err := archive.New(ctx, cfg.Archive, log)
		if err != nil {
			log.Warnw("Result archive disabled", logger.FieldError, err)
		} else {
			deps.Archive = arch
		}
	}
	a.orch = orchestrator.New(deps, orchestrator.ConfigFrom(cfg), logger.ComponentLogger("orchestrator"))
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warnw("Failed to close database", logger.FieldError, err)
	}
}

// newRouter registers a workbook per locator scheme. Google Sheets is only
// available when credentials can be found.
func newRouter(ctx context.Context, cfg am.SourceConfig, log *zap.SugaredLogger) *source.Router {
	router := source.NewRouter()
	router.Register(source.SchemeFile, source.NewFileWorkbook())

	sheets, err := source.NewSheetsWorkbook(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Debugw("Google Sheets workbooks unavailable", logger.FieldError, err)
		return router
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	router.Register(source.SchemeGoogleSheets, source.Throttle(sheets, limit, max(cfg.RequestBurst, 1)))
	return router
}

package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
	"github.com/teranos/rota/rota"
)

// ward is an in-memory stand-in for every collaborator of the package.
type ward struct {
	mu      sync.Mutex
	defs    []*rota.Definition
	active  map[string]bool
	held    map[string]bool
	lastRun map[string]time.Time
	stale   map[string]bool
	calls   []dispatch
	checks  int
}

type dispatch struct {
	def      string
	trigger  async.TriggerKind
	rejected string // active job id when the run was rejected
}

func newWard(defs ...*rota.Definition) *ward {
	return &ward{
		defs:    defs,
		active:  map[string]bool{},
		held:    map[string]bool{},
		lastRun: map[string]time.Time{},
		stale:   map[string]bool{},
	}
}

func def(id, cronSpec string) *rota.Definition {
	return &rota.Definition{ID: id, TenantID: "t1", RunCron: cronSpec, Active: true}
}

func (w *ward) ListActive(context.Context) ([]*rota.Definition, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*rota.Definition(nil), w.defs...), nil
}

func (w *ward) FindActiveJob(_ context.Context, id string) (*async.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[id] {
		return &async.Job{ID: "busy", ScheduleDefID: id, Status: async.JobStatusRunning}, nil
	}
	return nil, nil
}

func (w *ward) RunSchedule(_ context.Context, id string, trigger async.TriggerKind) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, dispatch{def: id, trigger: trigger})
	return fmt.Sprintf("job-%d", len(w.calls)), nil
}

func (w *ward) RejectBusy(_ context.Context, id string, trigger async.TriggerKind, activeJobID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, dispatch{def: id, trigger: trigger, rejected: activeJobID})
	return fmt.Sprintf("job-%d", len(w.calls)), nil
}

func (w *ward) Held(_ context.Context, _, id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held[id], nil
}

func (w *ward) Latest(_ context.Context, id string) (*guard.SyncLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.lastRun[id]
	if !ok {
		return nil, nil
	}
	return &guard.SyncLog{ScheduleDefID: id, CreatedAt: at}, nil
}

func (w *ward) IsStale(_ context.Context, d *rota.Definition) (guard.Staleness, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checks++
	if w.stale[d.ID] {
		return guard.Staleness{Stale: true, Reason: guard.StaleFingerprintChanged}, nil
	}
	return guard.Staleness{Reason: guard.StaleFresh}, nil
}

func (w *ward) dispatched() []dispatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]dispatch(nil), w.calls...)
}

func (w *ward) set(fn func(w *ward)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w)
}

package source

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/teranos/rota/errors"
)

// Workbook is one tabular storage backend.
type Workbook interface {
	// ReadTable returns every row of the tab, header included.
	ReadTable(ctx context.Context, loc Locator) ([][]string, error)
	// WriteTable replaces the tab's contents with rows, creating the tab if needed.
	WriteTable(ctx context.Context, loc Locator, rows [][]string) error
}

// Router dispatches locators to the workbook registered for their scheme.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Workbook
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{backends: make(map[string]Workbook)}
}

// Register installs wb for scheme, replacing any previous backend.
func (r *Router) Register(scheme string, wb Workbook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = wb
}

func (r *Router) backend(loc Locator) (Workbook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wb, ok := r.backends[loc.Scheme]
	if !ok {
		return nil, errors.NewInvalidInput("no workbook backend for %s", loc)
	}
	return wb, nil
}

// ReadTable implements Workbook
func (r *Router) ReadTable(ctx context.Context, loc Locator) ([][]string, error) {
	wb, err := r.backend(loc)
	if err != nil {
		return nil, err
	}
	return wb.ReadTable(ctx, loc)
}

// WriteTable implements Workbook
func (r *Router) WriteTable(ctx context.Context, loc Locator, rows [][]string) error {
	wb, err := r.backend(loc)
	if err != nil {
		return err
	}
	return wb.WriteTable(ctx, loc, rows)
}

// throttled waits on a shared limiter before every call.
type throttled struct {
	inner   Workbook
	limiter *rate.Limiter
}

// Throttle wraps wb so calls share one token bucket. Spreadsheet APIs meter
// requests per project, so every schedule's reads draw from the same budget.
func Throttle(wb Workbook, limit rate.Limit, burst int) Workbook {
	if burst < 1 {
		burst = 1
	}
	return &throttled{inner: wb, limiter: rate.NewLimiter(limit, burst)}
}

func (t *throttled) wait(ctx context.Context, loc Locator) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Mark(errors.Wrapf(err, "rate limit wait for %s", loc), errors.ErrTimeout)
	}
	return nil
}

func (t *throttled) ReadTable(ctx context.Context, loc Locator) ([][]string, error) {
	if err := t.wait(ctx, loc); err != nil {
		return nil, err
	}
	return t.inner.ReadTable(ctx, loc)
}

func (t *throttled) WriteTable(ctx context.Context, loc Locator, rows [][]string) error {
	if err := t.wait(ctx, loc); err != nil {
		return err
	}
	return t.inner.WriteTable(ctx, loc, rows)
}

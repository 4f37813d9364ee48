package source

import (
	"context"
	"sync"

	"github.com/teranos/rota/errors"
)

// MemoryWorkbook keeps tabs in process. It backs mem:// locators, which the
// CLI uses for dry runs and tests use in place of a spreadsheet.
type MemoryWorkbook struct {
	mu     sync.Mutex
	books  map[string]map[string][][]string
	writes int
	onRead func(loc Locator) error
}

// NewMemoryWorkbook creates an empty in-memory workbook store
func NewMemoryWorkbook() *MemoryWorkbook {
	return &MemoryWorkbook{books: make(map[string]map[string][][]string)}
}

// SetTable replaces a tab's rows.
func (w *MemoryWorkbook) SetTable(book, tab string, rows [][]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setLocked(book, tab, rows)
}

// Table returns a copy of a tab's rows.
func (w *MemoryWorkbook) Table(book, tab string) ([][]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.books[book][tab]
	return copyRows(rows), ok
}

// Writes counts WriteTable calls.
func (w *MemoryWorkbook) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// OnRead installs a hook run before every read; a non-nil error fails the read.
func (w *MemoryWorkbook) OnRead(hook func(loc Locator) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRead = hook
}

// ReadTable implements Workbook
func (w *MemoryWorkbook) ReadTable(ctx context.Context, loc Locator) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyContext(err, loc)
	}
	w.mu.Lock()
	hook := w.onRead
	w.mu.Unlock()
	if hook != nil {
		if err := hook(loc); err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	book, ok := w.books[loc.Book]
	if !ok {
		return nil, errors.NewSourceFormat("workbook %q not found", loc.Book)
	}
	rows, ok := book[loc.Tab]
	if !ok {
		return nil, errors.NewSourceFormat("tab %q not found in %q", loc.Tab, loc.Book)
	}
	return copyRows(rows), nil
}

// WriteTable implements Workbook
func (w *MemoryWorkbook) WriteTable(ctx context.Context, loc Locator, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return classifyContext(err, loc)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setLocked(loc.Book, loc.Tab, rows)
	w.writes++
	return nil
}

func (w *MemoryWorkbook) setLocked(book, tab string, rows [][]string) {
	if w.books[book] == nil {
		w.books[book] = make(map[string][][]string)
	}
	w.books[book][tab] = copyRows(rows)
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

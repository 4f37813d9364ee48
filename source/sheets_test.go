package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/teranos/rota/errors"
)

// fakeSheets serves the handful of Sheets v4 endpoints the workbook uses.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    map[string][][]interface{}
	status  int // when non-zero every request fails with it
	added   []string
	cleared []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake failure"}}`, f.status)
		return
	}

	path := r.URL.Path
	switch {
	case strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		clear := strings.HasSuffix(rng, ":clear")
		tab := strings.Trim(strings.TrimSuffix(rng, ":clear"), "'")
		switch {
		case clear:
			f.cleared = append(f.cleared, tab)
			delete(f.tabs, tab)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPut:
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.tabs[tab] = body.Values
			_, _ = w.Write([]byte(`{}`))
		default:
			rows, ok := f.tabs[tab]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Unable to parse range"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"range": tab, "values": rows})
		}
	case strings.HasSuffix(path, ":batchUpdate"):
		var body struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, req := range body.Requests {
			title := req.AddSheet.Properties.Title
			f.added = append(f.added, title)
			f.tabs[title] = nil
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		var sheets []map[string]interface{}
		for title := range f.tabs {
			sheets = append(sheets, map[string]interface{}{"properties": map[string]interface{}{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"sheets": sheets})
	}
}

func newFakeSheets(t *testing.T) (*fakeSheets, *SheetsWorkbook) {
	t.Helper()
	fake := &fakeSheets{tabs: map[string][][]interface{}{
		"Roster": {{"employee_id", "name", "role"}, {"e1", "Alice", float64(3)}},
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	wb, err := NewSheetsWorkbookWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return fake, wb
}

func TestSheetsReadTable(t *testing.T) {
	_, wb := newFakeSheets(t)

	rows, err := wb.ReadTable(context.Background(), Locator{Scheme: SchemeGoogleSheets, Book: "sheet1", Tab: "Roster"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"employee_id", "name", "role"}, {"e1", "Alice", "3"}}, rows)
}

func TestSheetsWriteTableCreatesTab(t *testing.T) {
	fake, wb := newFakeSheets(t)
	loc := Locator{Scheme: SchemeGoogleSheets, Book: "sheet1", Tab: "Schedule"}

	require.NoError(t, wb.WriteTable(context.Background(), loc, [][]string{{"date"}, {"2025-06-02"}}))
	require.NoError(t, wb.WriteTable(context.Background(), loc, [][]string{{"date"}, {"2025-06-02"}}))

	assert.Equal(t, []string{"Schedule"}, fake.added, "tab is created once")
	assert.Equal(t, []string{"Schedule", "Schedule"}, fake.cleared)
	assert.Equal(t, [][]interface{}{{"date"}, {"2025-06-02"}}, fake.tabs["Schedule"])
}

func TestSheetsErrorClassification(t *testing.T) {
	loc := Locator{Scheme: SchemeGoogleSheets, Book: "sheet1", Tab: "Roster"}

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, errors.ErrSourceUnavailable},
		{http.StatusForbidden, errors.ErrSourceUnavailable},
		{http.StatusNotFound, errors.ErrSourceFormat},
		{http.StatusBadRequest, errors.ErrSourceFormat},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fake, wb := newFakeSheets(t)
			fake.status = tt.status
			_, err := wb.ReadTable(context.Background(), loc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("missing tab", func(t *testing.T) {
		_, wb := newFakeSheets(t)
		_, err := wb.ReadTable(context.Background(), loc.WithTab("Nope"))
		assert.True(t, errors.Is(err, errors.ErrSourceFormat))
	})

	t.Run("deadline", func(t *testing.T) {
		_, wb := newFakeSheets(t)
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		_, err := wb.ReadTable(ctx, loc)
		assert.True(t, errors.IsTimeout(err), "got %v", err)
		assert.False(t, errors.IsRetryable(err))
	})
}

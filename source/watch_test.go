package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/rota"
)

func TestWatcherEmitsForRegisteredWorkbooks(t *testing.T) {
	dir := t.TempDir()
	params := filepath.Join(dir, "ward.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(params, []byte("tabs: {}\n"), 0o644))

	w, err := NewWatcher(nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchDefinition(&rota.Definition{
		ID:             "ward-a",
		ParamsLocator:  "file://" + params,
		PrefsLocator:   "gsheet://remote",
		ResultsLocator: "file://" + params + "#Schedule",
	}))

	var mu sync.Mutex
	var events []ChangeEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(ev ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(other, []byte("tabs: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(params, []byte("tabs: {Roster: []}\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		assert.Equal(t, "ward-a", ev.ScheduleDefID)
		assert.Equal(t, SchemeFile, ev.Locator.Scheme)
	}
}

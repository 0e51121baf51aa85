package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateWatcher_ReportsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	var changes atomic.Int32

	w := NewStateWatcher(StateWatcherConfig{
		Path:         path,
		Debounce:     150 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		OnChange:     func() { changes.Add(1) },
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	store := NewStateStore(path)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutServer(&ServerState{ServerID: id}))
	}

	assert.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load(), "a burst of writes is reported once")
}

func TestStateWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var changes atomic.Int32

	w := NewStateWatcher(StateWatcherConfig{
		Path:     filepath.Join(dir, "state.json"),
		Debounce: 20 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), changes.Load())
}

func TestStateWatcher_StopIsIdempotent(t *testing.T) {
	w := NewStateWatcher(StateWatcherConfig{Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}

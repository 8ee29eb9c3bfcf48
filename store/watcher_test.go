package store_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-record-server/store"
)

func TestWatcherReloadsOnExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	b, err := store.NewJSONFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Save(sampleDocument()))

	s := store.New(b)
	require.NoError(t, s.Load())

	var mu sync.Mutex
	reloads := 0
	w, err := store.NewWatcher(path, func() error {
		changed, err := b.Changed()
		if err != nil || !changed {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if err := s.Reload(); err != nil {
			return err
		}
		reloads++
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Close()

	// The server's own write must not count as an edit.
	require.NoError(t, b.Save(sampleDocument()))
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, reloads)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte(`{"books": []}`), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		names := s.Collections()
		return reloads >= 1 && len(names) == 1 && names[0] == "books"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	var mu sync.Mutex
	calls := 0
	w, err := store.NewWatcher(path, func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := store.NewWatcher(filepath.Join(t.TempDir(), "store.json"), func() error { return nil }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	w.Close()
	w.Close()
}

func TestWatcherCloseWaitsForRunningReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32
	w, err := store.NewWatcher(path, func() error {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("reload never ran")
	}

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a reload was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return after the reload finished")
	}

	n := calls.Load()
	require.NoError(t, os.WriteFile(path, []byte(`{"a": []}`), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no reload after Close")
}

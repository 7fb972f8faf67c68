package filestore_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/hostrun/internal/config/filestore"
)

type doc struct {
	Revision int `yaml:"revision"`
}

func TestWatchSurvivesAtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("revision: 0\n"), 0600))

	store := filestore.New(path, nil)
	var changes int64
	require.NoError(t, store.Watch(func() { atomic.AddInt64(&changes, 1) }))

	// Save replaces the file by rename, which invalidates an inode watch.
	require.NoError(t, store.Save(&doc{Revision: 1}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&changes) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// Let the first save's event burst settle before counting again.
	time.Sleep(300 * time.Millisecond)
	before := atomic.LoadInt64(&changes)

	require.NoError(t, store.Save(&doc{Revision: 2}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&changes) > before
	}, 5*time.Second, 10*time.Millisecond,
		"a second atomic replace must still be observed")

	var got doc
	require.NoError(t, store.Load(&got))
	assert.Equal(t, 2, got.Revision)
}

func TestWatchRejectsNilCallback(t *testing.T) {
	store := filestore.New(filepath.Join(t.TempDir(), "cfg.yaml"), nil)
	assert.Error(t, store.Watch(nil))
}

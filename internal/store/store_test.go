package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bpdb/internal/btree"
)

func TestPutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.db")
	s, err := Open(path, WithPoolSize(8), WithFanout(4, 4))
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Put(1, btree.RID{PageID: 3, Slot: 7})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Put(1, btree.RID{PageID: 9, Slot: 9})
	require.NoError(t, err)
	assert.False(t, ok, "duplicate put must be rejected")

	rid, found, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btree.RID{PageID: 3, Slot: 7}, rid)

	require.NoError(t, s.Delete(1))
	_, found, err = s.Get(1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, s.IsEmpty())
}

func TestScanRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.db")
	s, err := Open(path, WithFanout(4, 4))
	require.NoError(t, err)
	defer s.Close()

	for key := uint64(1); key <= 30; key++ {
		_, err := s.Put(key, RIDForKey(key))
		require.NoError(t, err)
	}

	entries, err := s.ScanRange(10, 15)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, uint64(10), entries[0].Key)
	assert.Equal(t, uint64(15), entries[len(entries)-1].Key)

	all, err := s.Scan()
	require.NoError(t, err)
	assert.Len(t, all, 30)
}

func TestReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.db")

	s, err := Open(path, WithName("accounts"), WithFanout(4, 4))
	require.NoError(t, err)
	for key := uint64(1); key <= 200; key++ {
		_, err := s.Put(key, RIDForKey(key))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	// fanout comes back from the manifest, not the options
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	for key := uint64(1); key <= 200; key++ {
		rid, found, err := reopened.Get(key)
		require.NoError(t, err)
		require.True(t, found, "get %d after reopen", key)
		require.Equal(t, RIDForKey(key), rid)
	}
	_, found, err := reopened.Get(1000)
	require.NoError(t, err)
	assert.False(t, found)

	stats, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, 200, stats.Entries)
}

func TestLoadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.db")
	s, err := Open(path, WithFanout(4, 4))
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadKeys(strings.NewReader("5 3 9 3 1\n7"))
	require.NoError(t, err)
	assert.Equal(t, 5, loaded, "duplicate keys are skipped")

	entries, err := s.Scan()
	require.NoError(t, err)
	keys := make([]uint64, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []uint64{1, 3, 5, 7, 9}, keys)
}

func TestBackupSnapshotsIndexFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.db")
	s, err := Open(path, WithFanout(4, 4))
	require.NoError(t, err)
	defer s.Close()

	for key := uint64(1); key <= 50; key++ {
		_, err := s.Put(key, RIDForKey(key))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, s.Backup(&buf))

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	restored, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.NoError(t, zr.Close())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, restored, "backup must match the flushed index file")
}

func TestManifestRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.db")
	require.NoError(t, os.WriteFile(manifestPath(path), []byte("JUNKJUNKJUNK"), 0644))

	_, err := Open(path)
	require.Error(t, err)
}

package store

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bpdb/internal/btree"
	"bpdb/internal/pager"
	"bpdb/internal/txn"
)

const defaultPoolSize = 64

type config struct {
	name            string
	poolSize        int
	leafMaxSize     int
	internalMaxSize int
	logger          *zap.Logger
}

type Option func(*config)

func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

func WithPoolSize(frames int) Option {
	return func(c *config) { c.poolSize = frames }
}

// WithFanout overrides the per-page entry capacities. Only honored at
// creation time; existing indexes keep their manifest geometry.
func WithFanout(leaf, internal int) Option {
	return func(c *config) {
		c.leafMaxSize = leaf
		c.internalMaxSize = internal
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Entry is one key/record-id pair yielded by a scan.
type Entry struct {
	Key   uint64
	Value btree.RID
}

// IndexStore ties a disk manager, buffer pool and B+ tree together
// behind a single file path and serializes tree access.
type IndexStore struct {
	mu   sync.Mutex
	path string
	disk *pager.FileDiskManager
	pool *pager.BufferPool
	tree *btree.BPlusTree
	txns *txn.Manager
	log  *zap.Logger
}

// Open opens the index at path, creating it (and its manifest) when it
// does not exist yet.
func Open(path string, opts ...Option) (*IndexStore, error) {
	cfg := config{
		name:     "primary",
		poolSize: defaultPoolSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	m, err := readManifest(manifestPath(path))
	switch {
	case err == nil:
		cfg.name = m.Name
		cfg.leafMaxSize = int(m.LeafMaxSize)
		cfg.internalMaxSize = int(m.InternalMaxSize)
		if m.PageSize != pager.PAGE_SIZE {
			return nil, errors.Errorf("index %s uses page size %d, built for %d", path, m.PageSize, pager.PAGE_SIZE)
		}
	case os.IsNotExist(err):
		leaf := cfg.leafMaxSize
		if leaf <= 0 {
			leaf = btree.DefaultLeafMaxSize
		}
		internal := cfg.internalMaxSize
		if internal <= 0 {
			internal = btree.DefaultInternalMaxSize
		}
		m = manifest{
			Version:         manifestVersion,
			Name:            cfg.name,
			PageSize:        pager.PAGE_SIZE,
			LeafMaxSize:     uint32(leaf),
			InternalMaxSize: uint32(internal),
		}
		if err := writeManifest(manifestPath(path), m); err != nil {
			return nil, err
		}
		cfg.leafMaxSize = leaf
		cfg.internalMaxSize = internal
	default:
		return nil, err
	}

	disk, err := pager.NewFileDiskManager(path)
	if err != nil {
		return nil, err
	}
	pool := pager.NewBufferPool(cfg.poolSize, disk, cfg.logger)
	tree, err := btree.New(cfg.name, pool, cfg.leafMaxSize, cfg.internalMaxSize)
	if err != nil {
		disk.Close()
		return nil, err
	}
	txns, err := txn.NewManager(1)
	if err != nil {
		disk.Close()
		return nil, err
	}

	cfg.logger.Debug("opened index",
		zap.String("path", path),
		zap.String("name", cfg.name),
		zap.Int("pool_size", cfg.poolSize))

	return &IndexStore{
		path: path,
		disk: disk,
		pool: pool,
		tree: tree,
		txns: txns,
		log:  cfg.logger,
	}, nil
}

// Put inserts a key/record-id pair. Returns false on a duplicate key.
func (s *IndexStore) Put(key uint64, value btree.RID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Insert(key, value, s.txns.Begin())
}

// Get looks up the record id stored under key.
func (s *IndexStore) Get(key uint64) (btree.RID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.GetValue(key, nil)
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *IndexStore) Delete(key uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Remove(key, s.txns.Begin())
}

// IsEmpty reports whether the index holds no entries.
func (s *IndexStore) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.IsEmpty()
}

// Scan returns every entry in ascending key order.
func (s *IndexStore) Scan() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.tree.Begin()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Entry
	for !it.IsEnd() {
		out = append(out, Entry{Key: it.Key(), Value: it.Value()})
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScanRange returns the entries with start <= key <= end in ascending
// order.
func (s *IndexStore) ScanRange(start, end uint64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.tree.BeginAt(start)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Entry
	for !it.IsEnd() && it.Key() <= end {
		out = append(out, Entry{Key: it.Key(), Value: it.Value()})
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadKeys bulk-inserts whitespace-separated integer keys from r. The
// record id is derived from the key. Duplicates are skipped.
func (s *IndexStore) LoadKeys(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	loaded := 0
	for scanner.Scan() {
		key, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
		if err != nil {
			return loaded, errors.Wrapf(err, "parse key %q", scanner.Text())
		}
		ok, err := s.Put(key, RIDForKey(key))
		if err != nil {
			return loaded, err
		}
		if ok {
			loaded++
		}
	}
	return loaded, scanner.Err()
}

// RIDForKey derives a record id from a key, for callers that index
// synthetic data rather than heap tuples.
func RIDForKey(key uint64) btree.RID {
	return btree.RID{
		PageID: pager.PageID(int32(key >> 32)),
		Slot:   uint32(key),
	}
}

// Stats reports the tree shape.
func (s *IndexStore) Stats() (btree.TreeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Stats()
}

// Flush writes all dirty pages through to disk.
func (s *IndexStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.FlushAllPages()
}

// Backup streams a gzip-compressed snapshot of the index file to w
// after flushing the pool.
func (s *IndexStore) Backup(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "flush before backup")
	}
	src, err := os.Open(s.path)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	defer src.Close()

	zw := gzip.NewWriter(w)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return errors.Wrap(err, "compress backup")
	}
	return zw.Close()
}

// Close flushes and releases the underlying file.
func (s *IndexStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.FlushAllPages(); err != nil {
		s.disk.Close()
		return err
	}
	return s.disk.Close()
}

package pager

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// DiskManager is the blocking block-device abstraction underneath the
// buffer pool. All transfers are whole pages.
type DiskManager interface {
	ReadPage(id PageID, buf []byte) error
	WritePage(id PageID, buf []byte) error
	AllocatePage() (PageID, error)
	DeallocatePage(id PageID) error
	Sync() error
	Close() error
}

// FileDiskManager stores pages in a single file at id*PAGE_SIZE offsets.
// Deallocated ids are recycled before the file is grown.
type FileDiskManager struct {
	mu      sync.Mutex
	file    *os.File
	nextID  PageID
	freeIDs []PageID
}

func NewFileDiskManager(path string) (*FileDiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	next := PageID((stat.Size() + PAGE_SIZE - 1) / PAGE_SIZE)
	if next < 1 {
		// page 0 always belongs to the header
		next = 1
	}
	return &FileDiskManager{file: f, nextID: next}, nil
}

func (dm *FileDiskManager) ReadPage(id PageID, buf []byte) error {
	n, err := dm.file.ReadAt(buf, int64(id)*PAGE_SIZE)
	if err == io.EOF {
		// a page past the end of the file has never been written;
		// it reads as zeroes
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		return nil
	}
	return errors.Wrapf(err, "read page %d", id)
}

func (dm *FileDiskManager) WritePage(id PageID, buf []byte) error {
	_, err := dm.file.WriteAt(buf, int64(id)*PAGE_SIZE)
	return errors.Wrapf(err, "write page %d", id)
}

func (dm *FileDiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.freeIDs); n > 0 {
		id := dm.freeIDs[n-1]
		dm.freeIDs = dm.freeIDs[:n-1]
		return id, nil
	}
	id := dm.nextID
	dm.nextID++
	return id, nil
}

func (dm *FileDiskManager) DeallocatePage(id PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, free := range dm.freeIDs {
		if free == id {
			return nil
		}
	}
	dm.freeIDs = append(dm.freeIDs, id)
	return nil
}

func (dm *FileDiskManager) Sync() error {
	return dm.file.Sync()
}

func (dm *FileDiskManager) Close() error {
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return err
	}
	return dm.file.Close()
}

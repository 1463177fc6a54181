package pager

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNoFreeFrame is returned when every frame is pinned and
	// nothing can be evicted.
	ErrNoFreeFrame = errors.New("buffer pool: all frames pinned")

	// ErrPageNotResident is returned by FlushPage for a page that is
	// not in the pool.
	ErrPageNotResident = errors.New("buffer pool: page not resident")
)

// BufferPool caches disk pages in a fixed set of frames. Every public
// method is atomic under the pool latch; dirty pages are written back
// when their frame is reclaimed.
type BufferPool struct {
	mu        sync.Mutex
	disk      DiskManager
	frames    []*Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	replacer  *LRUReplacer
	log       *zap.Logger
}

func NewBufferPool(poolSize int, disk DiskManager, logger *zap.Logger) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	bp := &BufferPool{
		disk:      disk,
		frames:    make([]*Page, poolSize),
		pageTable: make(map[PageID]FrameID, poolSize),
		freeList:  make([]FrameID, 0, poolSize),
		replacer:  NewLRUReplacer(),
		log:       logger,
	}
	for i := range bp.frames {
		bp.frames[i] = &Page{id: InvalidPageID}
		bp.freeList = append(bp.freeList, FrameID(i))
	}
	return bp
}

// FetchPage returns the requested page pinned, reading it from disk on
// a miss. The caller must pair every fetch with exactly one UnpinPage.
func (bp *BufferPool) FetchPage(id PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, ok := bp.pageTable[id]; ok {
		page := bp.frames[fid]
		page.pinCount++
		bp.replacer.Pin(fid)
		return page, nil
	}

	fid, page, err := bp.reclaimFrame()
	if err != nil {
		return nil, err
	}
	if err := bp.disk.ReadPage(id, page.data[:]); err != nil {
		bp.freeList = append(bp.freeList, fid)
		return nil, err
	}
	page.id = id
	page.pinCount = 1
	bp.pageTable[id] = fid
	bp.replacer.Pin(fid)
	return page, nil
}

// UnpinPage drops one pin and ORs the dirty flag. A false argument
// never clears an already-dirty page. Returns false when the page is
// not resident or was not pinned.
func (bp *BufferPool) UnpinPage(id PageID, dirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	page := bp.frames[fid]
	if page.pinCount <= 0 {
		return false
	}
	if dirty {
		page.dirty = true
	}
	page.pinCount--
	if page.pinCount == 0 {
		bp.replacer.Unpin(fid)
	}
	return true
}

// NewPage allocates a fresh disk page and returns it pinned with
// zeroed contents.
func (bp *BufferPool) NewPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.freeList) == 0 && bp.replacer.Size() == 0 {
		return nil, ErrNoFreeFrame
	}
	id, err := bp.disk.AllocatePage()
	if err != nil {
		return nil, errors.Wrap(err, "allocate disk page")
	}
	fid, page, err := bp.reclaimFrame()
	if err != nil {
		return nil, err
	}
	page.id = id
	page.pinCount = 1
	bp.pageTable[id] = fid
	bp.replacer.Pin(fid)
	return page, nil
}

// DeletePage drops a page from the pool and releases its disk id.
// Returns false while the page is pinned.
func (bp *BufferPool) DeletePage(id PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return true, bp.disk.DeallocatePage(id)
	}
	page := bp.frames[fid]
	if page.pinCount > 0 {
		return false, nil
	}
	bp.replacer.Pin(fid)
	if err := bp.disk.DeallocatePage(id); err != nil {
		bp.replacer.Unpin(fid)
		return false, err
	}
	delete(bp.pageTable, id)
	page.reset()
	bp.freeList = append(bp.freeList, fid)
	return true, nil
}

// FlushPage writes a resident page back to disk and clears its dirty
// flag.
func (bp *BufferPool) FlushPage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return ErrPageNotResident
	}
	page := bp.frames[fid]
	if err := bp.disk.WritePage(id, page.data[:]); err != nil {
		return err
	}
	page.dirty = false
	return nil
}

// FlushAllPages writes every resident dirty page back and syncs the
// disk manager.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, page := range bp.frames {
		if page.id == InvalidPageID || !page.dirty {
			continue
		}
		if err := bp.disk.WritePage(page.id, page.data[:]); err != nil {
			return errors.Wrapf(err, "flush page %d", page.id)
		}
		page.dirty = false
	}
	return bp.disk.Sync()
}

// PinnedCount reports the number of outstanding pins across all frames.
// Zero at any quiescent point; anything else indicates a leaked pin.
func (bp *BufferPool) PinnedCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	total := 0
	for _, page := range bp.frames {
		total += page.pinCount
	}
	return total
}

// reclaimFrame returns an empty frame, evicting the coldest unpinned
// page if the free list is exhausted. Caller holds bp.mu.
func (bp *BufferPool) reclaimFrame() (FrameID, *Page, error) {
	if n := len(bp.freeList); n > 0 {
		fid := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return fid, bp.frames[fid], nil
	}
	fid, ok := bp.replacer.Victim()
	if !ok {
		return 0, nil, ErrNoFreeFrame
	}
	victim := bp.frames[fid]
	if victim.dirty {
		if err := bp.disk.WritePage(victim.id, victim.data[:]); err != nil {
			bp.replacer.Unpin(fid)
			return 0, nil, errors.Wrapf(err, "write back page %d", victim.id)
		}
		bp.log.Debug("evicted dirty page",
			zap.Int32("page", int32(victim.id)),
			zap.Int32("frame", int32(fid)))
	}
	delete(bp.pageTable, victim.id)
	victim.reset()
	return fid, victim, nil
}

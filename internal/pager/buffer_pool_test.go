package pager

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

func newTestPool(t *testing.T, poolSize int) (*BufferPool, *FileDiskManager) {
	t.Helper()
	dm, err := NewFileDiskManager(filepath.Join(t.TempDir(), "pool_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dm.Close() })
	return NewBufferPool(poolSize, dm, nil), dm
}

func TestNewPagePinsPage(t *testing.T) {
	bp, _ := newTestPool(t, 4)

	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	if page.PinCount() != 1 {
		t.Errorf("expected pinCount=1, got %d", page.PinCount())
	}
	if page.ID() == InvalidPageID {
		t.Error("new page has no id assigned")
	}
}

func TestFetchSamePageTwice(t *testing.T) {
	bp, _ := newTestPool(t, 4)

	page, err := bp.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	again, err := bp.FetchPage(page.ID())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if again != page {
		t.Error("cache hit should return the same frame")
	}
	if page.PinCount() != 2 {
		t.Errorf("expected pinCount=2 after fetch, got %d", page.PinCount())
	}
}

func TestUnpinDecrements(t *testing.T) {
	bp, _ := newTestPool(t, 4)

	page, _ := bp.NewPage()
	bp.FetchPage(page.ID())

	if !bp.UnpinPage(page.ID(), false) {
		t.Fatal("unpin returned false")
	}
	if page.PinCount() != 1 {
		t.Errorf("expected pinCount=1, got %d", page.PinCount())
	}
	if !bp.UnpinPage(page.ID(), false) {
		t.Fatal("second unpin returned false")
	}
	if page.PinCount() != 0 {
		t.Errorf("expected pinCount=0, got %d", page.PinCount())
	}

	// a third unpin has nothing to release
	if bp.UnpinPage(page.ID(), false) {
		t.Error("unpin below zero should return false")
	}
}

func TestUnpinNonResident(t *testing.T) {
	bp, _ := newTestPool(t, 4)
	if bp.UnpinPage(PageID(42), false) {
		t.Error("unpin of a non-resident page should return false")
	}
}

func TestUnpinFalseDoesNotClearDirty(t *testing.T) {
	bp, _ := newTestPool(t, 4)

	page, _ := bp.NewPage()
	binary.LittleEndian.PutUint64(page.Data(), 0xdeadbeef)
	bp.UnpinPage(page.ID(), true)

	// re-pin and release clean; the page must stay dirty
	bp.FetchPage(page.ID())
	bp.UnpinPage(page.ID(), false)
	if !page.IsDirty() {
		t.Fatal("clean unpin cleared the dirty bit")
	}
}

func TestDirtyDataSurvivesEviction(t *testing.T) {
	bp, _ := newTestPool(t, 2)

	page, _ := bp.NewPage()
	id := page.ID()
	binary.LittleEndian.PutUint64(page.Data(), 12345)
	bp.UnpinPage(id, true)

	// churn through enough pages to force the eviction
	for i := 0; i < 4; i++ {
		p, err := bp.NewPage()
		if err != nil {
			t.Fatal(err)
		}
		bp.UnpinPage(p.ID(), false)
	}
	if err := bp.FlushPage(id); !errors.Is(err, ErrPageNotResident) {
		t.Fatalf("expected page %d to be evicted, flush err=%v", id, err)
	}

	reread, err := bp.FetchPage(id)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint64(reread.Data()); got != 12345 {
		t.Errorf("expected written data back after eviction, got %d", got)
	}
	bp.UnpinPage(id, false)
}

func TestEvictionRespectsPins(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	pinned, _ := bp.NewPage()
	a, _ := bp.NewPage()
	b, _ := bp.NewPage()
	bp.UnpinPage(a.ID(), false)
	bp.UnpinPage(b.ID(), false)

	// two more allocations must evict a and b, never the pinned page
	c, err := bp.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	d, err := bp.NewPage()
	if err != nil {
		t.Fatal(err)
	}

	if err := bp.FlushPage(pinned.ID()); err != nil {
		t.Errorf("pinned page was evicted: %v", err)
	}
	bp.UnpinPage(pinned.ID(), false)
	bp.UnpinPage(c.ID(), false)
	bp.UnpinPage(d.ID(), false)
}

func TestLRUEvictionOrder(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	a, _ := bp.NewPage()
	b, _ := bp.NewPage()
	c, _ := bp.NewPage()

	// unpin in order a, b, c; the next miss must claim a's frame
	aID, bID := a.ID(), b.ID()
	bp.UnpinPage(a.ID(), false)
	bp.UnpinPage(b.ID(), false)
	bp.UnpinPage(c.ID(), false)

	d, err := bp.NewPage()
	if err != nil {
		t.Fatal(err)
	}

	if err := bp.FlushPage(aID); !errors.Is(err, ErrPageNotResident) {
		t.Errorf("expected a evicted first, flush err=%v", err)
	}
	if err := bp.FlushPage(bID); err != nil {
		t.Errorf("b should still be resident: %v", err)
	}
	bp.UnpinPage(d.ID(), false)
}

func TestNewPageExhaustion(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	pages := make([]*Page, 0, 3)
	for i := 0; i < 3; i++ {
		p, err := bp.NewPage()
		if err != nil {
			t.Fatal(err)
		}
		pages = append(pages, p)
	}

	if _, err := bp.NewPage(); !errors.Is(err, ErrNoFreeFrame) {
		t.Fatalf("expected ErrNoFreeFrame with all frames pinned, got %v", err)
	}
	if _, err := bp.FetchPage(PageID(99)); !errors.Is(err, ErrNoFreeFrame) {
		t.Fatalf("expected ErrNoFreeFrame on fetch miss, got %v", err)
	}

	bp.UnpinPage(pages[0].ID(), false)
	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("expected NewPage to succeed after an unpin: %v", err)
	}
}

func TestDeletePage(t *testing.T) {
	bp, dm := newTestPool(t, 4)

	page, _ := bp.NewPage()
	id := page.ID()

	ok, err := bp.DeletePage(id)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("delete of a pinned page should return false")
	}

	bp.UnpinPage(id, false)
	ok, err = bp.DeletePage(id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("delete of an unpinned page should succeed")
	}

	// the disk id is recycled by the next allocation
	next, err := dm.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if next != id {
		t.Errorf("expected freed id %d to be reused, got %d", id, next)
	}
}

func TestFlushAllPages(t *testing.T) {
	bp, dm := newTestPool(t, 4)

	page, _ := bp.NewPage()
	id := page.ID()
	binary.LittleEndian.PutUint64(page.Data(), 777)
	bp.UnpinPage(id, true)

	if err := bp.FlushAllPages(); err != nil {
		t.Fatal(err)
	}
	if page.IsDirty() {
		t.Error("flush should clear the dirty bit")
	}

	buf := make([]byte, PAGE_SIZE)
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint64(buf); got != 777 {
		t.Errorf("expected 777 on disk after flush, got %d", got)
	}
}

func TestPinnedCountQuiescesToZero(t *testing.T) {
	bp, _ := newTestPool(t, 4)

	a, _ := bp.NewPage()
	b, _ := bp.NewPage()
	bp.FetchPage(a.ID())
	if bp.PinnedCount() != 3 {
		t.Fatalf("expected 3 pins, got %d", bp.PinnedCount())
	}
	bp.UnpinPage(a.ID(), false)
	bp.UnpinPage(a.ID(), false)
	bp.UnpinPage(b.ID(), false)
	if bp.PinnedCount() != 0 {
		t.Errorf("expected 0 pins at quiescence, got %d", bp.PinnedCount())
	}
}

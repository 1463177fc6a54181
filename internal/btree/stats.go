package btree

import (
	"github.com/pkg/errors"

	"bpdb/internal/pager"
)

// TreeStats summarizes the shape of the index.
type TreeStats struct {
	Root    pager.PageID
	Height  int
	Entries int
}

// Stats walks the leftmost path for the height and the leaf chain for
// the entry count.
func (t *BPlusTree) Stats() (TreeStats, error) {
	st := TreeStats{Root: t.root}
	if t.IsEmpty() {
		return st, nil
	}

	page, err := t.pool.FetchPage(t.root)
	if err != nil {
		return st, errors.Wrapf(err, "fetch root %d", t.root)
	}
	for {
		st.Height++
		n := node{page: page}
		if n.isLeaf() {
			break
		}
		child := asInternal(page).valueAt(0)
		t.pool.UnpinPage(page.ID(), false)
		if page, err = t.pool.FetchPage(child); err != nil {
			return st, errors.Wrapf(err, "fetch page %d", child)
		}
	}

	// page is now the leftmost leaf
	for {
		leaf := asLeaf(page)
		st.Entries += leaf.size()
		next := leaf.nextPageID()
		t.pool.UnpinPage(page.ID(), false)
		if next == pager.InvalidPageID {
			return st, nil
		}
		if page, err = t.pool.FetchPage(next); err != nil {
			return st, errors.Wrapf(err, "fetch leaf %d", next)
		}
	}
}

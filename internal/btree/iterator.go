package btree

import (
	"github.com/pkg/errors"

	"bpdb/internal/pager"
)

// Iterator walks the leaf chain in ascending key order. It holds
// exactly one pinned leaf at a time; Close releases the pin.
type Iterator struct {
	pool  *pager.BufferPool
	page  *pager.Page
	index int
}

// Begin positions an iterator at the smallest key in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{pool: t.pool}, nil
	}
	page, err := t.pool.FetchPage(t.root)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch root %d", t.root)
	}
	for !(node{page: page}).isLeaf() {
		child := asInternal(page).valueAt(0)
		t.pool.UnpinPage(page.ID(), false)
		if page, err = t.pool.FetchPage(child); err != nil {
			return nil, errors.Wrapf(err, "fetch page %d", child)
		}
	}
	return &Iterator{pool: t.pool, page: page}, nil
}

// BeginAt positions an iterator at the first entry whose key is >= key.
func (t *BPlusTree) BeginAt(key uint64) (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{pool: t.pool}, nil
	}
	page, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	leaf := asLeaf(page)
	it := &Iterator{pool: t.pool, page: page, index: leaf.keyIndex(key)}
	if it.index >= leaf.size() && leaf.nextPageID() != pager.InvalidPageID {
		// key sorts past this leaf's last entry; start on the next one
		if err := it.Next(); err != nil {
			it.Close()
			return nil, err
		}
	}
	return it, nil
}

// End positions an iterator one past the last entry of the rightmost
// leaf.
func (t *BPlusTree) End() (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{pool: t.pool}, nil
	}
	page, err := t.pool.FetchPage(t.root)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch root %d", t.root)
	}
	for !(node{page: page}).isLeaf() {
		in := asInternal(page)
		child := in.valueAt(in.size() - 1)
		t.pool.UnpinPage(page.ID(), false)
		if page, err = t.pool.FetchPage(child); err != nil {
			return nil, errors.Wrapf(err, "fetch page %d", child)
		}
	}
	return &Iterator{pool: t.pool, page: page, index: asLeaf(page).size()}, nil
}

// IsEnd reports whether the cursor is past the last entry of the
// rightmost leaf.
func (it *Iterator) IsEnd() bool {
	if it.page == nil {
		return true
	}
	leaf := asLeaf(it.page)
	return leaf.nextPageID() == pager.InvalidPageID && it.index >= leaf.size()
}

// Key returns the key under the cursor. Only valid while !IsEnd().
func (it *Iterator) Key() uint64 {
	return asLeaf(it.page).keyAt(it.index)
}

// Value returns the record id under the cursor. Only valid while
// !IsEnd(). Copy it if it must outlive the next advance.
func (it *Iterator) Value() RID {
	return asLeaf(it.page).valueAt(it.index)
}

// Next advances the cursor, crossing to the next leaf when the current
// one is exhausted.
func (it *Iterator) Next() error {
	if it.page == nil {
		return nil
	}
	leaf := asLeaf(it.page)
	it.index++
	if it.index < leaf.size() || leaf.nextPageID() == pager.InvalidPageID {
		return nil
	}
	next := leaf.nextPageID()
	it.pool.UnpinPage(it.page.ID(), false)
	it.page = nil
	page, err := it.pool.FetchPage(next)
	if err != nil {
		return errors.Wrapf(err, "fetch leaf %d", next)
	}
	it.page = page
	it.index = 0
	return nil
}

// Close releases the pinned leaf. Safe to call more than once.
func (it *Iterator) Close() {
	if it.page != nil {
		it.pool.UnpinPage(it.page.ID(), false)
		it.page = nil
	}
}

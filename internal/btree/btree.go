package btree

import (
	"github.com/pkg/errors"

	"bpdb/internal/pager"
	"bpdb/internal/txn"
)

// BPlusTree maps unique uint64 keys to fixed-width record ids over
// fixed-size pages mediated by a buffer pool. The root page id is
// persisted in the header page under the index name.
//
// Callers serialize tree operations externally; only the buffer pool
// underneath is safe for concurrent use. The transaction handle on the
// public operations is a pass-through with no behavior at this layer.
//
// Inserts pin at most three pages at a time, so they run against pools
// as small as three frames. Removals that merge internal nodes pin the
// node, its parent, the sibling and one reparented child per level;
// size the pool accordingly.
type BPlusTree struct {
	name            string
	pool            *pager.BufferPool
	root            pager.PageID
	leafMaxSize     int
	internalMaxSize int
}

// New binds the index named name, recovering its root page id from the
// header page when the index already exists. Non-positive fanout
// arguments select the page-size-derived defaults.
func New(name string, pool *pager.BufferPool, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if leafMaxSize <= 0 {
		leafMaxSize = DefaultLeafMaxSize
	}
	if internalMaxSize <= 0 {
		internalMaxSize = DefaultInternalMaxSize
	}
	t := &BPlusTree{
		name:            name,
		pool:            pool,
		root:            pager.InvalidPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}

	page, err := pool.FetchPage(pager.HeaderPageID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch header page")
	}
	if root, ok := pager.NewHeaderPage(page).RootPageID(name); ok {
		t.root = root
	}
	pool.UnpinPage(pager.HeaderPageID, false)
	return t, nil
}

func (t *BPlusTree) IsEmpty() bool {
	return t.root == pager.InvalidPageID
}

// GetValue performs a point lookup. The boolean reports whether the key
// exists.
func (t *BPlusTree) GetValue(key uint64, _ *txn.Transaction) (RID, bool, error) {
	if t.IsEmpty() {
		return RID{}, false, nil
	}
	page, err := t.findLeaf(key)
	if err != nil {
		return RID{}, false, err
	}
	rid, ok := asLeaf(page).lookup(key)
	t.pool.UnpinPage(page.ID(), false)
	return rid, ok, nil
}

// Insert adds a key/value pair. Returns false without modifying the
// tree when the key already exists.
func (t *BPlusTree) Insert(key uint64, value RID, _ *txn.Transaction) (bool, error) {
	if t.IsEmpty() {
		if err := t.startNewTree(key, value); err != nil {
			return false, err
		}
		return true, nil
	}
	return t.insertIntoLeaf(key, value)
}

// Remove deletes a key. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key uint64, _ *txn.Transaction) error {
	if t.IsEmpty() {
		return nil
	}
	page, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	leaf := asLeaf(page)
	if !leaf.remove(key) {
		t.pool.UnpinPage(page.ID(), false)
		return nil
	}

	deleted := false
	if leaf.size() < leaf.minSize() {
		deleted, err = t.coalesceOrRedistribute(leaf.node)
	}
	t.pool.UnpinPage(page.ID(), true)
	if deleted {
		if _, derr := t.pool.DeletePage(page.ID()); err == nil && derr != nil {
			err = derr
		}
	}
	return err
}

// findLeaf descends from the root to the leaf covering key, unpinning
// each internal page once its child is pinned. The returned leaf stays
// pinned.
func (t *BPlusTree) findLeaf(key uint64) (*pager.Page, error) {
	page, err := t.pool.FetchPage(t.root)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch root %d", t.root)
	}
	for {
		n := node{page: page}
		if n.isLeaf() {
			return page, nil
		}
		child := asInternal(page).lookup(key)
		t.pool.UnpinPage(page.ID(), false)
		if page, err = t.pool.FetchPage(child); err != nil {
			return nil, errors.Wrapf(err, "fetch page %d", child)
		}
	}
}

func (t *BPlusTree) startNewTree(key uint64, value RID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return errors.Wrap(err, "allocate root leaf")
	}
	leaf := asLeaf(page)
	leaf.init(page.ID(), pager.InvalidPageID, t.leafMaxSize)
	leaf.insert(key, value)
	t.pool.UnpinPage(page.ID(), true)
	t.root = page.ID()
	return t.updateRootPageID(true)
}

func (t *BPlusTree) insertIntoLeaf(key uint64, value RID) (bool, error) {
	page, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	leaf := asLeaf(page)
	if _, ok := leaf.lookup(key); ok {
		t.pool.UnpinPage(page.ID(), false)
		return false, nil
	}
	leaf.insert(key, value)

	if leaf.size() < leaf.maxSize() {
		t.pool.UnpinPage(page.ID(), true)
		return true, nil
	}

	newLeaf, err := t.splitLeaf(leaf)
	if err != nil {
		t.pool.UnpinPage(page.ID(), true)
		return false, err
	}
	oldID := leaf.pageID()
	parentID := leaf.parentID()
	sep := newLeaf.keyAt(0)
	newID := newLeaf.pageID()

	// release both halves before walking up; insertIntoParent re-pins
	// what it needs so inserts never hold more than three pages
	t.pool.UnpinPage(newID, true)
	t.pool.UnpinPage(oldID, true)
	return true, t.insertIntoParent(oldID, parentID, sep, newID)
}

// splitLeaf moves the upper half of old into a fresh leaf and splices
// it into the sibling chain. The new leaf is returned pinned.
func (t *BPlusTree) splitLeaf(old leafNode) (leafNode, error) {
	page, err := t.pool.NewPage()
	if err != nil {
		return leafNode{}, errors.Wrap(err, "allocate leaf for split")
	}
	newLeaf := asLeaf(page)
	newLeaf.init(page.ID(), pager.InvalidPageID, t.leafMaxSize)
	old.moveHalfTo(newLeaf)
	newLeaf.setNextPageID(old.nextPageID())
	old.setNextPageID(newLeaf.pageID())
	return newLeaf, nil
}

// splitInternal moves the upper half of old into a fresh internal page,
// reparenting the moved children. The new page is returned pinned; its
// slot-0 key holds the separator to push into the grandparent.
func (t *BPlusTree) splitInternal(old internalNode) (internalNode, error) {
	page, err := t.pool.NewPage()
	if err != nil {
		return internalNode{}, errors.Wrap(err, "allocate internal for split")
	}
	n := asInternal(page)
	n.init(page.ID(), pager.InvalidPageID, t.internalMaxSize)
	if err := old.moveHalfTo(n, t.pool); err != nil {
		t.pool.UnpinPage(page.ID(), true)
		return internalNode{}, err
	}
	return n, nil
}

// insertIntoParent links a freshly split pair (oldID, newID) under
// their parent, splitting upward as needed. Both children are already
// unpinned; parentID is old's parent as of the split.
func (t *BPlusTree) insertIntoParent(oldID, parentID pager.PageID, sep uint64, newID pager.PageID) error {
	if parentID == pager.InvalidPageID {
		rootPage, err := t.pool.NewPage()
		if err != nil {
			return errors.Wrap(err, "allocate new root")
		}
		root := asInternal(rootPage)
		rootID := rootPage.ID()
		root.init(rootID, pager.InvalidPageID, t.internalMaxSize)
		root.populateNewRoot(oldID, sep, newID)
		t.pool.UnpinPage(rootID, true)

		if err := t.setParent(oldID, rootID); err != nil {
			return err
		}
		if err := t.setParent(newID, rootID); err != nil {
			return err
		}
		t.root = rootID
		return t.updateRootPageID(false)
	}

	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		return errors.Wrapf(err, "fetch parent %d", parentID)
	}
	parent := asInternal(parentPage)
	parent.insertNodeAfter(oldID, sep, newID)
	if err := t.setParent(newID, parentID); err != nil {
		t.pool.UnpinPage(parentID, true)
		return err
	}

	if parent.size() <= parent.maxSize() {
		t.pool.UnpinPage(parentID, true)
		return nil
	}

	split, err := t.splitInternal(parent)
	if err != nil {
		t.pool.UnpinPage(parentID, true)
		return err
	}
	splitSep := split.keyAt(0)
	splitID := split.pageID()
	grandID := parent.parentID()
	t.pool.UnpinPage(splitID, true)
	t.pool.UnpinPage(parentID, true)
	return t.insertIntoParent(parentID, grandID, splitSep, splitID)
}

// setParent rewrites one page's parent pointer.
func (t *BPlusTree) setParent(id, parent pager.PageID) error {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return errors.Wrapf(err, "fetch page %d", id)
	}
	node{page: page}.setParentID(parent)
	t.pool.UnpinPage(id, true)
	return nil
}

// coalesceOrRedistribute restores the minimum-occupancy invariant for
// an underflowing node. The return value reports whether the caller
// must delete the node's page (it was merged into a left sibling).
func (t *BPlusTree) coalesceOrRedistribute(n node) (bool, error) {
	if n.isRoot() {
		return t.adjustRoot(n)
	}

	parentPage, err := t.pool.FetchPage(n.parentID())
	if err != nil {
		return false, errors.Wrapf(err, "fetch parent %d", n.parentID())
	}
	parent := asInternal(parentPage)
	idx := parent.valueIndex(n.pageID())
	if idx < 0 {
		t.pool.UnpinPage(parentPage.ID(), false)
		return false, errors.Errorf("page %d not found in parent %d", n.pageID(), parentPage.ID())
	}

	// the last child pairs with its left sibling, everyone else with
	// the right; either way both pages share this parent
	useLeft := idx == parent.size()-1
	sibIdx := idx + 1
	if useLeft {
		sibIdx = idx - 1
	}
	sibPage, err := t.pool.FetchPage(parent.valueAt(sibIdx))
	if err != nil {
		t.pool.UnpinPage(parentPage.ID(), false)
		return false, errors.Wrapf(err, "fetch sibling %d", parent.valueAt(sibIdx))
	}

	deleted := false
	coalesced := false
	sibDeleted := false

	if n.isLeaf() {
		leaf := leafNode{n}
		sib := leafNode{node{page: sibPage}}
		if sib.size()+leaf.size() <= leaf.maxSize() {
			// merge the right-hand page into the left-hand one so the
			// sibling chain mends in one step
			if useLeft {
				leaf.moveAllTo(sib)
				sib.setNextPageID(leaf.nextPageID())
				parent.remove(idx)
				deleted = true
			} else {
				sib.moveAllTo(leaf)
				leaf.setNextPageID(sib.nextPageID())
				parent.remove(sibIdx)
				sibDeleted = true
			}
			coalesced = true
		} else {
			if useLeft {
				sib.moveLastToFrontOf(leaf)
				parent.setKeyAt(idx, leaf.keyAt(0))
			} else {
				sib.moveFirstToEndOf(leaf)
				parent.setKeyAt(sibIdx, sib.keyAt(0))
			}
		}
	} else {
		me := internalNode{n}
		sib := internalNode{node{page: sibPage}}
		if sib.size()+me.size() < me.maxSize() {
			if useLeft {
				if err = me.moveAllTo(sib, parent.keyAt(idx), t.pool); err == nil {
					parent.remove(idx)
					deleted = true
					coalesced = true
				}
			} else {
				if err = sib.moveAllTo(me, parent.keyAt(sibIdx), t.pool); err == nil {
					parent.remove(sibIdx)
					sibDeleted = true
					coalesced = true
				}
			}
		} else {
			if useLeft {
				if err = sib.moveLastToFrontOf(me, parent.keyAt(idx), t.pool); err == nil {
					parent.setKeyAt(idx, me.keyAt(0))
				}
			} else {
				if err = sib.moveFirstToEndOf(me, parent.keyAt(sibIdx), t.pool); err == nil {
					parent.setKeyAt(sibIdx, sib.keyAt(0))
				}
			}
		}
	}

	t.pool.UnpinPage(sibPage.ID(), true)
	if sibDeleted {
		if _, derr := t.pool.DeletePage(sibPage.ID()); err == nil && derr != nil {
			err = derr
		}
	}

	parentDeleted := false
	if err == nil && coalesced && parent.size() < parent.minSize() {
		parentDeleted, err = t.coalesceOrRedistribute(parent.node)
	}
	t.pool.UnpinPage(parentPage.ID(), true)
	if parentDeleted {
		if _, derr := t.pool.DeletePage(parentPage.ID()); err == nil && derr != nil {
			err = derr
		}
	}
	return deleted, err
}

// adjustRoot handles the two root special cases: an internal root left
// with a single child collapses onto it, and a leaf root emptied of its
// last entry dissolves the tree. Returns whether the old root page
// should be deleted by the caller.
func (t *BPlusTree) adjustRoot(root node) (bool, error) {
	if !root.isLeaf() && root.size() == 1 {
		child := internalNode{root}.removeAndReturnOnlyChild()
		page, err := t.pool.FetchPage(child)
		if err != nil {
			return false, errors.Wrapf(err, "fetch new root %d", child)
		}
		node{page: page}.setParentID(pager.InvalidPageID)
		t.pool.UnpinPage(child, true)
		t.root = child
		return true, t.updateRootPageID(false)
	}
	if root.isLeaf() && root.size() == 0 {
		t.root = pager.InvalidPageID
		return true, t.updateRootPageID(false)
	}
	return false, nil
}

// updateRootPageID persists the current root under the index name in
// the header page. insert registers the name on first installation.
func (t *BPlusTree) updateRootPageID(insert bool) error {
	page, err := t.pool.FetchPage(pager.HeaderPageID)
	if err != nil {
		return errors.Wrap(err, "fetch header page")
	}
	header := pager.NewHeaderPage(page)
	if !insert || !header.InsertRecord(t.name, t.root) {
		header.UpdateRecord(t.name, t.root)
	}
	t.pool.UnpinPage(pager.HeaderPageID, true)
	return nil
}

package btree

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"bpdb/internal/pager"
)

// internalNode lays an ordered (key, child) record array over a page
// buffer. Slot 0 carries only a child pointer; its key field is unused
// except transiently: during merges the separator pulled from the parent
// lands there before the entries move, and after a split or a
// moveLastToFrontOf it holds the key the caller promotes into the parent.
type internalNode struct {
	node
}

func asInternal(p *pager.Page) internalNode {
	return internalNode{node{page: p}}
}

func (n internalNode) init(id, parent pager.PageID, maxSize int) {
	n.setPageType(internalPage)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.setPageID(id)
	n.setParentID(parent)
}

func (n internalNode) entryOffset(i int) int {
	return nodeHeaderSize + i*internalEntrySize
}

func (n internalNode) keyAt(i int) uint64 {
	return binary.LittleEndian.Uint64(n.data()[n.entryOffset(i):])
}

func (n internalNode) setKeyAt(i int, key uint64) {
	binary.LittleEndian.PutUint64(n.data()[n.entryOffset(i):], key)
}

func (n internalNode) valueAt(i int) pager.PageID {
	off := n.entryOffset(i) + 8
	return pager.PageID(int32(binary.LittleEndian.Uint32(n.data()[off:])))
}

func (n internalNode) setValueAt(i int, v pager.PageID) {
	off := n.entryOffset(i) + 8
	binary.LittleEndian.PutUint32(n.data()[off:], uint32(int32(v)))
}

// lookup returns the child whose subtree covers key. The search runs
// over [1, size); slot 0 has no key.
func (n internalNode) lookup(key uint64) pager.PageID {
	lo, hi := 1, n.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.keyAt(mid) > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return n.valueAt(lo - 1)
}

// valueIndex finds the slot holding child id, -1 if absent.
func (n internalNode) valueIndex(id pager.PageID) int {
	for i := 0; i < n.size(); i++ {
		if n.valueAt(i) == id {
			return i
		}
	}
	return -1
}

// populateNewRoot seeds a fresh root with two children around one
// separator.
func (n internalNode) populateNewRoot(left pager.PageID, key uint64, right pager.PageID) {
	n.setValueAt(0, left)
	n.setKeyAt(1, key)
	n.setValueAt(1, right)
	n.setSize(2)
}

// insertNodeAfter places (key, newID) immediately after the slot whose
// child is old. Returns the new size.
func (n internalNode) insertNodeAfter(old pager.PageID, key uint64, newID pager.PageID) int {
	i := n.valueIndex(old) + 1
	n.shiftRight(i)
	n.setKeyAt(i, key)
	n.setValueAt(i, newID)
	n.incSize(1)
	return n.size()
}

func (n internalNode) shiftRight(i int) {
	start := n.entryOffset(i)
	end := n.entryOffset(n.size())
	copy(n.data()[start+internalEntrySize:end+internalEntrySize], n.data()[start:end])
}

// remove drops the entry at index i, closing the gap.
func (n internalNode) remove(i int) {
	start := n.entryOffset(i)
	end := n.entryOffset(n.size())
	copy(n.data()[start:], n.data()[start+internalEntrySize:end])
	n.incSize(-1)
}

// removeAndReturnOnlyChild empties the page and hands back its sole
// child pointer. Only meaningful during root collapse.
func (n internalNode) removeAndReturnOnlyChild() pager.PageID {
	child := n.valueAt(0)
	n.setSize(0)
	return child
}

// adopt rewrites a child's parent reference to this node, persisting
// the change through the pool.
func (n internalNode) adopt(pool *pager.BufferPool, child pager.PageID) error {
	page, err := pool.FetchPage(child)
	if err != nil {
		return errors.Wrapf(err, "adopt child %d", child)
	}
	node{page: page}.setParentID(n.pageID())
	pool.UnpinPage(child, true)
	return nil
}

// moveHalfTo moves the upper half of the entries to an empty recipient,
// reparenting each moved child.
func (n internalNode) moveHalfTo(dst internalNode, pool *pager.BufferPool) error {
	half := n.size() / 2
	for i := half; i < n.size(); i++ {
		if err := dst.adopt(pool, n.valueAt(i)); err != nil {
			return err
		}
	}
	copy(dst.data()[dst.entryOffset(dst.size()):], n.data()[n.entryOffset(half):n.entryOffset(n.size())])
	dst.incSize(n.size() - half)
	n.setSize(half)
	return nil
}

// moveAllTo appends every entry to dst, reparenting children. The
// separator from the parent overwrites the dummy slot-0 key first so
// the merged page keeps a complete key sequence.
func (n internalNode) moveAllTo(dst internalNode, middleKey uint64, pool *pager.BufferPool) error {
	n.setKeyAt(0, middleKey)
	for i := 0; i < n.size(); i++ {
		if err := dst.adopt(pool, n.valueAt(i)); err != nil {
			return err
		}
	}
	copy(dst.data()[dst.entryOffset(dst.size()):], n.data()[n.entryOffset(0):n.entryOffset(n.size())])
	dst.incSize(n.size())
	n.setSize(0)
	return nil
}

// moveFirstToEndOf rotates this page's first child to the tail of dst.
// The moved entry takes middleKey from the parent as its key; this
// page's new slot 0 becomes the dummy.
func (n internalNode) moveFirstToEndOf(dst internalNode, middleKey uint64, pool *pager.BufferPool) error {
	child := n.valueAt(0)
	if err := dst.adopt(pool, child); err != nil {
		return err
	}
	dst.setKeyAt(dst.size(), middleKey)
	dst.setValueAt(dst.size(), child)
	dst.incSize(1)
	copy(n.data()[n.entryOffset(0):], n.data()[n.entryOffset(1):n.entryOffset(n.size())])
	n.incSize(-1)
	return nil
}

// moveLastToFrontOf rotates this page's last entry to the head of dst.
// The entry's key stays in dst's slot 0 (readable by the caller as the
// new separator); the previous slot 0 inherits middleKey.
func (n internalNode) moveLastToFrontOf(dst internalNode, middleKey uint64, pool *pager.BufferPool) error {
	last := n.size() - 1
	k := n.keyAt(last)
	child := n.valueAt(last)
	if err := dst.adopt(pool, child); err != nil {
		return err
	}
	dst.shiftRight(0)
	dst.setKeyAt(0, k)
	dst.setValueAt(0, child)
	dst.incSize(1)
	dst.setKeyAt(1, middleKey)
	n.incSize(-1)
	return nil
}

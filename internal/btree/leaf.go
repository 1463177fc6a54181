package btree

import (
	"encoding/binary"

	"bpdb/internal/pager"
)

// leafNode lays an ordered (key, RID) record array over a page buffer.
// All mutations are in place; the pool only ever sees raw bytes.
type leafNode struct {
	node
}

func asLeaf(p *pager.Page) leafNode {
	return leafNode{node{page: p}}
}

func (l leafNode) init(id, parent pager.PageID, maxSize int) {
	l.setPageType(leafPage)
	l.setSize(0)
	l.setMaxSize(maxSize)
	l.setPageID(id)
	l.setParentID(parent)
	l.setNextPageID(pager.InvalidPageID)
}

func (l leafNode) nextPageID() pager.PageID {
	return pager.PageID(int32(binary.LittleEndian.Uint32(l.data()[offNext:])))
}

func (l leafNode) setNextPageID(id pager.PageID) {
	binary.LittleEndian.PutUint32(l.data()[offNext:], uint32(int32(id)))
}

func (l leafNode) entryOffset(i int) int {
	return nodeHeaderSize + i*leafEntrySize
}

func (l leafNode) keyAt(i int) uint64 {
	return binary.LittleEndian.Uint64(l.data()[l.entryOffset(i):])
}

func (l leafNode) setKeyAt(i int, key uint64) {
	binary.LittleEndian.PutUint64(l.data()[l.entryOffset(i):], key)
}

func (l leafNode) valueAt(i int) RID {
	off := l.entryOffset(i) + 8
	return RID{
		PageID: pager.PageID(int32(binary.LittleEndian.Uint32(l.data()[off:]))),
		Slot:   binary.LittleEndian.Uint32(l.data()[off+4:]),
	}
}

func (l leafNode) setValueAt(i int, v RID) {
	off := l.entryOffset(i) + 8
	binary.LittleEndian.PutUint32(l.data()[off:], uint32(int32(v.PageID)))
	binary.LittleEndian.PutUint32(l.data()[off+4:], v.Slot)
}

func (l leafNode) item(i int) (uint64, RID) {
	return l.keyAt(i), l.valueAt(i)
}

// keyIndex returns the first index whose key is >= key.
func (l leafNode) keyIndex(key uint64) int {
	lo, hi := 0, l.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.keyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (l leafNode) lookup(key uint64) (RID, bool) {
	i := l.keyIndex(key)
	if i < l.size() && l.keyAt(i) == key {
		return l.valueAt(i), true
	}
	return RID{}, false
}

// insert places the entry at its sorted position. Returns the new size
// and false when the key is already present.
func (l leafNode) insert(key uint64, value RID) (int, bool) {
	i := l.keyIndex(key)
	if i < l.size() && l.keyAt(i) == key {
		return l.size(), false
	}
	l.shiftRight(i)
	l.setKeyAt(i, key)
	l.setValueAt(i, value)
	l.incSize(1)
	return l.size(), true
}

// remove deletes the entry for key, closing the gap. Returns false on
// a miss.
func (l leafNode) remove(key uint64) bool {
	i := l.keyIndex(key)
	if i >= l.size() || l.keyAt(i) != key {
		return false
	}
	l.removeAt(i)
	return true
}

func (l leafNode) removeAt(i int) {
	start := l.entryOffset(i)
	end := l.entryOffset(l.size())
	copy(l.data()[start:], l.data()[start+leafEntrySize:end])
	l.incSize(-1)
}

// shiftRight opens a one-entry gap at index i.
func (l leafNode) shiftRight(i int) {
	start := l.entryOffset(i)
	end := l.entryOffset(l.size())
	copy(l.data()[start+leafEntrySize:end+leafEntrySize], l.data()[start:end])
}

// moveHalfTo moves the upper half of the entries to the start of an
// empty recipient.
func (l leafNode) moveHalfTo(dst leafNode) {
	moved := l.size() / 2
	start := l.size() - moved
	copy(dst.data()[dst.entryOffset(0):], l.data()[l.entryOffset(start):l.entryOffset(l.size())])
	dst.setSize(moved)
	l.setSize(start)
}

// moveAllTo appends every entry to dst and empties this page. Used for
// merging a right sibling into its left neighbor.
func (l leafNode) moveAllTo(dst leafNode) {
	copy(dst.data()[dst.entryOffset(dst.size()):], l.data()[l.entryOffset(0):l.entryOffset(l.size())])
	dst.incSize(l.size())
	l.setSize(0)
}

func (l leafNode) moveFirstToEndOf(dst leafNode) {
	k, v := l.item(0)
	dst.setKeyAt(dst.size(), k)
	dst.setValueAt(dst.size(), v)
	dst.incSize(1)
	l.removeAt(0)
}

func (l leafNode) moveLastToFrontOf(dst leafNode) {
	k, v := l.item(l.size() - 1)
	dst.shiftRight(0)
	dst.setKeyAt(0, k)
	dst.setValueAt(0, v)
	dst.incSize(1)
	l.incSize(-1)
}

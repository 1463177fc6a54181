package btree

import (
	"encoding/binary"

	"bpdb/internal/pager"
)

type pageType uint8

const (
	leafPage     pageType = 1
	internalPage pageType = 2
)

// Shared tree-page header, laid out at the start of every node page.
// The page type tag decides whether leafNode or internalNode accessors
// may be layered on top; nothing reads entries without checking it.
const (
	offPageType    = 0
	offSize        = 4
	offMaxSize     = 8
	offPageID      = 12
	offParentID    = 16
	offNext        = 20 // leaf only
	nodeHeaderSize = 24

	leafEntrySize     = 16 // uint64 key + RID
	internalEntrySize = 12 // uint64 key + child page id
)

// Derived capacities for a 4 KiB page. The internal capacity reserves
// one entry of headroom: an internal page briefly holds maxSize+1
// entries between insertNodeAfter and the split that follows.
const (
	DefaultLeafMaxSize     = (pager.PAGE_SIZE - nodeHeaderSize) / leafEntrySize
	DefaultInternalMaxSize = (pager.PAGE_SIZE-nodeHeaderSize)/internalEntrySize - 1
)

// RID is the fixed-width record identifier stored in leaf entries.
type RID struct {
	PageID pager.PageID
	Slot   uint32
}

type node struct {
	page *pager.Page
}

func (n node) data() []byte { return n.page.Data() }

func (n node) pageType() pageType     { return pageType(n.data()[offPageType]) }
func (n node) setPageType(t pageType) { n.data()[offPageType] = byte(t) }
func (n node) isLeaf() bool           { return n.pageType() == leafPage }

func (n node) size() int {
	return int(int32(binary.LittleEndian.Uint32(n.data()[offSize:])))
}

func (n node) setSize(s int) {
	binary.LittleEndian.PutUint32(n.data()[offSize:], uint32(int32(s)))
}

func (n node) incSize(d int) { n.setSize(n.size() + d) }

func (n node) maxSize() int {
	return int(int32(binary.LittleEndian.Uint32(n.data()[offMaxSize:])))
}

func (n node) setMaxSize(s int) {
	binary.LittleEndian.PutUint32(n.data()[offMaxSize:], uint32(int32(s)))
}

func (n node) pageID() pager.PageID {
	return pager.PageID(int32(binary.LittleEndian.Uint32(n.data()[offPageID:])))
}

func (n node) setPageID(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.data()[offPageID:], uint32(int32(id)))
}

func (n node) parentID() pager.PageID {
	return pager.PageID(int32(binary.LittleEndian.Uint32(n.data()[offParentID:])))
}

func (n node) setParentID(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.data()[offParentID:], uint32(int32(id)))
}

func (n node) isRoot() bool { return n.parentID() == pager.InvalidPageID }

// minSize is the underflow threshold: ceil(max/2) for leaves,
// floor(max/2) for internals (the smaller half of an internal split of
// maxSize+1 entries never falls below it). The root is exempt.
func (n node) minSize() int {
	if n.isLeaf() {
		return (n.maxSize() + 1) / 2
	}
	return n.maxSize() / 2
}

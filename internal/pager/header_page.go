package pager

import (
	"bytes"
	"encoding/binary"
)

// The header page (page 0) holds a directory of index name -> root page
// id records so an index can be re-bound across restarts.
//
// Layout: record count (int32) followed by fixed-size records of a
// zero-padded name and the root page id.
const (
	headerCountOffset = 0
	headerRecordStart = 4
	headerNameSize    = 32
	headerRecordSize  = headerNameSize + 4
	headerMaxRecords  = (PAGE_SIZE - headerRecordStart) / headerRecordSize
)

// HeaderPage is a typed view over a pinned header page. It does not
// manage the pin; callers fetch and unpin through the pool as usual.
type HeaderPage struct {
	page *Page
}

func NewHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{page: p}
}

// InsertRecord registers a new index. Returns false when the name is
// already present, too long, or the directory is full.
func (h *HeaderPage) InsertRecord(name string, root PageID) bool {
	if len(name) > headerNameSize || h.find(name) >= 0 {
		return false
	}
	count := h.recordCount()
	if count >= headerMaxRecords {
		return false
	}
	h.writeRecord(count, name, root)
	h.setRecordCount(count + 1)
	return true
}

// UpdateRecord rebinds an existing index to a new root page id.
func (h *HeaderPage) UpdateRecord(name string, root PageID) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	h.writeRecord(i, name, root)
	return true
}

// DeleteRecord drops an index from the directory.
func (h *HeaderPage) DeleteRecord(name string) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	count := h.recordCount()
	data := h.page.Data()
	start := headerRecordStart + i*headerRecordSize
	end := headerRecordStart + count*headerRecordSize
	copy(data[start:], data[start+headerRecordSize:end])
	h.setRecordCount(count - 1)
	return true
}

// RootPageID looks up the root page id registered under name.
func (h *HeaderPage) RootPageID(name string) (PageID, bool) {
	i := h.find(name)
	if i < 0 {
		return InvalidPageID, false
	}
	return h.rootAt(i), true
}

func (h *HeaderPage) recordCount() int {
	return int(int32(binary.LittleEndian.Uint32(h.page.Data()[headerCountOffset:])))
}

func (h *HeaderPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.page.Data()[headerCountOffset:], uint32(int32(n)))
}

func (h *HeaderPage) find(name string) int {
	for i := 0; i < h.recordCount(); i++ {
		if h.nameAt(i) == name {
			return i
		}
	}
	return -1
}

func (h *HeaderPage) nameAt(i int) string {
	off := headerRecordStart + i*headerRecordSize
	raw := h.page.Data()[off : off+headerNameSize]
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw)
}

func (h *HeaderPage) rootAt(i int) PageID {
	off := headerRecordStart + i*headerRecordSize + headerNameSize
	return PageID(int32(binary.LittleEndian.Uint32(h.page.Data()[off:])))
}

func (h *HeaderPage) writeRecord(i int, name string, root PageID) {
	off := headerRecordStart + i*headerRecordSize
	data := h.page.Data()
	nameField := data[off : off+headerNameSize]
	for j := range nameField {
		nameField[j] = 0
	}
	copy(nameField, name)
	binary.LittleEndian.PutUint32(data[off+headerNameSize:], uint32(int32(root)))
}

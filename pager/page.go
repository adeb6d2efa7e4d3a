// Package pager manages the persistent page-identifier space and
// shuttles pages between the buffer pool and a backing byte stream
// (spec §4.2, §4.3).
package pager

import (
	"github.com/arboredb/arbor/buffer"
	"github.com/arboredb/arbor/common"
)

// PageType distinguishes the closed set of page kinds (spec §3).
type PageType byte

const (
	Uninitialized PageType = 0
	Free          PageType = 1
	Root          PageType = 2
	Collection    PageType = 3
	BTree         PageType = 4
	Overflow      PageType = 5
	Raw           PageType = 6
)

// Page header layout (spec §6), little-endian, fixed offsets. This
// implementation resolves the "18 vs 88 byte body offset" Open Question
// in spec.md §9 by using the byte-exact field layout spec.md §6 gives,
// which leaves no ambiguity about where the header ends.
const (
	offID       = 0  // u64
	offNonce    = 8  // u16
	offBodyPtr  = 10 // u32
	offType     = 14 // u8
	offParentID = 15 // u64

	// HeaderSize is the fixed page header size; body_ptr always equals
	// this in pages created by this pager.
	HeaderSize = offParentID + 8 // 23
)

// Page is a typed view over one page-sized array cell: a fixed header
// followed by a body, per spec §4.3.
type Page struct {
	id   common.PageID
	cell buffer.ArrayCell[byte]
}

func newPage(id common.PageID, cell buffer.ArrayCell[byte]) *Page {
	return &Page{id: id, cell: cell}
}

// ID returns the page's persistent identifier.
func (p *Page) ID() common.PageID { return p.id }

// GetID reads the id field stamped in the header bytes (should equal ID()
// for any page produced by this pager; exposed for round-trip checks).
func (p *Page) GetID() common.PageID { return common.GetPageID(p.cell.Get()[offID:]) }

func (p *Page) setID(id common.PageID) { common.PutPageID(p.cell.GetMut()[offID:], id) }

// GetNonce returns the randomized value stamped at page creation.
func (p *Page) GetNonce() common.Nonce { return common.GetNonce(p.cell.Get()[offNonce:]) }

// SetNonce overwrites the nonce.
func (p *Page) SetNonce(n common.Nonce) { common.PutNonce(p.cell.GetMut()[offNonce:], n) }

// GetBodyPtr returns the stored body offset (always HeaderSize for pages
// produced by this pager, but read back from bytes for pages loaded from
// disk so a stale foreign layout would be visible rather than silently
// assumed).
func (p *Page) GetBodyPtr() uint32 {
	return common.Endian.Uint32(p.cell.Get()[offBodyPtr:])
}

func (p *Page) setBodyPtr(v uint32) {
	common.Endian.PutUint32(p.cell.GetMut()[offBodyPtr:], v)
}

// GetType returns the page's type tag.
func (p *Page) GetType() PageType { return PageType(p.cell.Get()[offType]) }

// SetType overwrites the page's type tag.
func (p *Page) SetType(t PageType) { p.cell.GetMut()[offType] = byte(t) }

// GetParent returns the page's optional parent id (common.NoPage if
// absent).
func (p *Page) GetParent() common.PageID { return common.GetPageID(p.cell.Get()[offParentID:]) }

// SetParent overwrites the page's optional parent id.
func (p *Page) SetParent(id common.PageID) { common.PutPageID(p.cell.GetMut()[offParentID:], id) }

// Body returns a read-only view of the page's body, the bytes after the
// fixed header.
func (p *Page) Body() []byte { return p.cell.Get()[HeaderSize:] }

// BodyMut returns a mutable view of the page's body, raising the
// modified flag.
func (p *Page) BodyMut() []byte { return p.cell.GetMut()[HeaderSize:] }

// Raw returns the full page bytes, header included, for disk I/O.
func (p *Page) Raw() []byte { return p.cell.Get() }

// RawMut returns the full page bytes, header included, marking the page
// modified.
func (p *Page) RawMut() []byte { return p.cell.GetMut() }

// IsModified reports whether the page has been written to since the last
// flush.
func (p *Page) IsModified() bool { return p.cell.Raw().IsModified() }

// dropModificationFlag clears the modified flag; called by the pager
// after a successful flush of this page.
func (p *Page) dropModificationFlag() { p.cell.Raw().DropModificationFlag() }

// AssertType returns a WrongPageTypeError-wrapped error unless the page
// carries the expected type.
func (p *Page) AssertType(want PageType) error {
	got := p.GetType()
	if got != want {
		return &common.WrongPageTypeError{Expected: byte(want), Got: byte(got)}
	}
	return nil
}

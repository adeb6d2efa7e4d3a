// Package overflow implements variable-length values that outgrow the
// fixed-size region that hosts them: a Source header embedded in some
// host page (e.g. a B+ tree leaf cell) followed by a chain of dedicated
// Overflow pages, read and written through a seekable VarStream
// (spec §4.4).
package overflow

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/arboredb/arbor/common"
	"github.com/arboredb/arbor/pager"
)

// Source header layout, embedded at the start of whatever region a
// caller carves out for a Var value (spec §6): next@0 u64, in_size@8
// u16, total_size@10 u64, payload@18.
const (
	sourceOffNext  = 0
	sourceOffInSz  = 8
	sourceOffTotal = 10

	// SourceHeaderSize is the fixed header size preceding a Source's
	// in-page payload.
	SourceHeaderSize = 18
)

// Overflow page body layout (spec §6): in_size@0 u16, next@2 u64,
// payload@12.
const (
	ovOffInSz = 0
	ovOffNext = 2

	// OverflowHeaderSize is the fixed header size preceding an overflow
	// page's payload.
	OverflowHeaderSize = 12
)

// Source is a view over the Var header embedded at the start of a
// caller-supplied byte region. It does not own a page; the caller
// decides where the region lives (spec §4.4: "embedded wherever its
// host structure places it").
type Source struct {
	buf []byte
}

// NewSource wraps buf, which must be at least SourceHeaderSize bytes,
// as a Var source header plus in-region payload.
func NewSource(buf []byte) Source { return Source{buf: buf} }

// Next returns the first overflow page in the chain, or common.NoPage
// if the whole value fits in the source region.
func (s Source) Next() common.PageID { return common.GetPageID(s.buf[sourceOffNext:]) }

// SetNext links the source to its first overflow page.
func (s Source) SetNext(id common.PageID) { common.PutPageID(s.buf[sourceOffNext:], id) }

// InSize returns how many payload bytes are actually used within this
// region (<= len(Body())).
func (s Source) InSize() uint16 { return common.Endian.Uint16(s.buf[sourceOffInSz:]) }

// SetInSize overwrites the in-region used-byte count.
func (s Source) SetInSize(n uint16) { common.Endian.PutUint16(s.buf[sourceOffInSz:], n) }

// TotalSize returns the logical length of the whole chained value.
func (s Source) TotalSize() uint64 { return common.Endian.Uint64(s.buf[sourceOffTotal:]) }

// SetTotalSize overwrites the logical length of the whole value.
func (s Source) SetTotalSize(n uint64) { common.Endian.PutUint64(s.buf[sourceOffTotal:], n) }

// Body returns the in-region payload bytes, after the fixed header.
func (s Source) Body() []byte { return s.buf[SourceHeaderSize:] }

// BodyMut is an alias of Body: the header and payload share one
// underlying buf, so there is no separate read/write view to mark.
func (s Source) BodyMut() []byte { return s.buf[SourceHeaderSize:] }

func (s Source) pushInSizeCursor(n int) {
	if uint16(n) > s.InSize() {
		s.SetInSize(uint16(n))
	}
}

func (s Source) pushTotalSizeCursor(n uint64) {
	if n > s.TotalSize() {
		s.SetTotalSize(n)
	}
}

// OverflowPage is a view over a pager page of type pager.Overflow: a
// chain continuation holding the next value bytes once the source (or
// a previous overflow page) fills up.
type OverflowPage struct {
	page *pager.Page
}

func newOverflowPage(page *pager.Page) OverflowPage { return OverflowPage{page: page} }

// ID returns the backing page's identifier.
func (o OverflowPage) ID() common.PageID { return o.page.ID() }

// Next returns the next overflow page in the chain, or common.NoPage if
// this is the tail.
func (o OverflowPage) Next() common.PageID { return common.GetPageID(o.page.Body()[ovOffNext:]) }

// SetNext links this page to its successor.
func (o OverflowPage) SetNext(id common.PageID) {
	common.PutPageID(o.page.BodyMut()[ovOffNext:], id)
}

// InSize returns how many payload bytes are actually used on this page.
func (o OverflowPage) InSize() uint16 { return common.Endian.Uint16(o.page.Body()[ovOffInSz:]) }

// SetInSize overwrites the in-page used-byte count.
func (o OverflowPage) SetInSize(n uint16) {
	common.Endian.PutUint16(o.page.BodyMut()[ovOffInSz:], n)
}

// Body returns the page's payload bytes, after the fixed header.
func (o OverflowPage) Body() []byte { return o.page.Body()[OverflowHeaderSize:] }

// BodyMut returns a mutable view of the page's payload bytes.
func (o OverflowPage) BodyMut() []byte { return o.page.BodyMut()[OverflowHeaderSize:] }

func (o OverflowPage) pushInSizeCursor(n int) {
	if uint16(n) > o.InSize() {
		o.SetInSize(uint16(n))
	}
}

// section is the common shape Source and OverflowPage both satisfy,
// letting VarStream walk the chain without caring which kind of node it
// is currently on.
type section interface {
	Next() common.PageID
	SetNext(common.PageID)
	InSize() uint16
	Body() []byte
	BodyMut() []byte
	pushInSizeCursor(int)
}

// VarStream is a seekable, readable, writable cursor over a value
// chained through a Source and zero or more Overflow pages
// (spec §4.4's read/write/seek algorithm).
type VarStream struct {
	pgr  *pager.Pager
	head Source

	current       section
	sectionCursor uint64
	varCursor     uint64
}

// NewVarStream opens a stream over head, positioned at offset 0.
func NewVarStream(p *pager.Pager, head Source) *VarStream {
	return &VarStream{pgr: p, head: head, current: head}
}

func (v *VarStream) restart() {
	v.current = v.head
	v.sectionCursor = 0
	v.varCursor = 0
}

func (v *VarStream) advance() error {
	next := v.current.Next()
	if next.IsNone() {
		return io.EOF
	}
	page, err := v.pgr.GetPage(next)
	if err != nil {
		return fmt.Errorf("overflow: loading continuation page %d: %w", next, err)
	}
	if err := page.AssertType(pager.Overflow); err != nil {
		return err
	}
	v.current = newOverflowPage(page)
	return nil
}

func (v *VarStream) walkTo(dest uint64) error {
	v.restart()
	for v.varCursor != dest {
		size := uint64(v.current.InSize())
		if v.varCursor <= dest && dest <= v.varCursor+size {
			v.sectionCursor = dest - v.varCursor
			v.varCursor = dest
			continue
		}
		v.varCursor += size
		if err := v.advance(); err != nil {
			return fmt.Errorf("overflow: seeking to %d: %w", dest, common.ErrEndOfStream)
		}
	}
	return nil
}

// Seek repositions the stream's logical cursor, per io.Seeker semantics,
// bounded by the value's total size (spec §4.4).
func (v *VarStream) Seek(offset int64, whence int) (int64, error) {
	var dest int64
	switch whence {
	case io.SeekStart:
		dest = offset
	case io.SeekEnd:
		dest = int64(v.head.TotalSize()) + offset
	case io.SeekCurrent:
		dest = int64(v.varCursor) + offset
	default:
		return 0, errors.New("overflow: invalid whence")
	}

	if dest < 0 || uint64(dest) > v.head.TotalSize() {
		return 0, common.ErrEndOfStream
	}
	if err := v.walkTo(uint64(dest)); err != nil {
		return 0, err
	}
	return int64(v.varCursor), nil
}

// Read fills buf from the current position, following the chain across
// page boundaries as needed, and returns io.EOF once the value's total
// size is reached.
func (v *VarStream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	body := v.current.Body()
	logicalLen := min(len(body), int(v.current.InSize()))
	rem := logicalLen - int(v.sectionCursor)
	if rem < 0 {
		rem = 0
	}
	n := min(rem, len(buf))

	copy(buf[:n], body[v.sectionCursor:int(v.sectionCursor)+n])
	v.sectionCursor += uint64(n)
	v.varCursor += uint64(n)

	if n == len(buf) {
		return n, nil
	}

	if v.varCursor >= v.head.TotalSize() {
		return n, io.EOF
	}

	if err := v.advance(); err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, err
	}
	v.sectionCursor = 0

	more, err := v.Read(buf[n:])
	return n + more, err
}

// Write stores buf starting at the current position, allocating new
// overflow pages from the pager as the chain runs out of room
// (spec §4.4).
func (v *VarStream) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	body := v.current.BodyMut()
	rem := len(body) - int(v.sectionCursor)
	n := min(rem, len(buf))

	copy(body[v.sectionCursor:int(v.sectionCursor)+n], buf[:n])
	v.current.pushInSizeCursor(int(v.sectionCursor) + n)

	v.sectionCursor += uint64(n)
	v.varCursor += uint64(n)
	v.head.pushTotalSizeCursor(v.varCursor)

	if n == len(buf) {
		return n, nil
	}

	if v.current.Next().IsNone() {
		page, err := v.pgr.NewPage(pager.Overflow)
		if err != nil {
			return n, fmt.Errorf("overflow: allocating continuation page: %w", err)
		}
		v.current.SetNext(page.ID())
	}
	if err := v.advance(); err != nil {
		return n, err
	}
	v.sectionCursor = 0

	more, err := v.Write(buf[n:])
	return n + more, err
}

// Checksum reads the whole value from head and returns its CRC-32
// checksum, for callers that want a cheap corruption check over a
// chain spanning several pages.
func Checksum(p *pager.Pager, head Source) (uint32, error) {
	vs := NewVarStream(p, head)
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, vs); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

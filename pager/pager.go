package pager

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/arboredb/arbor/buffer"
	"github.com/arboredb/arbor/common"
)

// Stream is the seekable, addressable backing store a Pager reads pages
// from and writes pages to (spec §6: "a seekable byte stream... no
// particular transport is assumed").
type Stream interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}

const headerMagic = uint64(0x41524252_30440001) // "ARBR" + format version 1

// pagerHeader is the fixed-layout page-0 record: format version, the
// configured page size, the total page count ever allocated (next id to
// hand out, absent a free-list hit), and the head of the LIFO free-page
// chain. It deliberately does not share Page's id/nonce/type/parent
// header, since it isn't a data page at all.
const (
	hdrOffVersion   = 0
	hdrOffPageSize  = 8
	hdrOffPageCount = 16
	hdrOffFreeHead  = 24
	hdrSize         = 32
)

// Pager manages the page-identifier space: allocation, residency,
// the free-page chain, and flushing dirty pages back to the stream
// (spec §4.2, §4.3).
//
// Every page a Pager creates or loads stays resident and pinned in the
// buffer pool for the Pager's lifetime; nothing is evicted, so once the
// pool is full NewPage and GetPage fail with common.ErrBufferExhausted.
type Pager struct {
	stream   Stream
	pageSize int
	pool     *buffer.Pool
	resident map[common.PageID]*Page
	order    []common.PageID // insertion order, for deterministic Flush

	header buffer.ArrayCell[byte]

	closed bool
}

// Create initializes a brand-new pager over an empty stream, writing a
// fresh page-0 header.
func Create(stream Stream, pageSize, poolCapacityPages int) (*Pager, error) {
	pool := buffer.NewByArray[byte](pageSize, poolCapacityPages)
	header, err := buffer.AllocArrayUninit[byte](pool, hdrSize)
	if err != nil {
		return nil, fmt.Errorf("pager: allocating header: %w", err)
	}

	p := &Pager{
		stream:   stream,
		pageSize: pageSize,
		pool:     pool,
		resident: make(map[common.PageID]*Page),
		header:   header,
	}

	buf := header.GetMut()
	common.Endian.PutUint64(buf[hdrOffVersion:], headerMagic)
	common.Endian.PutUint64(buf[hdrOffPageSize:], uint64(pageSize))
	common.Endian.PutUint64(buf[hdrOffPageCount:], 1) // page 0 itself
	common.Endian.PutUint64(buf[hdrOffFreeHead:], uint64(common.NoPage))

	if err := p.Flush(); err != nil {
		return nil, err
	}
	return p, nil
}

// Open loads a pager from an existing stream, validating the page-0
// header.
func Open(stream Stream, poolCapacityPages int) (*Pager, error) {
	raw := make([]byte, hdrSize)
	if _, err := stream.ReadAt(raw, 0); err != nil {
		return nil, fmt.Errorf("pager: reading header: %w", err)
	}

	version := common.Endian.Uint64(raw[hdrOffVersion:])
	if version != headerMagic {
		return nil, common.ErrInvalidPager
	}
	pageSize := int(common.Endian.Uint64(raw[hdrOffPageSize:]))

	pool := buffer.NewByArray[byte](pageSize, poolCapacityPages)
	header, err := buffer.AllocArrayUninit[byte](pool, hdrSize)
	if err != nil {
		return nil, fmt.Errorf("pager: allocating header: %w", err)
	}
	copy(header.GetMut(), raw)
	header.Raw().DropModificationFlag()

	return &Pager{
		stream:   stream,
		pageSize: pageSize,
		pool:     pool,
		resident: make(map[common.PageID]*Page),
		header:   header,
	}, nil
}

func (p *Pager) pageCount() common.PageID {
	return common.PageID(common.Endian.Uint64(p.header.Get()[hdrOffPageCount:]))
}

func (p *Pager) setPageCount(v common.PageID) {
	common.Endian.PutUint64(p.header.GetMut()[hdrOffPageCount:], uint64(v))
}

func (p *Pager) freeHead() common.PageID {
	return common.PageID(common.Endian.Uint64(p.header.Get()[hdrOffFreeHead:]))
}

func (p *Pager) setFreeHead(v common.PageID) {
	common.Endian.PutUint64(p.header.GetMut()[hdrOffFreeHead:], uint64(v))
}

// PageSize returns the configured page size in bytes.
func (p *Pager) PageSize() int { return p.pageSize }

func (p *Pager) offsetOf(id common.PageID) int64 {
	return int64(id) * int64(p.pageSize)
}

// NewPage allocates a page, preferring the free-page chain (spec §4.2's
// LIFO reuse) over bumping the page count, and returns it resident and
// pinned in the buffer pool.
func (p *Pager) NewPage(t PageType) (*Page, error) {
	if p.closed {
		return nil, common.ErrClosed
	}

	// Reuse the free-chain head in place: GetPage returns its resident,
	// pinned cell (loading it once if it is not resident yet), so
	// allocating a fresh cell for it here would leak the old one (never
	// released back to the pool).
	if head := p.freeHead(); !head.IsNone() {
		page, err := p.GetPage(head)
		if err != nil {
			return nil, fmt.Errorf("pager: loading free-chain head %d: %w", head, err)
		}
		p.setFreeHead(common.GetPageID(page.Body()))

		buf := page.RawMut()
		for i := range buf {
			buf[i] = 0
		}
		page.setID(head)
		page.SetNonce(common.Nonce(rand.Uint32()))
		page.setBodyPtr(uint32(HeaderSize))
		page.SetType(t)
		page.SetParent(common.NoPage)
		return page, nil
	}

	id := p.pageCount()
	p.setPageCount(id + 1)

	cell, err := buffer.AllocArrayUninit[byte](p.pool, p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("pager: allocating page %d: %w", id, err)
	}
	page := newPage(id, cell)

	buf := cell.GetMut()
	for i := range buf {
		buf[i] = 0
	}
	page.setID(id)
	page.SetNonce(common.Nonce(rand.Uint32()))
	page.setBodyPtr(uint32(HeaderSize))
	page.SetType(t)
	page.SetParent(common.NoPage)

	p.addResident(page)
	return page, nil
}

// GetPage returns the page identified by id, loading it from the stream
// if it is not already resident.
func (p *Pager) GetPage(id common.PageID) (*Page, error) {
	if p.closed {
		return nil, common.ErrClosed
	}
	if page, ok := p.resident[id]; ok {
		return page, nil
	}

	cell, err := buffer.AllocArrayUninit[byte](p.pool, p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("pager: allocating page %d: %w", id, err)
	}
	if _, err := p.stream.ReadAt(cell.GetMut(), p.offsetOf(id)); err != nil {
		return nil, fmt.Errorf("pager: reading page %d: %w", id, err)
	}
	cell.Raw().DropModificationFlag()

	page := newPage(id, cell)
	if got := page.GetID(); got != id {
		return nil, fmt.Errorf("pager: page %d: %w", id, common.ErrInvalidPager)
	}
	p.addResident(page)
	return page, nil
}

func (p *Pager) addResident(page *Page) {
	if _, ok := p.resident[page.id]; !ok {
		p.order = append(p.order, page.id)
	}
	p.resident[page.id] = page
}

// DropPage releases id back to the free-page chain. The page is marked
// Free and threaded onto the head of the chain (spec §4.2: "last freed,
// first reused").
func (p *Pager) DropPage(id common.PageID) error {
	if p.closed {
		return common.ErrClosed
	}
	page, err := p.GetPage(id)
	if err != nil {
		return err
	}
	page.SetType(Free)
	page.SetParent(common.NoPage)
	common.PutPageID(page.BodyMut(), p.freeHead())
	p.setFreeHead(id)
	return nil
}

// Flush writes every modified resident page back to the stream, in the
// order pages first became resident (spec §5: flush order follows the
// buffer pool's own insertion order, not a separate eviction policy).
func (p *Pager) Flush() error {
	if p.closed {
		return common.ErrClosed
	}

	if p.header.Raw().IsModified() {
		if _, err := p.stream.WriteAt(p.header.Get(), 0); err != nil {
			return fmt.Errorf("pager: writing header: %w", err)
		}
		p.header.Raw().DropModificationFlag()
	}

	for _, id := range p.order {
		page := p.resident[id]
		if page == nil || !page.IsModified() {
			continue
		}
		if _, err := p.stream.WriteAt(page.Raw(), p.offsetOf(id)); err != nil {
			return fmt.Errorf("pager: flushing page %d: %w", id, err)
		}
		page.dropModificationFlag()
	}

	return p.stream.Sync()
}

// Close flushes and marks the pager unusable for further operations.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	if err := p.Flush(); err != nil {
		return err
	}
	p.closed = true
	return nil
}

// Stats reports allocation bookkeeping for diagnostics.
func (p *Pager) Stats() common.Stats {
	var free int64
	for id, page := range p.resident {
		if page.GetType() == Free {
			free++
		}
		_ = id
	}
	return common.Stats{
		NumPages:  int64(p.pageCount()),
		FreePages: free,
	}
}

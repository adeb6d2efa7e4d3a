// Package buffer implements the fixed-size page buffer pool (spec §4.1):
// a single contiguous byte region, partitioned into a growing singly
// linked list of equal-sized blocks, each prefixed with a small control
// header (size, refcount, lru, modified flag, free flag, next pointer).
//
// The pool hands out typed Cell[T]/ArrayCell[T] handles that pin a block
// (via refcount) and mediate the modified flag, mirroring the
// original_source/src/buffer.rs design, translated from raw pointers into
// offsets into a single []byte region addressed through unsafe.Pointer —
// the same technique the retrieved pack's mdbx wrapper
// (Giulio2002-gdbx/page.go) uses to cast page bytes onto a Go struct.
package buffer

import (
	"unsafe"

	"github.com/arboredb/arbor/common"
)

// blockHeader is the control header prefixing every block in the region.
// It is never addressed directly by callers; Cell/ArrayCell/RawCell hide
// it behind methods.
type blockHeader struct {
	size     uint64
	rc       uint32
	modified uint32
	free     uint32
	_        uint32 // padding to keep lru/next 8-byte aligned
	lru      uint64
	next     int64 // offset of next block in the region, or -1
}

const headerSize = int(unsafe.Sizeof(blockHeader{}))

func alignUp(x, align int) int {
	return (x + align - 1) &^ (align - 1)
}

func blockStride(payload int) int {
	return alignUp(headerSize, 8) + alignUp(payload, 8)
}

// Pool owns one contiguous byte region and the intrusive singly linked
// list of blocks threaded through it.
type Pool struct {
	region     []byte
	tail       int // next free byte offset for a bump allocation
	head       int // offset of the first block, or -1 if empty
	last       int // offset of the last block in the list, or -1
	blockCount int
}

// NewByType allocates a region sized for capacity blocks, each big enough
// to hold one T plus its control header.
func NewByType[T any](capacity int) *Pool {
	var zero T
	return newPool(capacity, int(unsafe.Sizeof(zero)))
}

// NewByArray allocates a region sized for capacity blocks, each big
// enough to hold arrayLen contiguous values of T plus its control header.
func NewByArray[T any](arrayLen, capacity int) *Pool {
	var zero T
	return newPool(capacity, int(unsafe.Sizeof(zero))*arrayLen)
}

func newPool(capacity, payload int) *Pool {
	stride := blockStride(payload)
	return &Pool{
		region: make([]byte, stride*capacity),
		tail:   0,
		head:   -1,
		last:   -1,
	}
}

func (p *Pool) header(off int) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&p.region[off]))
}

func (p *Pool) dataOffset(off int) int {
	return off + alignUp(headerSize, 8)
}

// blockIter walks the block list from head to the end in insertion order.
func (p *Pool) blockIter(yield func(off int) bool) {
	for off := p.head; off != -1; {
		h := p.header(off)
		if !yield(off) {
			return
		}
		off = int(h.next)
	}
}

// findFreeBlock finds the first block marked free whose size matches.
func (p *Pool) findFreeBlock(size int) int {
	found := -1
	p.blockIter(func(off int) bool {
		h := p.header(off)
		if h.free != 0 && int(h.size) == size {
			found = off
			return false
		}
		return true
	})
	return found
}

// findCandidateBlock finds the reuse candidate (rc == 0, unmodified,
// matching size) with the lowest lru value.
func (p *Pool) findCandidateBlock(size int) int {
	found := -1
	var bestLRU uint64
	p.blockIter(func(off int) bool {
		h := p.header(off)
		if h.rc == 0 && h.modified == 0 && h.free == 0 && int(h.size) == size {
			if found == -1 || h.lru < bestLRU {
				found = off
				bestLRU = h.lru
			}
		}
		return true
	})
	return found
}

// pushBlock appends a brand-new block of the given payload size by
// bumping the tail pointer. Returns -1 if the region is full.
func (p *Pool) pushBlock(size int) int {
	stride := blockStride(size)
	newTail := p.tail + stride
	if newTail > len(p.region) {
		return -1
	}

	off := p.tail
	h := p.header(off)
	*h = blockHeader{size: uint64(size), next: -1}

	if p.last != -1 {
		p.header(p.last).next = int64(off)
	} else {
		p.head = off
	}
	p.last = off
	p.tail = newTail
	p.blockCount++
	return off
}

// allocBlock implements the allocation algorithm from spec §4.1:
// reuse a matching free block, else bump-allocate, else reuse the
// least-recently-used matching candidate, else fail.
func (p *Pool) allocBlock(size int) (int, error) {
	if off := p.findFreeBlock(size); off != -1 {
		h := p.header(off)
		h.free = 0
		h.rc = 0
		h.modified = 0
		return off, nil
	}

	if off := p.pushBlock(size); off != -1 {
		return off, nil
	}

	if off := p.findCandidateBlock(size); off != -1 {
		h := p.header(off)
		h.rc = 0
		h.modified = 0
		return off, nil
	}

	return -1, common.ErrBufferExhausted
}

// RawCell is an untyped handle into a pinned block. Constructing one
// increments the block's refcount; Release decrements it.
type RawCell struct {
	pool *Pool
	off  int
}

func newRawCell(pool *Pool, off int) RawCell {
	pool.header(off).rc++
	return RawCell{pool: pool, off: off}
}

// Release unpins the cell, decrementing the block's refcount.
func (c RawCell) Release() {
	c.pool.header(c.off).rc--
}

// Rc returns the block's current refcount.
func (c RawCell) Rc() uint32 { return c.pool.header(c.off).rc }

// IsModified reports whether the block has been written to since the
// flag was last cleared.
func (c RawCell) IsModified() bool { return c.pool.header(c.off).modified != 0 }

// DropModificationFlag clears the modified flag, as the pager does once
// a dirty block has been flushed.
func (c RawCell) DropModificationFlag() { c.pool.header(c.off).modified = 0 }

// Size returns the block's payload size in bytes.
func (c RawCell) Size() int { return int(c.pool.header(c.off).size) }

// Free marks the underlying block free for reuse by a future allocation
// of the same size, ahead of the bump allocator and the lru-based
// candidate scan (spec §4.1 allocation algorithm step 1).
func (c RawCell) Free() {
	h := c.pool.header(c.off)
	h.free = 1
	h.rc = 0
	h.modified = 0
}

func (c RawCell) dataPtr() unsafe.Pointer {
	return unsafe.Pointer(&c.pool.region[c.pool.dataOffset(c.off)])
}

// markDeref applies the Cell contract's mutable-deref side effect: the
// modified flag is raised and the lru counter advances so the block is
// not picked as a reuse candidate ahead of more stale ones.
func (c RawCell) markDeref() {
	h := c.pool.header(c.off)
	h.modified = 1
	h.lru++
}

// Cell is a typed, refcounted handle to a single value of T living
// inside a buffer block whose payload size exactly matches size_of(T).
type Cell[T any] struct {
	raw RawCell
}

// Alloc allocates a block sized for T and writes value into it.
func Alloc[T any](p *Pool, value T) (Cell[T], error) {
	cell, err := AllocUninit[T](p)
	if err != nil {
		return Cell[T]{}, err
	}
	*cell.GetMut() = value
	return cell, nil
}

// AllocUninit allocates a block sized for T without initializing it.
func AllocUninit[T any](p *Pool) (Cell[T], error) {
	var zero T
	off, err := p.allocBlock(int(unsafe.Sizeof(zero)))
	if err != nil {
		return Cell[T]{}, err
	}
	return Cell[T]{raw: newRawCell(p, off)}, nil
}

// Get returns a read-only pointer to the cell's value.
func (c Cell[T]) Get() *T {
	return (*T)(c.raw.dataPtr())
}

// GetMut returns a mutable pointer to the cell's value, raising the
// modified flag and advancing the lru counter per the Cell contract.
func (c Cell[T]) GetMut() *T {
	c.raw.markDeref()
	return (*T)(c.raw.dataPtr())
}

// Raw exposes the untyped handle underneath, e.g. for Release/IsModified.
func (c Cell[T]) Raw() RawCell { return c.raw }

// Release unpins the cell.
func (c Cell[T]) Release() { c.raw.Release() }

// ArrayCell is a typed, refcounted handle to a contiguous run of T
// values living inside a buffer block whose payload size is an exact
// multiple of size_of(T).
type ArrayCell[T any] struct {
	raw RawCell
	len int
}

// AllocArrayUninit allocates a block sized for length values of T.
func AllocArrayUninit[T any](p *Pool, length int) (ArrayCell[T], error) {
	var zero T
	off, err := p.allocBlock(int(unsafe.Sizeof(zero)) * length)
	if err != nil {
		return ArrayCell[T]{}, err
	}
	return ArrayCell[T]{raw: newRawCell(p, off), len: length}, nil
}

// Get returns a read-only slice view of the array cell.
func (c ArrayCell[T]) Get() []T {
	return unsafe.Slice((*T)(c.raw.dataPtr()), c.len)
}

// GetMut returns a mutable slice view, raising the modified flag.
func (c ArrayCell[T]) GetMut() []T {
	c.raw.markDeref()
	return unsafe.Slice((*T)(c.raw.dataPtr()), c.len)
}

// Raw exposes the untyped handle underneath.
func (c ArrayCell[T]) Raw() RawCell { return c.raw }

// Release unpins the cell.
func (c ArrayCell[T]) Release() { c.raw.Release() }

// Iter yields every block's raw cell (free or in use), in insertion order, without
// pinning them (the caller decides whether to hold a reference).
func (p *Pool) Iter() []RawCell {
	var cells []RawCell
	p.blockIter(func(off int) bool {
		cells = append(cells, RawCell{pool: p, off: off})
		return true
	})
	return cells
}

// BlockCount returns the number of blocks currently tracked by the pool
// (free or in use).
func (p *Pool) BlockCount() int { return p.blockCount }

// Package common holds the types and codec helpers shared by every layer
// of the storage engine: the buffer pool, the pager, the overflow/var
// streams, the B+ tree and the Merkle B+ tree.
package common

import "encoding/binary"

// PageID identifies a page within a pager's stream. Zero is reserved for
// the pager header page and otherwise serves as the "no page" sentinel
// (an absent parent, an absent free-list head, an absent next pointer).
// Valid data pages start at 1.
type PageID uint64

// NoPage is the sentinel PageID meaning "none".
const NoPage PageID = 0

// IsNone reports whether id is the "none" sentinel.
func (id PageID) IsNone() bool { return id == NoPage }

// Offset is a byte offset, either within a page body or within the
// backing stream.
type Offset uint64

// Size is a byte count.
type Size uint64

// Nonce is the randomized value stamped on a page at creation time, used
// to detect stale copies of a page carried over from a previous layout.
type Nonce uint16

// Endian is the byte order used for every persisted field in this engine.
// All wire formats in this module are little-endian.
var Endian = binary.LittleEndian

// PutPageID writes id to buf[:8] in little-endian order.
func PutPageID(buf []byte, id PageID) { Endian.PutUint64(buf, uint64(id)) }

// GetPageID reads a PageID from buf[:8].
func GetPageID(buf []byte) PageID { return PageID(Endian.Uint64(buf)) }

// PutOffset writes an Offset to buf[:8].
func PutOffset(buf []byte, o Offset) { Endian.PutUint64(buf, uint64(o)) }

// GetOffset reads an Offset from buf[:8].
func GetOffset(buf []byte) Offset { return Offset(Endian.Uint64(buf)) }

// PutNonce writes a Nonce to buf[:2].
func PutNonce(buf []byte, n Nonce) { Endian.PutUint16(buf, uint16(n)) }

// GetNonce reads a Nonce from buf[:2].
func GetNonce(buf []byte) Nonce { return Nonce(Endian.Uint16(buf)) }

// Stats reports engine-wide bookkeeping, mirrored from the pager and
// buffer pool for diagnostic use.
type Stats struct {
	NumPages     int64
	FreePages    int64
	CacheHits    int64
	PageReads    int64
	PageWrites   int64
	BytesWritten int64
}

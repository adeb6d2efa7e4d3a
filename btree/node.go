package btree

import (
	"bytes"

	"github.com/arboredb/arbor/common"
)

// Node header layout within a pager.BTree page's body: kind@0 (1 byte),
// count@1 (u16), link@3 (PageID, 8 bytes — a leaf's right sibling, or a
// branch's "low" child), cells start at 11.
const (
	nodeOffKind  = 0
	nodeOffCount = 1
	nodeOffLink  = 3
	nodeHeaderSize = 11
)

type nodeKind byte

const (
	leafKind   nodeKind = 1
	branchKind nodeKind = 2
)

func kindOf(body []byte) nodeKind { return nodeKind(body[nodeOffKind]) }

// leafCell is one (key, value) pair of a leaf node.
type leafCell struct {
	key   []byte
	value []byte
}

// leafNode is the decoded form of a leaf page: its cells in ascending
// key order, plus the right-sibling link used for range scans.
type leafNode struct {
	cells []leafCell
	next  common.PageID
}

// branchCell is one (separator key, child page) pair of a branch node.
// Per the convention this implementation follows throughout: cell(K, P)
// means P covers the key range [K, nextKey) — the child for keys below
// every cell's key is the node's "low" link, not a cell.
type branchCell struct {
	key   []byte
	child common.PageID
}

type branchNode struct {
	cells []branchCell
	low   common.PageID
}

func decodeLeaf(body []byte) leafNode {
	count := int(common.Endian.Uint16(body[nodeOffCount:]))
	next := common.GetPageID(body[nodeOffLink:])
	cells := make([]leafCell, 0, count)

	off := nodeHeaderSize
	for i := 0; i < count; i++ {
		kl := int(common.Endian.Uint16(body[off:]))
		off += 2
		key := append([]byte(nil), body[off:off+kl]...)
		off += kl

		vl := int(common.Endian.Uint16(body[off:]))
		off += 2
		value := append([]byte(nil), body[off:off+vl]...)
		off += vl

		cells = append(cells, leafCell{key: key, value: value})
	}
	return leafNode{cells: cells, next: next}
}

func encodeLeaf(body []byte, n leafNode) error {
	body[nodeOffKind] = byte(leafKind)
	common.Endian.PutUint16(body[nodeOffCount:], uint16(len(n.cells)))
	common.PutPageID(body[nodeOffLink:], n.next)

	off := nodeHeaderSize
	for _, c := range n.cells {
		need := 2 + len(c.key) + 2 + len(c.value)
		if off+need > len(body) {
			return common.ErrPageOverflow
		}
		common.Endian.PutUint16(body[off:], uint16(len(c.key)))
		off += 2
		copy(body[off:], c.key)
		off += len(c.key)

		common.Endian.PutUint16(body[off:], uint16(len(c.value)))
		off += 2
		copy(body[off:], c.value)
		off += len(c.value)
	}
	return nil
}

func decodeBranch(body []byte) branchNode {
	count := int(common.Endian.Uint16(body[nodeOffCount:]))
	low := common.GetPageID(body[nodeOffLink:])
	cells := make([]branchCell, 0, count)

	off := nodeHeaderSize
	for i := 0; i < count; i++ {
		kl := int(common.Endian.Uint16(body[off:]))
		off += 2
		key := append([]byte(nil), body[off:off+kl]...)
		off += kl

		child := common.GetPageID(body[off:])
		off += 8

		cells = append(cells, branchCell{key: key, child: child})
	}
	return branchNode{cells: cells, low: low}
}

func encodeBranch(body []byte, n branchNode) error {
	body[nodeOffKind] = byte(branchKind)
	common.Endian.PutUint16(body[nodeOffCount:], uint16(len(n.cells)))
	common.PutPageID(body[nodeOffLink:], n.low)

	off := nodeHeaderSize
	for _, c := range n.cells {
		need := 2 + len(c.key) + 8
		if off+need > len(body) {
			return common.ErrPageOverflow
		}
		common.Endian.PutUint16(body[off:], uint16(len(c.key)))
		off += 2
		copy(body[off:], c.key)
		off += len(c.key)

		common.PutPageID(body[off:], c.child)
		off += 8
	}
	return nil
}

// searchLeafCells returns the index of key within cells if present, and
// the sorted insertion index otherwise.
func searchLeafCells(cells []leafCell, key []byte) (int, bool) {
	lo, hi := 0, len(cells)
	for lo < hi {
		mid := (lo + hi) / 2
		switch bytes.Compare(cells[mid].key, key) {
		case 0:
			return mid, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func searchBranchInsertPos(cells []branchCell, key []byte) int {
	lo, hi := 0, len(cells)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(cells[mid].key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// findChild returns the child covering key: the child of the last cell
// whose key is <= the search key, or the node's low link if key is
// smaller than every cell's key.
func findChild(n branchNode, key []byte) common.PageID {
	child := n.low
	for _, c := range n.cells {
		if bytes.Compare(key, c.key) >= 0 {
			child = c.child
		} else {
			break
		}
	}
	return child
}

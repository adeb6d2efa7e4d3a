// Package btree implements the B+ tree index (spec §4.5): a
// (capacity, root) tree of pager-backed nodes, split on insert, with no
// delete or merge in scope. Splits are triggered purely by cell count
// against the configured capacity, not by a node's remaining byte
// budget (spec's count-capacity model, not a slotted-page free-space
// model).
package btree

import (
	"errors"
	"fmt"

	"github.com/arboredb/arbor/common"
	"github.com/arboredb/arbor/pager"
)

// Config holds the knobs needed to create or reopen a tree, mirroring
// the shape of a pager/buffer Config pair.
type Config struct {
	PageSize       int
	BufferCapacity int // pages held resident in the buffer pool
	Capacity       int // max cells per node before it splits
}

// DefaultConfig returns sensible defaults for small to medium trees.
func DefaultConfig() Config {
	return Config{PageSize: 4096, BufferCapacity: 256, Capacity: 128}
}

// Tree is a B+ tree index over a pager's page space.
type Tree struct {
	pgr      *pager.Pager
	capacity int
	root     common.PageID
}

// New creates a brand-new, empty tree: a single leaf page serving as
// both root and the sole node.
func New(pgr *pager.Pager, capacity int) (*Tree, error) {
	if capacity < 2 {
		return nil, errors.New("btree: capacity must be at least 2")
	}
	root, err := pgr.NewPage(pager.BTree)
	if err != nil {
		return nil, fmt.Errorf("btree: allocating root: %w", err)
	}
	if err := encodeLeaf(root.BodyMut(), leafNode{}); err != nil {
		return nil, fmt.Errorf("btree: initializing root: %w", err)
	}
	return &Tree{pgr: pgr, capacity: capacity, root: root.ID()}, nil
}

// Open wraps an existing tree whose root page is already known (e.g.
// read back from a collection's own metadata).
func Open(pgr *pager.Pager, root common.PageID, capacity int) *Tree {
	return &Tree{pgr: pgr, capacity: capacity, root: root}
}

// RootID returns the tree's current root page id, which changes every
// time the root itself splits.
func (t *Tree) RootID() common.PageID { return t.root }

// Insert always upserts: an existing key's value is overwritten in
// place, a new key is inserted in sorted order (spec's resolved Open
// Question: "upsert as default").
func (t *Tree) Insert(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}

	page, err := t.pgr.GetPage(t.root)
	if err != nil {
		return err
	}
	if err := page.AssertType(pager.BTree); err != nil {
		return err
	}

	split, result, err := t.insert(page, key, value)
	if err != nil {
		return err
	}
	if split {
		return t.newRoot(result)
	}
	return nil
}

// insert recurses to a leaf, performs the upsert, and propagates a
// split result up the call stack exactly as far as needed.
func (t *Tree) insert(page *pager.Page, key, value []byte) (bool, splitResult, error) {
	switch kindOf(page.Body()) {
	case leafKind:
		return t.insertLeaf(page, key, value)
	case branchKind:
		return t.insertBranch(page, key, value)
	default:
		return false, splitResult{}, fmt.Errorf("btree: page %d: %w", page.ID(), common.ErrWrongPageType)
	}
}

func upsertLeafCell(node leafNode, key, value []byte) leafNode {
	idx, found := searchLeafCells(node.cells, key)
	if found {
		cells := append([]leafCell(nil), node.cells...)
		cells[idx] = leafCell{key: key, value: value}
		return leafNode{cells: cells, next: node.next}
	}

	cells := make([]leafCell, 0, len(node.cells)+1)
	cells = append(cells, node.cells[:idx]...)
	cells = append(cells, leafCell{key: key, value: value})
	cells = append(cells, node.cells[idx:]...)
	return leafNode{cells: cells, next: node.next}
}

func (t *Tree) insertLeaf(page *pager.Page, key, value []byte) (bool, splitResult, error) {
	node := decodeLeaf(page.Body())
	node = upsertLeafCell(node, key, value)

	if len(node.cells) < t.capacity {
		if err := encodeLeaf(page.BodyMut(), node); err != nil {
			return false, splitResult{}, fmt.Errorf("btree: writing leaf %d: %w", page.ID(), err)
		}
		return false, splitResult{}, nil
	}

	result, err := t.splitLeaf(page, node)
	if err != nil {
		return false, splitResult{}, err
	}
	return true, result, nil
}

func (t *Tree) insertBranch(page *pager.Page, key, value []byte) (bool, splitResult, error) {
	node := decodeBranch(page.Body())
	childID := findChild(node, key)

	child, err := t.pgr.GetPage(childID)
	if err != nil {
		return false, splitResult{}, err
	}
	if err := child.AssertType(pager.BTree); err != nil {
		return false, splitResult{}, err
	}

	split, childResult, err := t.insert(child, key, value)
	if err != nil {
		return false, splitResult{}, err
	}
	if !split {
		return false, splitResult{}, nil
	}

	idx := searchBranchInsertPos(node.cells, childResult.sepKey)
	cells := make([]branchCell, 0, len(node.cells)+1)
	cells = append(cells, node.cells[:idx]...)
	cells = append(cells, branchCell{key: childResult.sepKey, child: childResult.newID})
	cells = append(cells, node.cells[idx:]...)
	node.cells = cells

	if len(node.cells) < t.capacity {
		if err := encodeBranch(page.BodyMut(), node); err != nil {
			return false, splitResult{}, fmt.Errorf("btree: writing branch %d: %w", page.ID(), err)
		}
		return false, splitResult{}, nil
	}

	result, err := t.splitBranch(page, node)
	if err != nil {
		return false, splitResult{}, err
	}
	return true, result, nil
}

// newRoot wraps the current root and its new sibling under a fresh
// branch page, growing the tree's height by one.
func (t *Tree) newRoot(result splitResult) error {
	newRoot, err := t.pgr.NewPage(pager.BTree)
	if err != nil {
		return fmt.Errorf("btree: allocating new root: %w", err)
	}
	node := branchNode{
		cells: []branchCell{{key: result.sepKey, child: result.newID}},
		low:   t.root,
	}
	if err := encodeBranch(newRoot.BodyMut(), node); err != nil {
		return fmt.Errorf("btree: writing new root: %w", err)
	}
	t.root = newRoot.ID()
	return nil
}

// Search returns the value stored for key, or common.ErrKeyNotFound.
func (t *Tree) Search(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}

	id := t.root
	for {
		page, err := t.pgr.GetPage(id)
		if err != nil {
			return nil, err
		}
		if err := page.AssertType(pager.BTree); err != nil {
			return nil, err
		}

		switch kindOf(page.Body()) {
		case leafKind:
			node := decodeLeaf(page.Body())
			idx, found := searchLeafCells(node.cells, key)
			if !found {
				return nil, common.ErrKeyNotFound
			}
			return node.cells[idx].value, nil
		case branchKind:
			node := decodeBranch(page.Body())
			id = findChild(node, key)
		default:
			return nil, fmt.Errorf("btree: page %d: %w", page.ID(), common.ErrWrongPageType)
		}
	}
}

// Contains reports whether key is present. It runs a full Search, so
// the leaf (value included) is still decoded.
func (t *Tree) Contains(key []byte) (bool, error) {
	_, err := t.Search(key)
	if errors.Is(err, common.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

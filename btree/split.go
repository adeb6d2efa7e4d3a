package btree

import (
	"github.com/arboredb/arbor/common"
	"github.com/arboredb/arbor/pager"
)

// splitResult is what a node split returns up the call stack so the
// caller can insert the new separator into its own parent.
type splitResult struct {
	sepKey []byte
	newID  common.PageID
}

func (t *Tree) splitLeaf(page *pager.Page, node leafNode) (splitResult, error) {
	mid := len(node.cells) / 2
	left := leafNode{cells: node.cells[:mid]}
	right := leafNode{cells: node.cells[mid:], next: node.next}

	newPage, err := t.pgr.NewPage(pager.BTree)
	if err != nil {
		return splitResult{}, err
	}
	left.next = newPage.ID()

	if err := encodeLeaf(page.BodyMut(), left); err != nil {
		return splitResult{}, err
	}
	if err := encodeLeaf(newPage.BodyMut(), right); err != nil {
		return splitResult{}, err
	}

	return splitResult{sepKey: right.cells[0].key, newID: newPage.ID()}, nil
}

func (t *Tree) splitBranch(page *pager.Page, node branchNode) (splitResult, error) {
	mid := len(node.cells) / 2
	middle := node.cells[mid]

	left := branchNode{cells: node.cells[:mid], low: node.low}
	right := branchNode{cells: node.cells[mid+1:], low: middle.child}

	newPage, err := t.pgr.NewPage(pager.BTree)
	if err != nil {
		return splitResult{}, err
	}

	if err := encodeBranch(page.BodyMut(), left); err != nil {
		return splitResult{}, err
	}
	if err := encodeBranch(newPage.BodyMut(), right); err != nil {
		return splitResult{}, err
	}

	return splitResult{sepKey: middle.key, newID: newPage.ID()}, nil
}

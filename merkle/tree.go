package merkle

import "errors"

// NodeKind distinguishes the two node shapes of the simple binary tree
// (spec §3 Glossary: "Merkle tree").
type NodeKind byte

const (
	LeafNode NodeKind = iota
	BranchNode
)

// WireSize is the fixed serialized size of a Node (spec §6). The
// original layout this was distilled from (original_source/src/merkle.rs)
// writes the right hash at data[34..], which only holds 31 bytes of a
// 32-byte hash and cannot round-trip; this implementation resolves the
// spec's "one-byte gap" Open Question with a gapless layout instead
// (tag@0, left@1..33, right@33..65), since a lossy wire format would
// break hash verification on reload.
const WireSize = 65

// Node is either a Leaf, naming an external content block by hash, or
// a Branch of two child hashes.
type Node struct {
	Kind  NodeKind
	Left  Hash // leaf: the block hash. branch: the left child's hash.
	Right Hash // leaf: zero. branch: the right child's hash.
}

// MarshalBinary serializes n to its 65-byte wire form.
func (n Node) MarshalBinary() []byte {
	buf := make([]byte, WireSize)
	buf[0] = byte(n.Kind)
	copy(buf[1:33], n.Left[:])
	copy(buf[33:65], n.Right[:])
	return buf
}

// UnmarshalNode parses a wire-form node previously produced by
// MarshalBinary.
func UnmarshalNode(buf []byte) (Node, error) {
	if len(buf) != WireSize {
		return Node{}, errors.New("merkle: wrong wire size")
	}
	n := Node{Kind: NodeKind(buf[0])}
	copy(n.Left[:], buf[1:33])
	copy(n.Right[:], buf[33:65])
	return n, nil
}

func hashOf(h Hasher, n Node) Hash { return h.Sum(n.MarshalBinary()) }

// Tree is the simple right-spine, append-only content-addressed binary
// tree described in original_source/src/merkle.rs and spec §3's
// "Merkle tree" glossary entry. It predates and motivates the Merkle
// B+ tree's commit algorithm (bptree.go) but is a separate, simpler
// structure: one leaf per insert, no keys, no splitting.
//
// Each insert wraps the whole current tree as the new root's left
// child and the freshly appended leaf as its right child, so the
// root's right-hand side always names the most recently inserted
// leaf — the "rightmost path" original_source's right_traverse walks.
type Tree struct {
	hasher Hasher
	store  map[Hash]Node
	root   *Hash
}

// NewTree creates an empty tree that hashes nodes with h.
func NewTree(h Hasher) *Tree {
	return &Tree{hasher: h, store: make(map[Hash]Node)}
}

// Insert appends a new leaf wrapping blockHash — the hash of some
// external content block, computed by the caller — and returns the
// tree's new root hash.
func (t *Tree) Insert(blockHash Hash) Hash {
	leaf := Node{Kind: LeafNode, Left: blockHash}
	leafHash := hashOf(t.hasher, leaf)
	t.store[leafHash] = leaf

	if t.root == nil {
		t.root = &leafHash
		return leafHash
	}

	branch := Node{Kind: BranchNode, Left: *t.root, Right: leafHash}
	branchHash := hashOf(t.hasher, branch)
	t.store[branchHash] = branch
	t.root = &branchHash
	return branchHash
}

// RootHash returns the current root's hash, or ZeroHash for an empty
// tree.
func (t *Tree) RootHash() Hash {
	if t.root == nil {
		return ZeroHash
	}
	return *t.root
}

// Root returns the tree's root node.
func (t *Tree) Root() (Node, bool) {
	if t.root == nil {
		return Node{}, false
	}
	return t.Load(*t.root)
}

// Load looks up the node stored under hash.
func (t *Tree) Load(hash Hash) (Node, bool) {
	n, ok := t.store[hash]
	return n, ok
}

// RightTraverse walks the tree's right spine from the root, mirroring
// original_source's right_traverse: the root, then its right child if
// it is itself a branch, and so on until a leaf is reached.
func (t *Tree) RightTraverse() []Node {
	var path []Node
	if t.root == nil {
		return path
	}
	cur, ok := t.Load(*t.root)
	for ok {
		path = append(path, cur)
		if cur.Kind != BranchNode {
			break
		}
		cur, ok = t.Load(cur.Right)
	}
	return path
}

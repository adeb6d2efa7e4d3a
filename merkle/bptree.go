package merkle

import "errors"

// LocalIndex addresses a node resident in an Arena's bump allocator.
type LocalIndex int

// Ref is a weak reference to a Merkle B+ node (spec §4.6/§9): either
// resident in the local arena, or named only by its content hash once
// unloaded. A Ref is the unit every branch cell's child and every
// commit's root are expressed in.
type Ref struct {
	local    LocalIndex
	hash     Hash
	resident bool
}

// LocalRef builds a Ref pointing at an arena-resident node.
func LocalRef(idx LocalIndex) Ref { return Ref{local: idx, resident: true} }

// HashRef builds a Ref naming a node only by its content hash.
func HashRef(h Hash) Ref { return Ref{hash: h} }

// Resident reports whether ref currently points into the arena.
func (r Ref) Resident() bool { return r.resident }

// Hash returns ref's content hash. Meaningful once the node it names
// has been hashed by a Commit, or immediately for a HashRef.
func (r Ref) Hash() Hash { return r.hash }

// BLeafCell is one (key, value) pair of a Merkle B+ leaf.
type BLeafCell struct {
	Key, Value []byte
}

// BBranchCell is one (separator key, child) pair of a Merkle B+
// branch, following the same "cell(K, P) covers [K, nextKey)"
// convention package btree uses for its plain B+ tree.
type BBranchCell struct {
	Key   []byte
	Child Ref
}

// BNode is a Merkle B+ tree node (spec §4.6): a leaf of (key, value)
// cells, or a branch of a low child plus (key, child) cells. Every
// node carries an optional hash, fixed the first time Commit visits
// it and recomputed whenever a descendant changes underneath it.
type BNode struct {
	isLeaf    bool
	leafCells []BLeafCell

	low   Ref
	cells []BBranchCell

	hash    Hash
	hashSet bool
}

// NewLeaf builds a resident leaf node holding cells, which must
// already be in ascending key order.
func NewLeaf(cells []BLeafCell) *BNode {
	return &BNode{isLeaf: true, leafCells: cells}
}

// NewBranch builds a resident branch node with low covering keys
// below every cell's key, and cells in ascending key order.
func NewBranch(low Ref, cells []BBranchCell) *BNode {
	return &BNode{isLeaf: false, low: low, cells: cells}
}

// Hash returns n's last-computed hash. Only valid after a Commit has
// visited n at least once.
func (n *BNode) Hash() Hash { return n.hash }

// Arena is the two-level node store spec §4.6/§9 describes: loaded
// nodes live here addressed by LocalIndex, unloaded nodes are named by
// content hash and fetched from a persistent store on demand.
type Arena struct {
	hasher Hasher
	nodes  []*BNode
	store  map[Hash]*BNode
}

// NewArena creates an empty arena that hashes nodes with h.
func NewArena(h Hasher) *Arena {
	return &Arena{hasher: h, store: make(map[Hash]*BNode)}
}

// Alloc admits a freshly built node into the arena and returns a
// resident Ref to it.
func (a *Arena) Alloc(n *BNode) Ref {
	idx := LocalIndex(len(a.nodes))
	a.nodes = append(a.nodes, n)
	return LocalRef(idx)
}

func (a *Arena) node(ref Ref) *BNode { return a.nodes[ref.local] }

// Node dereferences a resident Ref. Reports an error for a HashRef —
// callers must Load it first.
func (a *Arena) Node(ref Ref) (*BNode, error) {
	if !ref.resident {
		return nil, errors.New("merkle: node not resident, Load it first")
	}
	return a.node(ref), nil
}

// Load swaps a foreign (hash-only) Ref into a resident one, pulling
// the node back from the persistent store into the arena.
func (a *Arena) Load(ref Ref) (Ref, error) {
	if ref.resident {
		return ref, nil
	}
	n, ok := a.store[ref.hash]
	if !ok {
		return Ref{}, errors.New("merkle: unknown node hash")
	}
	return a.Alloc(n), nil
}

// unload swaps a resident Ref into a foreign one addressed by the
// node's now-fixed hash, persisting the node into the store.
func (a *Arena) unload(ref Ref) Ref {
	if !ref.resident {
		return ref
	}
	n := a.node(ref)
	a.store[n.hash] = n
	return HashRef(n.hash)
}

// refHash returns the hash a reference names: the fixed hash field for
// a resident node (valid once Commit has hashed it this pass or a
// prior one) or the Ref's own hash for a foreign one.
func (a *Arena) refHash(ref Ref) Hash {
	if ref.resident {
		return a.node(ref).hash
	}
	return ref.hash
}

func (a *Arena) hashNode(n *BNode) Hash {
	var buf []byte
	if n.isLeaf {
		for _, c := range n.leafCells {
			buf = append(buf, c.Key...)
			buf = append(buf, c.Value...)
		}
		return a.hasher.Sum(buf)
	}

	lowHash := a.refHash(n.low)
	buf = append(buf, lowHash[:]...)
	for _, c := range n.cells {
		buf = append(buf, c.Key...)
		childHash := a.refHash(c.Child)
		buf = append(buf, childHash[:]...)
	}
	return a.hasher.Sum(buf)
}

// postOrder breadth-first collects every currently loaded node
// reachable from root (spec §4.6 step 1), then reverses that order so
// a node's children — which BFS always discovers strictly after their
// parent — are processed before it (step 2's "children are visited
// first").
func (a *Arena) postOrder(root Ref) []Ref {
	var order []Ref
	queue := []Ref{root}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if !ref.resident {
			continue
		}
		order = append(order, ref)

		n := a.node(ref)
		if !n.isLeaf {
			if n.low.resident {
				queue = append(queue, n.low)
			}
			for _, c := range n.cells {
				if c.Child.resident {
					queue = append(queue, c.Child)
				}
			}
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// unloadChildren unloads each of n's still-resident children, once n's
// own hash has been fixed (spec §4.6 step 4).
func (a *Arena) unloadChildren(n *BNode) {
	if n.isLeaf {
		return
	}
	if n.low.resident {
		n.low = a.unload(n.low)
	}
	for i, c := range n.cells {
		if c.Child.resident {
			n.cells[i].Child = a.unload(c.Child)
		}
	}
}

// Commit implements spec §4.6's bottom-up rehash: collect every
// currently loaded node reachable from root, recompute each one's hash
// with its children visited first, persist a node keyed by its new
// hash whenever that hash differs from what it had before, unload its
// children once its own hash is fixed, and finally promote root to a
// HashRef if the root's hash changed.
//
// A tree built from the same (key, value) multiset by any insertion
// order hashes identically after Commit, since every node's hash is a
// pure function of its own cells and its children's hashes.
func (a *Arena) Commit(root Ref) (Ref, error) {
	if !root.resident {
		return root, nil
	}

	order := a.postOrder(root)
	rootChanged := false

	for _, ref := range order {
		n := a.node(ref)
		old, hadHash := n.hash, n.hashSet

		n.hash = a.hashNode(n)
		n.hashSet = true
		changed := !hadHash || n.hash != old
		if changed {
			a.store[n.hash] = n
		}

		a.unloadChildren(n)

		if ref == root {
			rootChanged = changed
		}
	}

	if rootChanged {
		return a.unload(root), nil
	}
	return root, nil
}

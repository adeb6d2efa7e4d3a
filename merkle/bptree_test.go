package merkle

import "testing"

func buildTree(a *Arena, leaf1First bool) Ref {
	leafA := NewLeaf([]BLeafCell{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}})
	leafB := NewLeaf([]BLeafCell{{Key: []byte("c"), Value: []byte("3")}, {Key: []byte("d"), Value: []byte("4")}})

	var refA, refB Ref
	if leaf1First {
		refA = a.Alloc(leafA)
		refB = a.Alloc(leafB)
	} else {
		refB = a.Alloc(leafB)
		refA = a.Alloc(leafA)
	}

	branch := NewBranch(refA, []BBranchCell{{Key: []byte("c"), Child: refB}})
	return a.Alloc(branch)
}

func TestCommitIsOrderIndependent(t *testing.T) {
	h := SHA256Hasher{}

	a1 := NewArena(h)
	root1 := buildTree(a1, true)
	committed1, err := a1.Commit(root1)
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	a2 := NewArena(h)
	root2 := buildTree(a2, false)
	committed2, err := a2.Commit(root2)
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	if committed1.Hash() != committed2.Hash() {
		t.Fatalf("root hashes differ by allocation order: %x vs %x", committed1.Hash(), committed2.Hash())
	}
}

func TestCommitUnloadsChildrenAfterHashing(t *testing.T) {
	h := SHA256Hasher{}
	a := NewArena(h)
	root := buildTree(a, true)

	branch, err := a.Node(root)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if !branch.low.Resident() || !branch.cells[0].Child.Resident() {
		t.Fatal("expected children resident before commit")
	}

	committedRoot, err := a.Commit(root)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committedRoot.Resident() {
		t.Fatal("expected root to be unloaded (HashRef) after a changed commit")
	}

	loadedRoot, err := a.Load(committedRoot)
	if err != nil {
		t.Fatalf("reload root: %v", err)
	}
	reloaded, err := a.Node(loadedRoot)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if reloaded.low.Resident() || reloaded.cells[0].Child.Resident() {
		t.Fatal("expected children to have been unloaded by Commit")
	}
}

func TestCommitTwiceWithoutChangesIsIdempotent(t *testing.T) {
	h := SHA256Hasher{}
	a := NewArena(h)
	root := buildTree(a, true)

	first, err := a.Commit(root)
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	firstHash := first.Hash()

	second, err := a.Commit(first)
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	if second.Resident() {
		t.Fatal("committing an already-unloaded root should be a no-op, stay a HashRef")
	}
	if second.Hash() != firstHash {
		t.Fatalf("hash changed across a no-op commit: %x vs %x", second.Hash(), firstHash)
	}
}

func TestCommitDifferentValuesYieldDifferentHash(t *testing.T) {
	h := SHA256Hasher{}

	a1 := NewArena(h)
	r1, err := a1.Commit(buildTree(a1, true))
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	a2 := NewArena(h)
	leafA := NewLeaf([]BLeafCell{{Key: []byte("a"), Value: []byte("DIFFERENT")}, {Key: []byte("b"), Value: []byte("2")}})
	leafB := NewLeaf([]BLeafCell{{Key: []byte("c"), Value: []byte("3")}, {Key: []byte("d"), Value: []byte("4")}})
	refA := a2.Alloc(leafA)
	refB := a2.Alloc(leafB)
	branch := NewBranch(refA, []BBranchCell{{Key: []byte("c"), Child: refB}})
	r2, err := a2.Commit(a2.Alloc(branch))
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	if r1.Hash() == r2.Hash() {
		t.Fatal("expected different leaf values to produce different root hashes")
	}
}

func TestLeafNodeHashIsHashOfKeyValueBytes(t *testing.T) {
	h := SHA256Hasher{}
	a := NewArena(h)

	leaf := NewLeaf([]BLeafCell{{Key: []byte("x"), Value: []byte("y")}})
	ref := a.Alloc(leaf)
	committed, err := a.Commit(ref)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	want := h.Sum(append(append([]byte{}, "x"...), "y"...))
	if committed.Hash() != want {
		t.Fatalf("leaf hash = %x, want %x", committed.Hash(), want)
	}
}

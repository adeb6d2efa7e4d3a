package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/arboredb/arbor/common"
	"github.com/arboredb/arbor/common/testutil"
	"github.com/arboredb/arbor/pager"
)

func newTestPager(t *testing.T, pageSize, poolCapacity int) *pager.Pager {
	t.Helper()
	path := filepath.Join(testutil.TempDir(t), "data.arbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	p, err := pager.Create(f, pageSize, poolCapacity)
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}
	return p
}

func TestInsertAndSearchSingleKey(t *testing.T) {
	p := newTestPager(t, 512, 64)
	tree, err := New(p, 4)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	if err := tree.Insert([]byte("hello"), []byte("world")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := tree.Search([]byte("hello"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}

	if _, err := tree.Search([]byte("missing")); err != common.ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestInsertUpsertOverwritesValue(t *testing.T) {
	p := newTestPager(t, 512, 64)
	tree, err := New(p, 4)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	if err := tree.Insert([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("insert 2: %v", err)
	}

	got, err := tree.Search([]byte("k"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("got %q, want %q (upsert should overwrite)", got, "v2")
	}
}

func TestInsertManyKeysCausesSplitsAndStaysSearchable(t *testing.T) {
	p := newTestPager(t, 256, 4096)
	tree, err := New(p, 8)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	const n = 1000
	keys := make([][]byte, n)
	perm := rand.New(rand.NewSource(42)).Perm(n)
	for i, idx := range perm {
		key := []byte(fmt.Sprintf("key-%05d", idx))
		keys[i] = key
		if err := tree.Insert(key, []byte(fmt.Sprintf("value-%05d", idx))); err != nil {
			t.Fatalf("insert %d (key %s): %v", i, key, err)
		}
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		val, err := tree.Search(key)
		if err != nil {
			t.Fatalf("search %s: %v", key, err)
		}
		want := []byte(fmt.Sprintf("value-%05d", i))
		if !bytes.Equal(val, want) {
			t.Fatalf("key %s: got %q, want %q", key, val, want)
		}
	}

	ok, err := tree.Contains([]byte("key-00000"))
	if err != nil || !ok {
		t.Fatalf("Contains(key-00000) = %v, %v", ok, err)
	}
	ok, err = tree.Contains([]byte("nope"))
	if err != nil || ok {
		t.Fatalf("Contains(nope) = %v, %v, want false, nil", ok, err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	p := newTestPager(t, 256, 64)
	tree, err := New(p, 4)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	if err := tree.Insert(nil, []byte("v")); err != common.ErrKeyEmpty {
		t.Fatalf("expected ErrKeyEmpty, got %v", err)
	}
	if _, err := tree.Search(nil); err != common.ErrKeyEmpty {
		t.Fatalf("expected ErrKeyEmpty, got %v", err)
	}
}

func TestRootIDChangesAcrossSplitsAndReopens(t *testing.T) {
	p := newTestPager(t, 256, 4096)
	tree, err := New(p, 4)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	originalRoot := tree.RootID()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		if err := tree.Insert(key, key); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	if tree.RootID() == originalRoot {
		t.Fatalf("expected root to change after enough splits")
	}

	reopened := Open(p, tree.RootID(), 4)
	got, err := reopened.Search([]byte("k050"))
	if err != nil {
		t.Fatalf("search on reopened tree: %v", err)
	}
	if string(got) != "k050" {
		t.Fatalf("got %q, want %q", got, "k050")
	}
}

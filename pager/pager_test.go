package pager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arboredb/arbor/common"
	"github.com/arboredb/arbor/common/testutil"
)

func openFile(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(testutil.TempDir(t), "data.arbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestNewPageRoundTrip(t *testing.T) {
	f := openFile(t)
	p, err := Create(f, 512, 16)
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}

	var ids []common.PageID
	for i := 0; i < 3; i++ {
		page, err := p.NewPage(Raw)
		if err != nil {
			t.Fatalf("new page %d: %v", i, err)
		}
		ids = append(ids, page.ID())
		copy(page.BodyMut(), []byte{byte(i), byte(i + 1), byte(i + 2)})
	}

	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reopened, err := Open(f, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	for i, id := range ids {
		page, err := reopened.GetPage(id)
		if err != nil {
			t.Fatalf("get page %d: %v", id, err)
		}
		if page.GetType() != Raw {
			t.Fatalf("page %d: type = %v, want Raw", id, page.GetType())
		}
		want := []byte{byte(i), byte(i + 1), byte(i + 2)}
		got := page.Body()[:3]
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("page %d body[%d] = %d, want %d", id, j, got[j], want[j])
			}
		}
	}
}

func TestDropPageThenNewPageReusesLIFO(t *testing.T) {
	f := openFile(t)
	p, err := Create(f, 256, 16)
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}

	a, err := p.NewPage(Raw)
	if err != nil {
		t.Fatalf("new page a: %v", err)
	}
	b, err := p.NewPage(Raw)
	if err != nil {
		t.Fatalf("new page b: %v", err)
	}

	if err := p.DropPage(a.ID()); err != nil {
		t.Fatalf("drop a: %v", err)
	}
	if err := p.DropPage(b.ID()); err != nil {
		t.Fatalf("drop b: %v", err)
	}

	// LIFO: the most recently freed page (b) is reused first.
	reused1, err := p.NewPage(Collection)
	if err != nil {
		t.Fatalf("new page after drops 1: %v", err)
	}
	if reused1.ID() != b.ID() {
		t.Fatalf("reused id = %d, want %d (LIFO head)", reused1.ID(), b.ID())
	}
	if reused1.GetType() != Collection {
		t.Fatalf("reused page type = %v, want Collection", reused1.GetType())
	}

	reused2, err := p.NewPage(Collection)
	if err != nil {
		t.Fatalf("new page after drops 2: %v", err)
	}
	if reused2.ID() != a.ID() {
		t.Fatalf("reused id = %d, want %d", reused2.ID(), a.ID())
	}
}

func TestGetPageWrongTypeAssertion(t *testing.T) {
	f := openFile(t)
	p, err := Create(f, 256, 4)
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}

	page, err := p.NewPage(BTree)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}

	if err := page.AssertType(BTree); err != nil {
		t.Fatalf("assert BTree: %v", err)
	}
	var wrongType *common.WrongPageTypeError
	if err := page.AssertType(Overflow); err == nil {
		t.Fatalf("expected type mismatch error")
	} else if !errors.As(err, &wrongType) {
		t.Fatalf("expected WrongPageTypeError, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	f := openFile(t)
	if _, err := f.WriteAt(make([]byte, 64), 0); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := Open(f, 4); err != common.ErrInvalidPager {
		t.Fatalf("expected ErrInvalidPager, got %v", err)
	}
}

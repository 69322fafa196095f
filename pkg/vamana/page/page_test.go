package page

import (
	"bytes"
	"testing"
)

func TestNewPageEmpty(t *testing.T) {
	p := New(TypeNode)
	if p.Type() != TypeNode {
		t.Fatalf("Type() = %v, want TypeNode", p.Type())
	}
	if p.ItemCount() != 0 {
		t.Fatalf("ItemCount() = %d, want 0", p.ItemCount())
	}
	if p.FreeSpace() != Size-headerSize-itemPointerSize {
		t.Fatalf("FreeSpace() = %d, want %d", p.FreeSpace(), Size-headerSize-itemPointerSize)
	}
}

func TestAddItemAndGetItem(t *testing.T) {
	p := New(TypeNode)
	data := []byte("hello, vamana")
	offset, ok := p.AddItem(data)
	if !ok {
		t.Fatal("AddItem failed on empty page")
	}
	if offset != 1 {
		t.Fatalf("first AddItem offset = %d, want 1", offset)
	}
	got, ok := p.GetItem(offset)
	if !ok {
		t.Fatal("GetItem(1) = false, want true")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("GetItem(1) = %q, want %q", got, data)
	}
}

func TestAddItemMultipleGrowsCountAndOffsets(t *testing.T) {
	p := New(TypeNode)
	items := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	var offsets []uint16
	for _, it := range items {
		off, ok := p.AddItem(it)
		if !ok {
			t.Fatalf("AddItem(%q) failed", it)
		}
		offsets = append(offsets, off)
	}
	if p.ItemCount() != 3 {
		t.Fatalf("ItemCount() = %d, want 3", p.ItemCount())
	}
	for i, off := range offsets {
		got, ok := p.GetItem(off)
		if !ok || !bytes.Equal(got, items[i]) {
			t.Fatalf("GetItem(%d) = %q, %v, want %q, true", off, got, ok, items[i])
		}
	}
}

func TestGetItemOutOfRange(t *testing.T) {
	p := New(TypeNode)
	p.AddItem([]byte("x"))
	if _, ok := p.GetItem(0); ok {
		t.Fatal("GetItem(0) = true, want false")
	}
	if _, ok := p.GetItem(2); ok {
		t.Fatal("GetItem(2) = true, want false (only one item exists)")
	}
}

func TestAddItemRejectsWhenFull(t *testing.T) {
	p := New(TypeNode)
	big := make([]byte, Size)
	if _, ok := p.AddItem(big); ok {
		t.Fatal("AddItem with an oversized payload should fail")
	}
}

func TestCanInsertAccountsForItemPointer(t *testing.T) {
	p := New(TypeNode)
	free := p.FreeSpace()
	if !p.CanInsert(free) {
		t.Fatalf("CanInsert(%d) = false, want true (exactly the reported free space)", free)
	}
	if p.CanInsert(free + 1) {
		t.Fatalf("CanInsert(%d) = true, want false (one more than free space)", free+1)
	}
}

func TestSetItemSameLength(t *testing.T) {
	p := New(TypeNode)
	offset, _ := p.AddItem([]byte("abcd"))
	if !p.SetItem(offset, []byte("wxyz")) {
		t.Fatal("SetItem with same-length payload should succeed")
	}
	got, _ := p.GetItem(offset)
	if string(got) != "wxyz" {
		t.Fatalf("GetItem after SetItem = %q, want %q", got, "wxyz")
	}
}

func TestSetItemRejectsLengthChange(t *testing.T) {
	p := New(TypeNode)
	offset, _ := p.AddItem([]byte("abcd"))
	if p.SetItem(offset, []byte("longer-payload")) {
		t.Fatal("SetItem with a different-length payload should fail")
	}
}

func TestReplaceItemGrowsInPlace(t *testing.T) {
	p := New(TypeMeta)
	headerOff, _ := p.AddItem([]byte("header"))
	bodyOff, _ := p.AddItem([]byte("v1"))

	if !p.ReplaceItem(bodyOff, []byte("a much longer v2 body payload")) {
		t.Fatal("ReplaceItem failed to grow the body item")
	}
	if p.ItemCount() != 2 {
		t.Fatalf("ItemCount() after ReplaceItem = %d, want 2", p.ItemCount())
	}
	gotHeader, ok := p.GetItem(headerOff)
	if !ok || string(gotHeader) != "header" {
		t.Fatalf("header item corrupted after ReplaceItem: %q, %v", gotHeader, ok)
	}
	gotBody, ok := p.GetItem(bodyOff)
	if !ok || string(gotBody) != "a much longer v2 body payload" {
		t.Fatalf("GetItem(body) after ReplaceItem = %q, %v", gotBody, ok)
	}
	if p.Type() != TypeMeta {
		t.Fatalf("Type() after ReplaceItem = %v, want TypeMeta", p.Type())
	}
}

func TestReplaceItemRejectsOverflow(t *testing.T) {
	p := New(TypeMeta)
	off, _ := p.AddItem([]byte("small"))
	if p.ReplaceItem(off, make([]byte, Size)) {
		t.Fatal("ReplaceItem should reject a payload that can't fit on the page")
	}
}

func TestWrapRoundTrip(t *testing.T) {
	orig := New(TypeNode)
	orig.AddItem([]byte("payload"))
	wrapped := Wrap(orig.Bytes())
	got, ok := wrapped.GetItem(1)
	if !ok || string(got) != "payload" {
		t.Fatalf("Wrap round trip = %q, %v, want %q, true", got, ok, "payload")
	}
}

func TestWrapPanicsOnWrongSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Wrap should panic on a buffer that isn't exactly Size bytes")
		}
	}()
	Wrap(make([]byte, Size-1))
}

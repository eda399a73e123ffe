package pager

import (
	"testing"

	"github.com/dbcore/erdb/internal/common"
)

func TestToTableId(t *testing.T) {
	cases := []struct {
		name string
		id   common.TableId
		ok   bool
	}{
		{"16", 16, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"16x", 0, false},
		{"99999", 0, false}, // overflows uint16
	}
	for _, c := range cases {
		got, ok := toTableId(c.name)
		if ok != c.ok || (ok && got != c.id) {
			t.Errorf("toTableId(%q) = (%d, %v), want (%d, %v)", c.name, got, ok, c.id, c.ok)
		}
	}
}

func TestCreateTableAndRoundTripPage(t *testing.T) {
	dir := t.TempDir()
	fm, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fm.Close()

	const tableId common.TableId = 16
	if err := fm.CreateTable(tableId); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := fm.CreateTable(tableId); err == nil {
		t.Fatalf("expected error creating the same table twice")
	}

	if _, hasAny, err := fm.LastPageNo(tableId); err != nil || hasAny {
		t.Fatalf("expected new table to have no pages, got hasAny=%v err=%v", hasAny, err)
	}

	page := newPage()
	TryInsert(page, 10)
	pageNo, err := fm.AllocateNewPage(tableId, page)
	if err != nil {
		t.Fatalf("AllocateNewPage: %v", err)
	}
	if pageNo != 0 {
		t.Fatalf("expected first page to be page 0, got %d", pageNo)
	}

	readBack := make([]byte, common.PageSize)
	if err := fm.ReadPage(tableId, pageNo, readBack); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if ParseHeader(readBack).SlotCount() != 1 {
		t.Fatalf("round-tripped page lost its slot")
	}

	pageNo2, err := fm.AllocateNewPage(tableId, newPage())
	if err != nil {
		t.Fatalf("AllocateNewPage (2nd): %v", err)
	}
	if pageNo2 != 1 {
		t.Fatalf("expected second page to be page 1, got %d", pageNo2)
	}
}

func TestOpenRejectsCorruptFileSize(t *testing.T) {
	dir := t.TempDir()
	fm, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fm.CreateTable(16); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := fm.WritePage(16, 0, newPage()); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	// Truncate the file to a non-page-aligned size to simulate corruption.
	f, err := fm.getFile(16)
	if err != nil {
		t.Fatalf("getFile: %v", err)
	}
	if err := f.Truncate(common.PageSize + 3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	fm.Close()

	if _, err := Open(dir); err == nil {
		t.Fatalf("expected Open to reject a file whose size is not a multiple of PageSize")
	}
}

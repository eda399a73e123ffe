package checkpoint

import (
	"bytes"
	"testing"
	"time"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/storage/buffer"
	"github.com/dbcore/erdb/internal/storage/pager"
)

const schedTestTableId common.TableId = 16

func newSchedTestPool(t *testing.T) (*pager.FileManager, *buffer.Pool) {
	t.Helper()
	fm, err := pager.Open(t.TempDir())
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	pool := buffer.New(fm, 4, nil)
	if err := pool.CreateTable(schedTestTableId); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return fm, pool
}

func dirtyNewPage(t *testing.T, pool *buffer.Pool, payload string) common.PageId {
	t.Helper()
	initial := make([]byte, common.PageSize)
	guard, pageId, err := pool.AllocateNewPage(schedTestTableId, initial)
	if err != nil {
		t.Fatalf("AllocateNewPage: %v", err)
	}
	buf := guard.Write()
	copy(buf, []byte(payload))
	guard.MarkDirty()
	guard.Release()
	return pageId
}

func TestSchedulerFlushesDirtyPageOnTick(t *testing.T) {
	fm, pool := newSchedTestPool(t)
	pageId := dirtyNewPage(t, pool, "hello-checkpoint")

	sched := New(pool, nil)
	if err := sched.Start("*/1 * * * * *"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	sched.Stop()

	onDisk := make([]byte, common.PageSize)
	if err := fm.ReadPage(pageId.Table, pageId.Page, onDisk); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.HasPrefix(onDisk, []byte("hello-checkpoint")) {
		t.Fatalf("expected the scheduler to have flushed the dirty page to disk, got %q", onDisk[:32])
	}
}

func TestSchedulerSkipsOverlappingTick(t *testing.T) {
	fm, pool := newSchedTestPool(t)
	pageId := dirtyNewPage(t, pool, "should-not-flush-yet")

	sched := New(pool, nil)
	sched.running = true
	sched.runFlush()

	onDisk := make([]byte, common.PageSize)
	if err := fm.ReadPage(pageId.Table, pageId.Page, onDisk); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if bytes.HasPrefix(onDisk, []byte("should-not-flush-yet")) {
		t.Fatalf("expected runFlush to skip its tick while a previous flush is marked running")
	}

	// a later, non-overlapping flush still picks up the page it skipped.
	sched.running = false
	sched.runFlush()
	if err := fm.ReadPage(pageId.Table, pageId.Page, onDisk); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.HasPrefix(onDisk, []byte("should-not-flush-yet")) {
		t.Fatalf("expected the page to be flushed once runFlush is no longer marked running")
	}
}

func TestStartRejectsInvalidCronExpression(t *testing.T) {
	_, pool := newSchedTestPool(t)
	sched := New(pool, nil)
	if err := sched.Start("not a cron expression"); err == nil {
		t.Fatalf("expected an invalid cron expression to be rejected")
	}
}

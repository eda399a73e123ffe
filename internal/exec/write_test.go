package exec

import (
	"testing"

	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/buffer"
	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/storage/pager"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

const writeTestTableId = 16

func newWriteTestTable(t *testing.T) (*heap.Table, *txn.Manager) {
	t.Helper()
	fm, err := pager.Open(t.TempDir())
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	pool := buffer.New(fm, 32, nil)
	mgr := txn.NewManager(pool, txn.NewLockManager(), nil)
	if err := mgr.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := pool.CreateTable(writeTestTableId); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	schema := &value.Schema{Columns: []value.Column{
		{Name: "id", Type: value.TypeInteger, NotNull: true},
		{Name: "name", Type: value.TypeText},
	}}
	return heap.NewTable(writeTestTableId, schema, pool, mgr), mgr
}

func countRows(t *testing.T, table *heap.Table, tx *txn.Transaction) int {
	t.Helper()
	scan, err := NewSeqScan(table, tx)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	n := 0
	for {
		_, ok, err := scan.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		n++
	}
	return n
}

func TestInsertExecutorReturnsCountRow(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	tx, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	schema := table.Schema()
	rows := [][]value.Expr{
		{value.Lit{V: value.Integer(1)}, value.Lit{V: value.Text("a")}},
		{value.Lit{V: value.Integer(2)}, value.Lit{V: value.Text("b")}},
	}
	values := NewValues(rows, schema)
	ins := NewInsert(values, table, tx)

	row, ok, err := ins.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].AsInt() != 2 {
		t.Fatalf("expected inserted count 2, got %v", row[0])
	}
	_, ok, err = ins.Next()
	if err != nil {
		t.Fatalf("Next (second call): %v", err)
	}
	if ok {
		t.Fatalf("expected Insert to yield exactly one result row")
	}

	if err := mgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	reader, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start reader: %v", err)
	}
	if n := countRows(t, table, reader); n != 2 {
		t.Fatalf("expected 2 rows visible after commit, got %d", n)
	}
}

func TestDeleteExecutorWithFilterRemovesMatchingRows(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	setup, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start setup: %v", err)
	}
	for i, name := range []string{"a", "b", "c"} {
		if _, err := table.InsertTuple(value.Tuple{value.Integer(int32(i)), value.Text(name)}, setup.ID()); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
	}
	if err := mgr.Commit(setup); err != nil {
		t.Fatalf("Commit setup: %v", err)
	}

	tx, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	scan, err := NewSeqScan(table, tx)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	predicate := value.Binary{Op: value.Ge, Left: value.ColumnRef{ColIdx: 0}, Right: value.Lit{V: value.Integer(1)}}
	filtered := NewFilter(scan, predicate)
	del := NewDelete(filtered, table, tx, mgr)

	row, ok, err := del.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].AsInt() != 2 {
		t.Fatalf("expected deleted count 2 (ids 1 and 2), got %v", row[0])
	}
	if err := mgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start reader: %v", err)
	}
	if n := countRows(t, table, reader); n != 1 {
		t.Fatalf("expected 1 row remaining, got %d", n)
	}
}

func TestUpdateExecutorAppliesSetExpressions(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	setup, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start setup: %v", err)
	}
	if _, err := table.InsertTuple(value.Tuple{value.Integer(1), value.Text("old")}, setup.ID()); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if err := mgr.Commit(setup); err != nil {
		t.Fatalf("Commit setup: %v", err)
	}

	tx, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	scan, err := NewSeqScan(table, tx)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	setExprs := []value.Expr{
		value.ColumnRef{ColIdx: 0},
		value.Lit{V: value.Text("new")},
	}
	upd := NewUpdate(scan, table, setExprs, tx, mgr)

	row, ok, err := upd.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].AsInt() != 1 {
		t.Fatalf("expected updated count 1, got %v", row[0])
	}
	if err := mgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start reader: %v", err)
	}
	readScan, err := NewSeqScan(table, reader)
	if err != nil {
		t.Fatalf("NewSeqScan reader: %v", err)
	}
	got, ok, err := readScan.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !got[1].Equal(value.Text("new")) {
		t.Fatalf("expected updated value \"new\", got %v", got[1])
	}
}

func TestUpdateSelfUpdatedRowIsNotCounted(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	tx, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// tx inserts and then, within the same statement, targets the row it
	// just inserted itself: Table.UpdateTuple reports WriteSelfUpdated for
	// this, which must not add to the reported count (spec §4.9 "skip").
	if _, err := table.InsertTuple(value.Tuple{value.Integer(1), value.Text("old")}, tx.ID()); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	scan, err := NewSeqScan(table, tx)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	setExprs := []value.Expr{
		value.ColumnRef{ColIdx: 0},
		value.Lit{V: value.Text("new")},
	}
	upd := NewUpdate(scan, table, setExprs, tx, mgr)

	row, ok, err := upd.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].AsInt() != 0 {
		t.Fatalf("expected a self-updated row to be excluded from the count, got %v", row[0])
	}
}

func TestDeleteApplyOneSkipsCountOnReadCommittedConflict(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	setup, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start setup: %v", err)
	}
	tupleId, err := table.InsertTuple(value.Tuple{value.Integer(1), value.Text("a")}, setup.ID())
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if err := mgr.Commit(setup); err != nil {
		t.Fatalf("Commit setup: %v", err)
	}

	concurrent, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start concurrent: %v", err)
	}
	if _, err := table.DeleteTuple(tupleId, concurrent); err != nil {
		t.Fatalf("DeleteTuple concurrent: %v", err)
	}
	if err := mgr.Commit(concurrent); err != nil {
		t.Fatalf("Commit concurrent: %v", err)
	}

	b, err := mgr.Start(txn.ReadCommitted)
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}
	del := &Delete{Table: table, Tx: b, Mgr: mgr}
	counted, err := del.applyOne(tupleId)
	if err != nil {
		t.Fatalf("applyOne: %v", err)
	}
	if counted {
		t.Fatalf("expected a ReadCommitted delete racing a committed concurrent delete to skip, not count")
	}
}

func TestUpdateConflictUnderRepeatableReadErrors(t *testing.T) {
	table, mgr := newWriteTestTable(t)
	setup, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start setup: %v", err)
	}
	tupleId, err := table.InsertTuple(value.Tuple{value.Integer(1), value.Text("old")}, setup.ID())
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if err := mgr.Commit(setup); err != nil {
		t.Fatalf("Commit setup: %v", err)
	}

	a, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	b, err := mgr.Start(txn.RepeatableRead)
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}

	if _, err := table.UpdateTuple(tupleId, value.Tuple{value.Integer(1), value.Text("from-a")}, a); err != nil {
		t.Fatalf("UpdateTuple (a): %v", err)
	}
	if err := mgr.Commit(a); err != nil {
		t.Fatalf("Commit a: %v", err)
	}

	// b's own snapshot predates a's commit (a was in b's alive set), so
	// retrying b's update against the same tuple id must report the
	// forwarding outcome Update.applyOne relies on to either retry (under
	// ReadCommitted) or surface a serialization conflict (RepeatableRead),
	// never silently overwrite a's committed change.
	outcome, err := table.UpdateTuple(tupleId, value.Tuple{value.Integer(1), value.Text("from-b")}, b)
	if err != nil {
		t.Fatalf("UpdateTuple (b): %v", err)
	}
	if outcome.Kind != heap.WriteUpdated {
		t.Fatalf("expected WriteUpdated signaling a's committed concurrent update, got %v", outcome.Kind)
	}

	upd := &Update{Table: table, SetExprs: []value.Expr{value.ColumnRef{ColIdx: 0}, value.Lit{V: value.Text("from-b")}}, Tx: b, Mgr: mgr}
	if _, err := upd.applyOne(tupleId, value.Tuple{value.Integer(1), value.Text("old")}); !dberr.Is(err, dberr.Conflict) {
		t.Fatalf("expected a RepeatableRead update to fail with a Conflict error, got %v", err)
	}
}

package heap

import (
	"fmt"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/buffer"
	"github.com/dbcore/erdb/internal/storage/pager"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// WriteOutcomeKind is the result of UpdateTuple/DeleteTuple's MVCC
// dispatch, matching spec §4.5's Ok/SelfUpdated/Deleted/Updated(new_id)
// enum exactly. The write-path retry loop of spec §4.9 (implemented by
// the exec package's update/delete operators) decides what to do with
// each of these per isolation level.
type WriteOutcomeKind uint8

const (
	// WriteOk: the write was applied; a new tuple version was created (for
	// UpdateTuple) or the tuple was marked deleted (for DeleteTuple).
	WriteOk WriteOutcomeKind = iota
	// WriteSelfUpdated: the targeted version was inserted by this same
	// transaction and not yet committed; the caller already modified it in
	// this statement and must not write it again.
	WriteSelfUpdated
	// WriteDeleted: a concurrent transaction deleted this version and its
	// deletion is now visible; there is no newer version to retry against.
	WriteDeleted
	// WriteUpdated: a concurrent transaction replaced this version with a
	// newer one; NewTupleId names it so the caller can retry there.
	WriteUpdated
)

// WriteOutcome is the result of one UpdateTuple or DeleteTuple call.
type WriteOutcome struct {
	Kind       WriteOutcomeKind
	NewTupleId common.TupleId
}

// Table binds a table id and schema to the shared buffer pool and lock
// manager, and implements the MVCC tuple operations of spec §4.5.
// Grounded on original_source/src/storage/heap/table.rs.
type Table struct {
	tableId common.TableId
	schema  *value.Schema
	pool    *buffer.Pool
	mgr     *txn.Manager
}

// NewTable binds an existing table file to its schema.
func NewTable(tableId common.TableId, schema *value.Schema, pool *buffer.Pool, mgr *txn.Manager) *Table {
	return &Table{tableId: tableId, schema: schema, pool: pool, mgr: mgr}
}

func (t *Table) TableId() common.TableId { return t.tableId }
func (t *Table) Schema() *value.Schema   { return t.schema }

func emptyPage() []byte {
	buf := make([]byte, common.PageSize)
	pager.EmptyHeader().Write(buf)
	return buf
}

func tryInsertInto(guard *buffer.Guard, size uint16, tuple value.Tuple, tid common.TxID) (uint8, bool) {
	data := guard.Write()
	offset, ok := pager.TryInsert(data, size)
	if !ok {
		return 0, false
	}
	Serialize(data[offset:], tuple, tid)
	guard.MarkDirty()
	h := pager.ParseHeader(data)
	return h.SlotCount() - 1, true
}

// InsertTuple appends tuple to the table's last page, allocating a new
// page when the last one has no room. It always inserts at the end; the
// heap never reuses free space left behind by deletes.
func (t *Table) InsertTuple(tuple value.Tuple, tid common.TxID) (common.TupleId, error) {
	size := RequiredSpace(tuple)
	if size > pager.MaxTupleSize {
		return common.TupleId{}, dberr.New(dberr.Schema, "heap.InsertTuple",
			fmt.Errorf("serialized tuple of %d bytes exceeds max tuple size %d", size, pager.MaxTupleSize))
	}

	var guard *buffer.Guard
	var pageId common.PageId
	var err error

	last, hasAny, err := t.pool.HighestPageNo(t.tableId)
	if err != nil {
		return common.TupleId{}, err
	}
	if hasAny {
		pageId = common.PageId{Table: t.tableId, Page: last}
		ok := false
		guard, ok, err = t.pool.Fetch(pageId)
		if err != nil {
			return common.TupleId{}, err
		}
		if !ok {
			return common.TupleId{}, dberr.New(dberr.Resource, "heap.InsertTuple", fmt.Errorf("all buffer frames are pinned"))
		}
	} else {
		guard, pageId, err = t.pool.AllocateNewPage(t.tableId, emptyPage())
		if err != nil {
			return common.TupleId{}, err
		}
	}

	for {
		if slot, ok := tryInsertInto(guard, size, tuple, tid); ok {
			guard.Release()
			return common.TupleId{Page: pageId.Page, Slot: slot}, nil
		}
		guard.Release()
		guard, pageId, err = t.pool.AllocateNewPage(t.tableId, emptyPage())
		if err != nil {
			return common.TupleId{}, err
		}
	}
}

func (t *Table) readSlot(data []byte, tupleId common.TupleId) ([]byte, error) {
	h := pager.ParseHeader(data)
	if tupleId.Slot >= h.SlotCount() {
		return nil, dberr.New(dberr.NotFound, "heap.readSlot", fmt.Errorf("slot %d does not exist on page %d", tupleId.Slot, tupleId.Page))
	}
	slot := pager.ReadSlot(data, tupleId.Slot)
	return data[slot.Offset : slot.Offset+slot.Size], nil
}

// FetchTuple reads the raw tuple at tupleId (no visibility filtering: the
// caller decides what to do with insert_tid/delete_tid).
func (t *Table) FetchTuple(tupleId common.TupleId) (value.Tuple, Header, error) {
	guard, ok, err := t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
	if err != nil {
		return nil, Header{}, err
	}
	if !ok {
		return nil, Header{}, dberr.New(dberr.Resource, "heap.FetchTuple", fmt.Errorf("all buffer frames are pinned"))
	}
	defer guard.Release()

	data := guard.Read()
	tupleBytes, err := t.readSlot(data, tupleId)
	if err != nil {
		return nil, Header{}, err
	}
	tuple, h := Parse(tupleBytes, t.schema)
	return tuple, h, nil
}

// DeleteTuple marks the version at tupleId deleted by tx, per the MVCC
// dispatch rules of spec §4.5: if the version is visible and not already
// deleted, its delete_tid is set and WriteOk is returned; if it was
// inserted (and not committed) by tx itself, WriteSelfUpdated; if a
// concurrent committed deleter got there first, WriteDeleted. A
// concurrent in-progress deleter is waited out and the check retried.
func (t *Table) DeleteTuple(tupleId common.TupleId, tx *txn.Transaction) (WriteOutcome, error) {
	lock := t.mgr.Locks().LockTuple(t.tableId, tupleId, txn.Exclusive)
	defer lock.Unlock()

	for {
		guard, ok, err := t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
		if err != nil {
			return WriteOutcome{}, err
		}
		if !ok {
			return WriteOutcome{}, dberr.New(dberr.Resource, "heap.DeleteTuple", fmt.Errorf("all buffer frames are pinned"))
		}

		data := guard.Write()
		tupleBytes, err := t.readSlot(data, tupleId)
		if err != nil {
			guard.Release()
			return WriteOutcome{}, err
		}
		h := ParseHeader(tupleBytes, t.schema.ColumnCount())

		if h.InsertTid == tx.ID() && h.DeleteTid == common.InvalidTxID {
			guard.Release()
			return WriteOutcome{Kind: WriteSelfUpdated}, nil
		}

		if h.DeleteTid == common.InvalidTxID {
			visible, err := tx.IsVisible(h.InsertTid, h.DeleteTid)
			guard.Release()
			if err != nil {
				return WriteOutcome{}, err
			}
			if !visible {
				return WriteOutcome{}, dberr.New(dberr.NotFound, "heap.DeleteTuple", fmt.Errorf("tuple %+v is not visible to this transaction", tupleId))
			}
			guard, ok, err = t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
			if err != nil {
				return WriteOutcome{}, err
			}
			if !ok {
				return WriteOutcome{}, dberr.New(dberr.Resource, "heap.DeleteTuple", fmt.Errorf("all buffer frames are pinned"))
			}
			data = guard.Write()
			tupleBytes, err = t.readSlot(data, tupleId)
			if err != nil {
				guard.Release()
				return WriteOutcome{}, err
			}
			SetDeleteTid(tupleBytes, tx.ID())
			guard.MarkDirty()
			guard.Release()
			return WriteOutcome{Kind: WriteOk}, nil
		}

		status, err := t.mgr.StatusOf(h.DeleteTid)
		if err != nil {
			guard.Release()
			return WriteOutcome{}, err
		}
		switch status {
		case txn.StatusInProgress:
			deleter := h.DeleteTid
			guard.Release()
			waitLock := t.mgr.Locks().LockTransaction(deleter, txn.Shared)
			waitLock.Unlock()
			continue // re-read: the deleter has now committed or aborted
		case txn.StatusCommitted:
			guard.Release()
			if h.Forward.Valid {
				return WriteOutcome{Kind: WriteUpdated, NewTupleId: common.TupleId{Page: h.Forward.Page, Slot: h.Forward.Slot}}, nil
			}
			return WriteOutcome{Kind: WriteDeleted}, nil
		default: // Aborted or Invalid: the delete never really happened
			visible, err := tx.IsVisible(h.InsertTid, common.InvalidTxID)
			guard.Release()
			if err != nil {
				return WriteOutcome{}, err
			}
			if !visible {
				return WriteOutcome{}, dberr.New(dberr.NotFound, "heap.DeleteTuple", fmt.Errorf("tuple %+v is not visible to this transaction", tupleId))
			}
			guard, ok, err = t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
			if err != nil {
				return WriteOutcome{}, err
			}
			if !ok {
				return WriteOutcome{}, dberr.New(dberr.Resource, "heap.DeleteTuple", fmt.Errorf("all buffer frames are pinned"))
			}
			data = guard.Write()
			tupleBytes, err = t.readSlot(data, tupleId)
			if err != nil {
				guard.Release()
				return WriteOutcome{}, err
			}
			SetDeleteTid(tupleBytes, tx.ID())
			guard.MarkDirty()
			guard.Release()
			return WriteOutcome{Kind: WriteOk}, nil
		}
	}
}

// UpdateTuple replaces the version at tupleId with newTuple, under the
// same MVCC dispatch rules as DeleteTuple: WriteOk inserts newTuple as a
// fresh version and forwards the old one to it; WriteSelfUpdated means the
// caller already owns an uncommitted version of this row this statement;
// WriteDeleted/WriteUpdated mirror a concurrent delete/update that won the
// race.
func (t *Table) UpdateTuple(tupleId common.TupleId, newTuple value.Tuple, tx *txn.Transaction) (WriteOutcome, error) {
	lock := t.mgr.Locks().LockTuple(t.tableId, tupleId, txn.Exclusive)
	defer lock.Unlock()

	for {
		guard, ok, err := t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
		if err != nil {
			return WriteOutcome{}, err
		}
		if !ok {
			return WriteOutcome{}, dberr.New(dberr.Resource, "heap.UpdateTuple", fmt.Errorf("all buffer frames are pinned"))
		}
		data := guard.Read()
		tupleBytes, err := t.readSlot(data, tupleId)
		if err != nil {
			guard.Release()
			return WriteOutcome{}, err
		}
		h := ParseHeader(tupleBytes, t.schema.ColumnCount())
		guard.Release()

		if h.InsertTid == tx.ID() && h.DeleteTid == common.InvalidTxID {
			return WriteOutcome{Kind: WriteSelfUpdated}, nil
		}

		if h.DeleteTid == common.InvalidTxID {
			visible, err := tx.IsVisible(h.InsertTid, h.DeleteTid)
			if err != nil {
				return WriteOutcome{}, err
			}
			if !visible {
				return WriteOutcome{}, dberr.New(dberr.NotFound, "heap.UpdateTuple", fmt.Errorf("tuple %+v is not visible to this transaction", tupleId))
			}
			return t.applyUpdate(tupleId, newTuple, tx)
		}

		status, err := t.mgr.StatusOf(h.DeleteTid)
		if err != nil {
			return WriteOutcome{}, err
		}
		switch status {
		case txn.StatusInProgress:
			waitLock := t.mgr.Locks().LockTransaction(h.DeleteTid, txn.Shared)
			waitLock.Unlock()
			continue
		case txn.StatusCommitted:
			if h.Forward.Valid {
				return WriteOutcome{Kind: WriteUpdated, NewTupleId: common.TupleId{Page: h.Forward.Page, Slot: h.Forward.Slot}}, nil
			}
			return WriteOutcome{Kind: WriteDeleted}, nil
		default: // Aborted or Invalid: the delete never really happened
			visible, err := tx.IsVisible(h.InsertTid, common.InvalidTxID)
			if err != nil {
				return WriteOutcome{}, err
			}
			if !visible {
				return WriteOutcome{}, dberr.New(dberr.NotFound, "heap.UpdateTuple", fmt.Errorf("tuple %+v is not visible to this transaction", tupleId))
			}
			return t.applyUpdate(tupleId, newTuple, tx)
		}
	}
}

// applyUpdate inserts newTuple as a fresh version and forwards the old
// tupleId to it, under tx. Caller must already hold the Exclusive tuple
// lock on tupleId.
func (t *Table) applyUpdate(tupleId common.TupleId, newTuple value.Tuple, tx *txn.Transaction) (WriteOutcome, error) {
	newId, err := t.InsertTuple(newTuple, tx.ID())
	if err != nil {
		return WriteOutcome{}, err
	}

	guard, ok, err := t.pool.Fetch(common.PageId{Table: t.tableId, Page: tupleId.Page})
	if err != nil {
		return WriteOutcome{}, err
	}
	if !ok {
		return WriteOutcome{}, dberr.New(dberr.Resource, "heap.applyUpdate", fmt.Errorf("all buffer frames are pinned"))
	}
	data := guard.Write()
	tupleBytes, err := t.readSlot(data, tupleId)
	if err != nil {
		guard.Release()
		return WriteOutcome{}, err
	}
	SetDeleteTid(tupleBytes, tx.ID())
	SetForward(tupleBytes, ForwardPointer{Table: t.tableId, Page: newId.Page, Slot: newId.Slot, Valid: true})
	guard.MarkDirty()
	guard.Release()
	return WriteOutcome{Kind: WriteOk}, nil
}

// Iterator performs a sequential scan over every page of the table,
// yielding only tuple versions visible to tx.
type Iterator struct {
	table    *Table
	tx       *txn.Transaction
	pageNo   common.PageNo
	lastPage common.PageNo
	hasAny   bool
	slot     uint8
	slotLim  uint8
	pageData []byte
	started  bool
}

// Iter opens a sequential scan of the whole table, filtered by tx's
// visibility predicate.
func (t *Table) Iter(tx *txn.Transaction) (*Iterator, error) {
	last, hasAny, err := t.pool.HighestPageNo(t.tableId)
	if err != nil {
		return nil, err
	}
	return &Iterator{table: t, tx: tx, lastPage: last, hasAny: hasAny}, nil
}

func (it *Iterator) loadPage(pageNo common.PageNo) error {
	guard, ok, err := it.table.pool.Fetch(common.PageId{Table: it.table.tableId, Page: pageNo})
	if err != nil {
		return err
	}
	if !ok {
		return dberr.New(dberr.Resource, "heap.Iterator", fmt.Errorf("all buffer frames are pinned"))
	}
	data := guard.Read()
	it.pageData = append(it.pageData[:0], data...)
	it.slotLim = pager.ParseHeader(data).SlotCount()
	guard.Release()
	it.slot = 0
	it.pageNo = pageNo
	return nil
}

// Next returns the next visible tuple and its id, or ok=false once the
// scan is exhausted.
func (it *Iterator) Next() (value.Tuple, common.TupleId, bool, error) {
	if !it.hasAny {
		return nil, common.TupleId{}, false, nil
	}
	if !it.started {
		it.started = true
		if err := it.loadPage(0); err != nil {
			return nil, common.TupleId{}, false, err
		}
	}
	for {
		for it.slot >= it.slotLim {
			if it.pageNo >= it.lastPage {
				return nil, common.TupleId{}, false, nil
			}
			if err := it.loadPage(it.pageNo + 1); err != nil {
				return nil, common.TupleId{}, false, err
			}
		}
		s := pager.ReadSlot(it.pageData, it.slot)
		tupleId := common.TupleId{Page: it.pageNo, Slot: it.slot}
		it.slot++
		if s.Offset == 0 && s.Size == 0 {
			continue
		}
		tupleBytes := it.pageData[s.Offset : s.Offset+s.Size]
		h := ParseHeader(tupleBytes, it.table.schema.ColumnCount())
		visible, err := it.tx.IsVisible(h.InsertTid, h.DeleteTid)
		if err != nil {
			return nil, common.TupleId{}, false, err
		}
		if !visible {
			continue
		}
		tuple, _ := Parse(tupleBytes, it.table.schema)
		return tuple, tupleId, true, nil
	}
}

// Rewind resets the scan to its beginning.
func (it *Iterator) Rewind() {
	it.started = false
	it.slot = 0
	it.slotLim = 0
}

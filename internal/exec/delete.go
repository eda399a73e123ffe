package exec

import (
	"fmt"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// deleteResultSchema is the fixed single-column result every Delete
// reports: the number of rows it removed.
var deleteResultSchema = &value.Schema{Columns: []value.Column{
	{Name: "deleted", Type: value.TypeInteger, NotNull: true},
}}

// Delete drains Child entirely (which must ultimately be a SeqScan,
// possibly wrapped in a Filter) on its first Next call, marking each row
// deleted via Table.DeleteTuple, then reports the number of rows removed
// as its single output row. Grounded on
// original_source/src/executors/delete_executor.rs.
type Delete struct {
	Child Executor
	Table *heap.Table
	Tx    *txn.Transaction
	Mgr   *txn.Manager
	done  bool
}

func NewDelete(child Executor, table *heap.Table, tx *txn.Transaction, mgr *txn.Manager) *Delete {
	return &Delete{Child: child, Table: table, Tx: tx, Mgr: mgr}
}

func (d *Delete) Schema() *value.Schema { return deleteResultSchema }

func (d *Delete) Next() (value.Tuple, bool, error) {
	if d.done {
		return nil, false, nil
	}
	d.done = true

	count := int32(0)
	for {
		_, ok, err := d.Child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		tupleId, err := sourceTupleId(d.Child)
		if err != nil {
			return nil, false, err
		}
		counted, err := d.applyOne(tupleId)
		if err != nil {
			return nil, false, err
		}
		if counted {
			count++
		}
	}
	return value.Tuple{value.Integer(count)}, true, nil
}

// applyOne implements the per-row write-path retry loop of spec §4.9.
// The returned bool reports whether this row counts toward the reported
// total: only the Ok outcome counts, matching delete_executor.rs's
// tuples_deleted += 1 appearing solely in its Ok match arm.
func (d *Delete) applyOne(tupleId common.TupleId) (bool, error) {
	for {
		outcome, err := d.Table.DeleteTuple(tupleId, d.Tx)
		if err != nil {
			return false, err
		}
		switch outcome.Kind {
		case heap.WriteOk:
			return true, nil
		case heap.WriteSelfUpdated:
			return false, nil
		case heap.WriteDeleted:
			if d.Tx.Isolation() == txn.ReadCommitted {
				return false, nil
			}
			return false, dberr.New(dberr.Conflict, "exec.Delete", fmt.Errorf("could not serialize access due to concurrent update"))
		case heap.WriteUpdated:
			if d.Tx.Isolation() != txn.ReadCommitted {
				return false, dberr.New(dberr.Conflict, "exec.Delete", fmt.Errorf("could not serialize access due to concurrent update"))
			}
			d.Mgr.Refresh(d.Tx)
			newer, _, err := d.Table.FetchTuple(outcome.NewTupleId)
			if err != nil {
				return false, err
			}
			qualifies, err := d.Child.ReEvaluateTuple(newer)
			if err != nil {
				return false, err
			}
			if !qualifies {
				return false, nil
			}
			tupleId = outcome.NewTupleId
			continue
		default:
			return false, nil
		}
	}
}

func (d *Delete) Rewind() error {
	d.done = false
	return d.Child.Rewind()
}

func (d *Delete) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

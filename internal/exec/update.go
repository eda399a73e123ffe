package exec

import (
	"fmt"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// updateResultSchema is the fixed single-column result every Update
// reports: the number of rows it changed.
var updateResultSchema = &value.Schema{Columns: []value.Column{
	{Name: "updated", Type: value.TypeInteger, NotNull: true},
}}

// Update drains Child entirely (which must ultimately be a SeqScan,
// possibly wrapped in a Filter) on its first Next call, building a new
// version of each row from SetExprs and writing it via Table.UpdateTuple,
// then reports the number of rows changed as its single output row.
// Grounded on original_source/src/executors/update_executor.rs.
type Update struct {
	Child    Executor
	Table    *heap.Table
	SetExprs []value.Expr
	Tx       *txn.Transaction
	Mgr      *txn.Manager
	done     bool
}

func NewUpdate(child Executor, table *heap.Table, setExprs []value.Expr, tx *txn.Transaction, mgr *txn.Manager) *Update {
	return &Update{Child: child, Table: table, SetExprs: setExprs, Tx: tx, Mgr: mgr}
}

func (u *Update) Schema() *value.Schema { return updateResultSchema }

func (u *Update) Next() (value.Tuple, bool, error) {
	if u.done {
		return nil, false, nil
	}
	u.done = true

	count := int32(0)
	for {
		oldRow, ok, err := u.Child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		tupleId, err := sourceTupleId(u.Child)
		if err != nil {
			return nil, false, err
		}
		counted, err := u.applyOne(tupleId, oldRow)
		if err != nil {
			return nil, false, err
		}
		if counted {
			count++
		}
	}
	return value.Tuple{value.Integer(count)}, true, nil
}

func (u *Update) newVersion(row value.Tuple) (value.Tuple, error) {
	newRow := make(value.Tuple, len(u.SetExprs))
	for i, e := range u.SetExprs {
		v, err := e.Eval([]value.Tuple{row})
		if err != nil {
			return nil, err
		}
		newRow[i] = v
	}
	for idx, col := range u.Table.Schema().Columns {
		if err := value.ValidateForColumn(newRow[idx], col); err != nil {
			return nil, err
		}
	}
	return newRow, nil
}

// applyOne implements the per-row write-path retry loop of spec §4.9.
// The returned bool reports whether this row counts toward the reported
// total: only the Ok outcome counts, matching update_executor.rs's
// tuples_updated += 1 appearing solely in its Ok match arm.
func (u *Update) applyOne(tupleId common.TupleId, row value.Tuple) (bool, error) {
	for {
		newRow, err := u.newVersion(row)
		if err != nil {
			return false, err
		}
		outcome, err := u.Table.UpdateTuple(tupleId, newRow, u.Tx)
		if err != nil {
			return false, err
		}
		switch outcome.Kind {
		case heap.WriteOk:
			return true, nil
		case heap.WriteSelfUpdated:
			return false, nil
		case heap.WriteDeleted:
			if u.Tx.Isolation() == txn.ReadCommitted {
				return false, nil
			}
			return false, dberr.New(dberr.Conflict, "exec.Update", fmt.Errorf("could not serialize access due to concurrent update"))
		case heap.WriteUpdated:
			if u.Tx.Isolation() != txn.ReadCommitted {
				return false, dberr.New(dberr.Conflict, "exec.Update", fmt.Errorf("could not serialize access due to concurrent update"))
			}
			u.Mgr.Refresh(u.Tx)
			newer, _, err := u.Table.FetchTuple(outcome.NewTupleId)
			if err != nil {
				return false, err
			}
			qualifies, err := u.Child.ReEvaluateTuple(newer)
			if err != nil {
				return false, err
			}
			if !qualifies {
				return false, nil
			}
			tupleId = outcome.NewTupleId
			row = newer
			continue
		default:
			return false, nil
		}
	}
}

func (u *Update) Rewind() error {
	u.done = false
	return u.Child.Rewind()
}

func (u *Update) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

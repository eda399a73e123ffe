package exec

import (
	"fmt"

	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// insertResultSchema is the fixed single-column result every Insert
// reports: the number of rows it wrote.
var insertResultSchema = &value.Schema{Columns: []value.Column{
	{Name: "inserted", Type: value.TypeInteger, NotNull: true},
}}

// Insert drains Child entirely (typically a Values node) on its first
// Next call, inserting every row into Table under Tx, then reports the
// number of rows written as its single output row.
type Insert struct {
	Child Executor
	Table *heap.Table
	Tx    *txn.Transaction
	done  bool
}

func NewInsert(child Executor, table *heap.Table, tx *txn.Transaction) *Insert {
	return &Insert{Child: child, Table: table, Tx: tx}
}

func (i *Insert) Schema() *value.Schema { return insertResultSchema }

func (i *Insert) Next() (value.Tuple, bool, error) {
	if i.done {
		return nil, false, nil
	}
	i.done = true

	schema := i.Table.Schema()
	count := int32(0)
	for {
		row, ok, err := i.Child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		if len(row) != len(schema.Columns) {
			return nil, false, fmt.Errorf("insert row has %d values, table has %d columns", len(row), len(schema.Columns))
		}
		for idx, col := range schema.Columns {
			if err := value.ValidateForColumn(row[idx], col); err != nil {
				return nil, false, err
			}
		}
		if _, err := i.Table.InsertTuple(row, i.Tx.ID()); err != nil {
			return nil, false, err
		}
		count++
	}
	return value.Tuple{value.Integer(count)}, true, nil
}

func (i *Insert) Rewind() error {
	i.done = false
	return i.Child.Rewind()
}

func (i *Insert) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

// Package exec implements the volcano-style physical executor tree of
// spec §4.8: every operator is both its own physical plan node and its own
// iterator, exposing Schema/Next/Rewind. The SQL tokenizer, parser,
// analyzer and cost-based optimizer that would normally produce this tree
// are out of scope here (spec §1) — ExecutorFactory.Create is the seam
// those layers plug into.
package exec

import (
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// Executor is one node of the physical plan tree.
type Executor interface {
	// Schema describes the shape of the tuples Next returns.
	Schema() *value.Schema
	// Next returns the next output tuple, or ok=false once exhausted.
	Next() (value.Tuple, bool, error)
	// Rewind resets the node (and, transitively, its children) to start
	// producing its output again from the beginning.
	Rewind() error
	// ReEvaluateTuple re-checks a single row this node did not itself
	// produce (refetched after a concurrent write) against whatever
	// predicate this node represents, without consuming from Next. Every
	// node except Filter simply reports true — only Filter has anything to
	// check. Update/Delete's write-path retry loop (spec §4.9) uses this
	// when a concurrent update forces it to move to a newer tuple version
	// mid-statement, to decide whether that version still qualifies.
	ReEvaluateTuple(row value.Tuple) (bool, error)
}

// ExecutorFactory builds an executor tree. It carries the active
// transaction, which Create hands to the leaf scan/write nodes because
// they need its MVCC visibility snapshot.
type ExecutorFactory struct {
	Tx *txn.Transaction
}

func NewExecutorFactory(tx *txn.Transaction) *ExecutorFactory {
	return &ExecutorFactory{Tx: tx}
}

// exprType reports the declared column type an expression's result should
// carry in an output schema: a ColumnRef's own column type, a Lit's value
// kind, or TypeInteger as a last-resort default for anything this node's
// planner-less construction can't otherwise infer (e.g. an arithmetic
// expression, which always yields Integer here since spec §4.7 has no
// other numeric type).
func exprType(childSchema *value.Schema, e value.Expr) value.TypeId {
	switch ex := e.(type) {
	case value.ColumnRef:
		if ex.TupleIdx == 0 && ex.ColIdx >= 0 && ex.ColIdx < len(childSchema.Columns) {
			return childSchema.Columns[ex.ColIdx].Type
		}
	case value.Lit:
		switch ex.V.Kind() {
		case value.KindBoolean:
			return value.TypeBoolean
		case value.KindText:
			return value.TypeText
		case value.KindInteger:
			return value.TypeInteger
		}
	}
	return value.TypeInteger
}

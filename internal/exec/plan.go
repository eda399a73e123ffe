package exec

import (
	"fmt"

	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// PlanNode is the physical plan shape ExecutorFactory.Create consumes.
// Spec §1 places the tokenizer, parser, analyzer and cost-based optimizer
// that would normally produce a PlanNode tree out of scope for this core;
// Create is the seam their output is handed to.
type PlanNode interface {
	isPlanNode()
}

type SeqScanPlan struct{ Table *heap.Table }
type FilterPlan struct {
	Child     PlanNode
	Predicate value.Expr
}
type ProjectionPlan struct {
	Child PlanNode
	Exprs []value.Expr
	Names []string
}
type ValuesPlan struct {
	Rows   [][]value.Expr
	Schema *value.Schema
}
type NestedLoopJoinPlan struct {
	Left, Right PlanNode
	On          value.Expr
}
type AggregatePlan struct {
	Child PlanNode
	Aggs  []AggExpr
}
type InsertPlan struct {
	Child PlanNode
	Table *heap.Table
}
type UpdatePlan struct {
	Child    PlanNode
	Table    *heap.Table
	SetExprs []value.Expr
}
type DeletePlan struct {
	Child PlanNode
	Table *heap.Table
}

func (SeqScanPlan) isPlanNode()        {}
func (FilterPlan) isPlanNode()         {}
func (ProjectionPlan) isPlanNode()     {}
func (ValuesPlan) isPlanNode()         {}
func (NestedLoopJoinPlan) isPlanNode() {}
func (AggregatePlan) isPlanNode()      {}
func (InsertPlan) isPlanNode()         {}
func (UpdatePlan) isPlanNode()         {}
func (DeletePlan) isPlanNode()         {}

// Create builds an executor tree for plan, threading the factory's
// transaction (and, for write nodes, mgr) through every leaf.
func (f *ExecutorFactory) Create(plan PlanNode, mgr *txn.Manager) (Executor, error) {
	switch p := plan.(type) {
	case SeqScanPlan:
		return NewSeqScan(p.Table, f.Tx)
	case FilterPlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewFilter(child, p.Predicate), nil
	case ProjectionPlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewProjection(child, p.Exprs, p.Names), nil
	case ValuesPlan:
		return NewValues(p.Rows, p.Schema), nil
	case NestedLoopJoinPlan:
		left, err := f.Create(p.Left, mgr)
		if err != nil {
			return nil, err
		}
		right, err := f.Create(p.Right, mgr)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoin(left, right, p.On), nil
	case AggregatePlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewAggregate(child, p.Aggs), nil
	case InsertPlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewInsert(child, p.Table, f.Tx), nil
	case UpdatePlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewUpdate(child, p.Table, p.SetExprs, f.Tx, mgr), nil
	case DeletePlan:
		child, err := f.Create(p.Child, mgr)
		if err != nil {
			return nil, err
		}
		return NewDelete(child, p.Table, f.Tx, mgr), nil
	default:
		return nil, fmt.Errorf("exec: unknown plan node %T", plan)
	}
}

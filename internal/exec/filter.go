package exec

import (
	"github.com/dbcore/erdb/internal/value"
)

// Filter passes through only the child rows for which Predicate evaluates
// to Boolean(true) — Null and Boolean(false) are both rejected, per
// AsFilterBool's coercion rule.
type Filter struct {
	Child     Executor
	Predicate value.Expr
}

func NewFilter(child Executor, predicate value.Expr) *Filter {
	return &Filter{Child: child, Predicate: predicate}
}

func (f *Filter) Schema() *value.Schema { return f.Child.Schema() }

func (f *Filter) Next() (value.Tuple, bool, error) {
	for {
		row, ok, err := f.Child.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		pass, err := f.ReEvaluateTuple(row)
		if err != nil {
			return nil, false, err
		}
		if pass {
			return row, true, nil
		}
	}
}

func (f *Filter) Rewind() error { return f.Child.Rewind() }

// ReEvaluateTuple re-checks a single row against Predicate (and, first,
// against the child's own predicate if it has one) without consuming the
// child, for the write-path retry loop of spec §4.9.
func (f *Filter) ReEvaluateTuple(row value.Tuple) (bool, error) {
	childOk, err := f.Child.ReEvaluateTuple(row)
	if err != nil || !childOk {
		return false, err
	}
	v, err := f.Predicate.Eval([]value.Tuple{row})
	if err != nil {
		return false, err
	}
	return value.AsFilterBool(v), nil
}

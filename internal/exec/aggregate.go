package exec

import "github.com/dbcore/erdb/internal/value"

// AggFunc names a supported aggregate function. Spec §4.8 only requires
// count(expr) and max(expr); mixing an aggregate with a bare (non-grouped)
// column reference is an out-of-scope analysis error the planner layer
// above this package is responsible for rejecting before it ever reaches
// here.
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggMax
)

// AggExpr is one aggregate to compute: e.g. count(a.x) or max(a.y).
type AggExpr struct {
	Func AggFunc
	Arg  value.Expr
	Name string
}

// Aggregate consumes its entire child once and produces exactly one output
// row, with one column per AggExpr.
type Aggregate struct {
	Child    Executor
	Aggs     []AggExpr
	out      *value.Schema
	computed bool
	done     bool
	result   value.Tuple
}

func NewAggregate(child Executor, aggs []AggExpr) *Aggregate {
	cols := make([]value.Column, len(aggs))
	for i, a := range aggs {
		typ := value.TypeInteger
		if a.Func == AggMax {
			typ = exprType(child.Schema(), a.Arg)
		}
		cols[i] = value.Column{Name: a.Name, Type: typ}
	}
	return &Aggregate{Child: child, Aggs: aggs, out: &value.Schema{Columns: cols}}
}

func (a *Aggregate) Schema() *value.Schema { return a.out }

func (a *Aggregate) Next() (value.Tuple, bool, error) {
	if !a.computed {
		if err := a.compute(); err != nil {
			return nil, false, err
		}
	}
	if a.done {
		return nil, false, nil
	}
	a.done = true
	return a.result, true, nil
}

func (a *Aggregate) compute() error {
	counts := make([]int32, len(a.Aggs))
	maxes := make([]value.Value, len(a.Aggs))
	haveMax := make([]bool, len(a.Aggs))

	for {
		row, ok, err := a.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for i, agg := range a.Aggs {
			v, err := agg.Arg.Eval([]value.Tuple{row})
			if err != nil {
				return err
			}
			if v.IsNull() {
				continue
			}
			switch agg.Func {
			case AggCount:
				counts[i]++
			case AggMax:
				if !haveMax[i] || greaterValue(v, maxes[i]) {
					maxes[i] = v
					haveMax[i] = true
				}
			}
		}
	}

	result := make(value.Tuple, len(a.Aggs))
	for i, agg := range a.Aggs {
		switch agg.Func {
		case AggCount:
			result[i] = value.Integer(counts[i])
		case AggMax:
			if haveMax[i] {
				result[i] = maxes[i]
			} else {
				result[i] = value.Null()
			}
		}
	}
	a.result = result
	a.computed = true
	return nil
}

func (a *Aggregate) Rewind() error {
	a.computed = false
	a.done = false
	return a.Child.Rewind()
}

// ReEvaluateTuple always succeeds: an aggregate has no per-row predicate.
func (a *Aggregate) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

func greaterValue(a, b value.Value) bool {
	switch a.Kind() {
	case value.KindInteger:
		return a.AsInt() > b.AsInt()
	case value.KindText:
		return value.CompareText(a.AsText(), b.AsText()) > 0
	case value.KindBoolean:
		return a.AsBool() && !b.AsBool()
	}
	return false
}

package exec

import "github.com/dbcore/erdb/internal/value"

// Projection evaluates a fixed list of expressions against each child row,
// producing one output column per expression.
type Projection struct {
	Child Executor
	Exprs []value.Expr
	names []string
	out   *value.Schema
}

func NewProjection(child Executor, exprs []value.Expr, names []string) *Projection {
	cols := make([]value.Column, len(exprs))
	for i, n := range names {
		cols[i] = value.Column{Name: n, Type: exprType(child.Schema(), exprs[i])}
	}
	return &Projection{Child: child, Exprs: exprs, names: names, out: &value.Schema{Columns: cols}}
}

func (p *Projection) Schema() *value.Schema { return p.out }

func (p *Projection) Next() (value.Tuple, bool, error) {
	row, ok, err := p.Child.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make(value.Tuple, len(p.Exprs))
	for i, e := range p.Exprs {
		v, err := e.Eval([]value.Tuple{row})
		if err != nil {
			return nil, false, err
		}
		out[i] = v
	}
	return out, true, nil
}

func (p *Projection) Rewind() error { return p.Child.Rewind() }

// ReEvaluateTuple always succeeds: a projection has no predicate.
func (p *Projection) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

package exec

import "github.com/dbcore/erdb/internal/value"

// Values evaluates a fixed list of literal rows against an empty tuple
// environment, producing a constant result set with no table behind it —
// the physical form of a SQL VALUES clause or an INSERT's row list.
type Values struct {
	Rows   [][]value.Expr
	out    *value.Schema
	cursor int
}

func NewValues(rows [][]value.Expr, schema *value.Schema) *Values {
	return &Values{Rows: rows, out: schema}
}

func (v *Values) Schema() *value.Schema { return v.out }

func (v *Values) Next() (value.Tuple, bool, error) {
	if v.cursor >= len(v.Rows) {
		return nil, false, nil
	}
	row := v.Rows[v.cursor]
	v.cursor++
	out := make(value.Tuple, len(row))
	for i, e := range row {
		val, err := e.Eval(nil)
		if err != nil {
			return nil, false, err
		}
		out[i] = val
	}
	return out, true, nil
}

func (v *Values) Rewind() error {
	v.cursor = 0
	return nil
}

// ReEvaluateTuple always succeeds: a constant row set has no predicate.
func (v *Values) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

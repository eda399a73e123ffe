package exec

import "github.com/dbcore/erdb/internal/value"

// NestedLoopJoin pairs every left row with every right row, keeping only
// pairs for which On (evaluated with row = []Tuple{left, right}) evaluates
// to Boolean(true). The right child is fully rewound for every left row.
type NestedLoopJoin struct {
	Left, Right Executor
	On          value.Expr
	out         *value.Schema
	curLeft     value.Tuple
	haveLeft    bool
}

func NewNestedLoopJoin(left, right Executor, on value.Expr) *NestedLoopJoin {
	cols := append(append([]value.Column{}, left.Schema().Columns...), right.Schema().Columns...)
	return &NestedLoopJoin{Left: left, Right: right, On: on, out: &value.Schema{Columns: cols}}
}

func (j *NestedLoopJoin) Schema() *value.Schema { return j.out }

func (j *NestedLoopJoin) Next() (value.Tuple, bool, error) {
	for {
		if !j.haveLeft {
			row, ok, err := j.Left.Next()
			if err != nil || !ok {
				return nil, ok, err
			}
			j.curLeft = row
			j.haveLeft = true
			if err := j.Right.Rewind(); err != nil {
				return nil, false, err
			}
		}

		rightRow, ok, err := j.Right.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			j.haveLeft = false
			continue
		}

		v, err := j.On.Eval([]value.Tuple{j.curLeft, rightRow})
		if err != nil {
			return nil, false, err
		}
		if !value.AsFilterBool(v) {
			continue
		}
		out := make(value.Tuple, 0, len(j.curLeft)+len(rightRow))
		out = append(out, j.curLeft...)
		out = append(out, rightRow...)
		return out, true, nil
	}
}

func (j *NestedLoopJoin) Rewind() error {
	j.haveLeft = false
	return j.Left.Rewind()
}

// ReEvaluateTuple always succeeds: the join condition is only meaningful
// across a (left, right) pair, not a single already-joined output row.
func (j *NestedLoopJoin) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }

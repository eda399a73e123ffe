package value

import (
	"fmt"

	"github.com/dbcore/erdb/internal/dberr"
)

// Tuple is a parsed row: one Value per column, in schema order.
type Tuple []Value

// Expr is a physical expression node (spec §4.7): evaluated against the
// input tuples of the executor node that owns it. Row holds one Tuple per
// input side (length 1 for most nodes, length 2 for a join's ON clause).
type Expr interface {
	Eval(row []Tuple) (Value, error)
}

// ColumnRef indexes into the TupleIdx-th input tuple (0 for single-input
// nodes, 0 or 1 for a join) at ColIdx.
type ColumnRef struct {
	TupleIdx int
	ColIdx   int
}

func (c ColumnRef) Eval(row []Tuple) (Value, error) {
	if c.TupleIdx >= len(row) || c.ColIdx >= len(row[c.TupleIdx]) {
		return Null(), fmt.Errorf("column reference (%d,%d) out of range", c.TupleIdx, c.ColIdx)
	}
	return row[c.TupleIdx][c.ColIdx], nil
}

// Lit is a constant value expression, also used to evaluate Values-node
// rows against an empty tuple environment.
type Lit struct{ V Value }

func (l Lit) Eval(row []Tuple) (Value, error) { return l.V, nil }

// UnaryOp is the operator of a Unary expression.
type UnaryOp uint8

const (
	UnaryPlus UnaryOp = iota
	UnaryMinus
)

type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (u Unary) Eval(row []Tuple) (Value, error) {
	v, err := u.Operand.Eval(row)
	if err != nil {
		return Null(), err
	}
	if v.IsNull() {
		return Null(), nil
	}
	if v.Kind() != KindInteger {
		return Null(), fmt.Errorf("unary %v applied to non-integer value %v", u.Op, v)
	}
	if u.Op == UnaryMinus {
		return Integer(-v.AsInt()), nil
	}
	return v, nil
}

// BinaryOp is the operator of a Binary expression.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

func (b Binary) Eval(row []Tuple) (Value, error) {
	l, err := b.Left.Eval(row)
	if err != nil {
		return Null(), err
	}

	// AND/OR always evaluate both sides and combine them with three-valued
	// logic; the two sides need not have the same type.
	if b.Op == And || b.Op == Or {
		r, err := b.Right.Eval(row)
		if err != nil {
			return Null(), err
		}
		return evalBoolLogic(b.Op, l, r)
	}

	r, err := b.Right.Eval(row)
	if err != nil {
		return Null(), err
	}
	if l.IsNull() || r.IsNull() {
		return Null(), nil
	}
	switch b.Op {
	case Add, Sub, Mul, Div, Mod:
		return evalArith(b.Op, l, r)
	default:
		return evalCompare(b.Op, l, r)
	}
}

func evalBoolLogic(op BinaryOp, l, r Value) (Value, error) {
	lt := triStateOf(l)
	rt := triStateOf(r)
	if op == And {
		return triAnd(lt, rt), nil
	}
	return triOr(lt, rt), nil
}

// triState is Boolean(true)/Boolean(false)/Null represented as *bool
// (nil == unknown), used only internally to implement three-valued AND/OR.
type triState *bool

func triStateOf(v Value) triState {
	if v.IsNull() {
		return nil
	}
	b := v.AsBool()
	return &b
}

func triAnd(l, r triState) Value {
	if l != nil && !*l {
		return Boolean(false)
	}
	if r != nil && !*r {
		return Boolean(false)
	}
	if l == nil || r == nil {
		return Null()
	}
	return Boolean(*l && *r)
}

func triOr(l, r triState) Value {
	if l != nil && *l {
		return Boolean(true)
	}
	if r != nil && *r {
		return Boolean(true)
	}
	if l == nil || r == nil {
		return Null()
	}
	return Boolean(*l || *r)
}

func evalArith(op BinaryOp, l, r Value) (Value, error) {
	if l.Kind() != KindInteger || r.Kind() != KindInteger {
		return Null(), fmt.Errorf("arithmetic on non-integer operands %v, %v", l, r)
	}
	a, b := l.AsInt(), r.AsInt()
	switch op {
	case Add:
		return Integer(a + b), nil
	case Sub:
		return Integer(a - b), nil
	case Mul:
		return Integer(a * b), nil
	case Div:
		if b == 0 {
			return Null(), dberr.New(dberr.Expression, "value.Eval", fmt.Errorf("division by zero"))
		}
		return Integer(a / b), nil
	case Mod:
		if b == 0 {
			return Null(), dberr.New(dberr.Expression, "value.Eval", fmt.Errorf("modulo by zero"))
		}
		return Integer(a % b), nil
	}
	panic("unreachable arithmetic op")
}

func evalCompare(op BinaryOp, l, r Value) (Value, error) {
	if l.Kind() != r.Kind() {
		return Null(), fmt.Errorf("cannot compare %v with %v", l.Kind(), r.Kind())
	}
	var cmp int
	switch l.Kind() {
	case KindBoolean:
		cmp = boolCmp(l.AsBool(), r.AsBool())
	case KindInteger:
		cmp = intCmp(l.AsInt(), r.AsInt())
	case KindText:
		if op == Eq || op == Ne {
			cmp = boolToCmp(l.AsText() == r.AsText())
		} else {
			cmp = CompareText(l.AsText(), r.AsText())
		}
	}
	switch op {
	case Eq:
		return Boolean(cmp == 0), nil
	case Ne:
		return Boolean(cmp != 0), nil
	case Lt:
		return Boolean(cmp < 0), nil
	case Le:
		return Boolean(cmp <= 0), nil
	case Gt:
		return Boolean(cmp > 0), nil
	case Ge:
		return Boolean(cmp >= 0), nil
	}
	panic("unreachable comparison op")
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func intCmp(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToCmp(eq bool) int {
	if eq {
		return 0
	}
	return 1
}

// IsNull and IsNotNull return Boolean, never Null, for any operand that
// evaluates successfully — only its nullness is observed. An error from
// evaluating the operand is returned as is.
type IsNull struct{ Operand Expr }

func (n IsNull) Eval(row []Tuple) (Value, error) {
	v, err := n.Operand.Eval(row)
	if err != nil {
		return Null(), err
	}
	return Boolean(v.IsNull()), nil
}

type IsNotNull struct{ Operand Expr }

func (n IsNotNull) Eval(row []Tuple) (Value, error) {
	v, err := n.Operand.Eval(row)
	if err != nil {
		return Null(), err
	}
	return Boolean(!v.IsNull()), nil
}

// AsFilterBool coerces an expression's result for use as a filter
// predicate: only Boolean(true) passes.
func AsFilterBool(v Value) bool {
	return v.Kind() == KindBoolean && v.AsBool()
}

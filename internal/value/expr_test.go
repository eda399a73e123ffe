package value

import "testing"

func row1(vals ...Value) []Tuple {
	return []Tuple{Tuple(vals)}
}

func TestColumnRefEval(t *testing.T) {
	ref := ColumnRef{TupleIdx: 0, ColIdx: 1}
	v, err := ref.Eval(row1(Integer(1), Text("hi")))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !v.Equal(Text("hi")) {
		t.Fatalf("got %v, want Text(hi)", v)
	}

	if _, err := ref.Eval(row1(Integer(1))); err == nil {
		t.Fatalf("expected out-of-range column reference to error")
	}
}

func TestArithmeticNullPropagation(t *testing.T) {
	expr := Binary{Op: Add, Left: Lit{Null()}, Right: Lit{Integer(1)}}
	v, err := expr.Eval(nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL + 1 = NULL, got %v", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	expr := Binary{Op: Div, Left: Lit{Integer(1)}, Right: Lit{Integer(0)}}
	if _, err := expr.Eval(nil); err == nil {
		t.Fatalf("expected division by zero to error")
	}
}

func TestThreeValuedAnd(t *testing.T) {
	cases := []struct {
		l, r Value
		want Value
	}{
		{Boolean(false), Null(), Boolean(false)}, // false wins regardless of unknown
		{Null(), Boolean(false), Boolean(false)},
		{Boolean(true), Null(), Null()},
		{Null(), Null(), Null()},
		{Boolean(true), Boolean(true), Boolean(true)},
	}
	for _, c := range cases {
		expr := Binary{Op: And, Left: Lit{c.l}, Right: Lit{c.r}}
		got, err := expr.Eval(nil)
		if err != nil {
			t.Fatalf("Eval(%v AND %v): %v", c.l, c.r, err)
		}
		if !got.Equal(c.want) {
			t.Errorf("%v AND %v = %v, want %v", c.l, c.r, got, c.want)
		}
	}
}

func TestThreeValuedOr(t *testing.T) {
	cases := []struct {
		l, r Value
		want Value
	}{
		{Boolean(true), Null(), Boolean(true)}, // true wins regardless of unknown
		{Null(), Boolean(true), Boolean(true)},
		{Boolean(false), Null(), Null()},
		{Null(), Null(), Null()},
		{Boolean(false), Boolean(false), Boolean(false)},
	}
	for _, c := range cases {
		expr := Binary{Op: Or, Left: Lit{c.l}, Right: Lit{c.r}}
		got, err := expr.Eval(nil)
		if err != nil {
			t.Fatalf("Eval(%v OR %v): %v", c.l, c.r, err)
		}
		if !got.Equal(c.want) {
			t.Errorf("%v OR %v = %v, want %v", c.l, c.r, got, c.want)
		}
	}
}

func TestComparisonNullPropagation(t *testing.T) {
	expr := Binary{Op: Eq, Left: Lit{Null()}, Right: Lit{Integer(1)}}
	v, err := expr.Eval(nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL = 1 to be NULL (not false), got %v", v)
	}
}

func TestIsNullIsNotNull(t *testing.T) {
	if v, _ := (IsNull{Lit{Null()}}).Eval(nil); !v.Equal(Boolean(true)) {
		t.Fatalf("IS NULL on NULL should be TRUE, got %v", v)
	}
	if v, _ := (IsNull{Lit{Integer(1)}}).Eval(nil); !v.Equal(Boolean(false)) {
		t.Fatalf("IS NULL on 1 should be FALSE, got %v", v)
	}
	if v, _ := (IsNotNull{Lit{Null()}}).Eval(nil); !v.Equal(Boolean(false)) {
		t.Fatalf("IS NOT NULL on NULL should be FALSE, got %v", v)
	}
}

func TestAsFilterBool(t *testing.T) {
	if AsFilterBool(Null()) {
		t.Fatalf("NULL should not pass a filter")
	}
	if AsFilterBool(Boolean(false)) {
		t.Fatalf("FALSE should not pass a filter")
	}
	if !AsFilterBool(Boolean(true)) {
		t.Fatalf("TRUE should pass a filter")
	}
}

func TestTextComparisonOperators(t *testing.T) {
	expr := Binary{Op: Lt, Left: Lit{Text("a")}, Right: Lit{Text("b")}}
	v, err := expr.Eval(nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !v.Equal(Boolean(true)) {
		t.Fatalf("expected \"a\" < \"b\" to be TRUE")
	}
}

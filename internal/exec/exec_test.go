package exec

import (
	"testing"

	"github.com/dbcore/erdb/internal/value"
)

func TestValuesProducesEvaluatedRows(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	v := NewValues([][]value.Expr{
		{value.Lit{V: value.Integer(1)}},
		{value.Lit{V: value.Integer(2)}},
	}, schema)

	var got []value.Tuple
	for {
		row, ok, err := v.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if !got[0][0].Equal(value.Integer(1)) || !got[1][0].Equal(value.Integer(2)) {
		t.Fatalf("unexpected rows: %v", got)
	}

	if err := v.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}
	_, ok, err := v.Next()
	if err != nil || !ok {
		t.Fatalf("expected a row after rewind, ok=%v err=%v", ok, err)
	}
}

func TestFilterKeepsOnlyMatchingRows(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	src := NewValues([][]value.Expr{
		{value.Lit{V: value.Integer(1)}},
		{value.Lit{V: value.Integer(2)}},
		{value.Lit{V: value.Integer(3)}},
	}, schema)
	predicate := value.Binary{Op: value.Gt, Left: value.ColumnRef{ColIdx: 0}, Right: value.Lit{V: value.Integer(1)}}
	f := NewFilter(src, predicate)

	var got []int32
	for {
		row, ok, err := f.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row[0].AsInt())
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3], got %v", got)
	}
}

func TestFilterReEvaluateTupleComposesWithChild(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	src := NewValues(nil, schema)
	predicate := value.Binary{Op: value.Gt, Left: value.ColumnRef{ColIdx: 0}, Right: value.Lit{V: value.Integer(1)}}
	f := NewFilter(src, predicate)

	ok, err := f.ReEvaluateTuple(value.Tuple{value.Integer(5)})
	if err != nil {
		t.Fatalf("ReEvaluateTuple: %v", err)
	}
	if !ok {
		t.Fatalf("expected 5 > 1 to qualify")
	}
	ok, err = f.ReEvaluateTuple(value.Tuple{value.Integer(0)})
	if err != nil {
		t.Fatalf("ReEvaluateTuple: %v", err)
	}
	if ok {
		t.Fatalf("expected 0 > 1 to not qualify")
	}
}

func TestProjectionEvaluatesExpressions(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	src := NewValues([][]value.Expr{{value.Lit{V: value.Integer(10)}}}, schema)
	doubled := value.Binary{Op: value.Mul, Left: value.ColumnRef{ColIdx: 0}, Right: value.Lit{V: value.Integer(2)}}
	p := NewProjection(src, []value.Expr{doubled}, []string{"doubled"})

	row, ok, err := p.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !row[0].Equal(value.Integer(20)) {
		t.Fatalf("expected 20, got %v", row[0])
	}
	if p.Schema().Columns[0].Name != "doubled" {
		t.Fatalf("expected output column named doubled")
	}
}

func TestNestedLoopJoinMatchesPairs(t *testing.T) {
	leftSchema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	rightSchema := &value.Schema{Columns: []value.Column{{Name: "b", Type: value.TypeInteger}}}
	left := NewValues([][]value.Expr{
		{value.Lit{V: value.Integer(1)}},
		{value.Lit{V: value.Integer(2)}},
	}, leftSchema)
	right := NewValues([][]value.Expr{
		{value.Lit{V: value.Integer(1)}},
		{value.Lit{V: value.Integer(2)}},
	}, rightSchema)
	on := value.Binary{Op: value.Eq, Left: value.ColumnRef{TupleIdx: 0, ColIdx: 0}, Right: value.ColumnRef{TupleIdx: 1, ColIdx: 0}}
	join := NewNestedLoopJoin(left, right, on)

	var pairs [][2]int32
	for {
		row, ok, err := join.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		pairs = append(pairs, [2]int32{row[0].AsInt(), row[1].AsInt()})
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 matching pairs, got %d: %v", len(pairs), pairs)
	}
	if pairs[0] != [2]int32{1, 1} || pairs[1] != [2]int32{2, 2} {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
	if len(join.Schema().Columns) != 2 {
		t.Fatalf("expected joined schema to concatenate both sides, got %d columns", len(join.Schema().Columns))
	}
}

func TestAggregateCountAndMax(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	src := NewValues([][]value.Expr{
		{value.Lit{V: value.Integer(3)}},
		{value.Lit{V: value.Integer(7)}},
		{value.Lit{V: value.Null()}},
	}, schema)
	aggs := []AggExpr{
		{Func: AggCount, Arg: value.ColumnRef{ColIdx: 0}, Name: "cnt"},
		{Func: AggMax, Arg: value.ColumnRef{ColIdx: 0}, Name: "mx"},
	}
	agg := NewAggregate(src, aggs)

	row, ok, err := agg.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if row[0].AsInt() != 2 {
		t.Fatalf("expected count 2 (NULL excluded), got %v", row[0])
	}
	if row[1].AsInt() != 7 {
		t.Fatalf("expected max 7, got %v", row[1])
	}

	_, ok, err = agg.Next()
	if err != nil {
		t.Fatalf("Next (second call): %v", err)
	}
	if ok {
		t.Fatalf("expected aggregate to yield exactly one row")
	}
}

func TestAggregateMaxAllNullIsNull(t *testing.T) {
	schema := &value.Schema{Columns: []value.Column{{Name: "a", Type: value.TypeInteger}}}
	src := NewValues([][]value.Expr{{value.Lit{V: value.Null()}}}, schema)
	agg := NewAggregate(src, []AggExpr{{Func: AggMax, Arg: value.ColumnRef{ColIdx: 0}, Name: "mx"}})
	row, ok, err := agg.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !row[0].IsNull() {
		t.Fatalf("expected MAX over all-NULL input to be NULL, got %v", row[0])
	}
}

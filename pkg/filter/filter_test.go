package filter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/matte1782/edgevec-sub002/pkg/metadata"
)

func TestParseSimpleComparison(t *testing.T) {
	expr, err := Parse(`category = "a"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmp, ok := expr.(Cmp)
	if !ok {
		t.Fatalf("expected Cmp, got %T", expr)
	}
	if cmp.Field != "category" || cmp.Op != OpEq || cmp.Value.Str != "a" {
		t.Fatalf("unexpected parse result: %+v", cmp)
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	// AND binds tighter than OR: "a OR b AND c" == "a OR (b AND c)".
	expr, err := Parse(`x = 1 OR y = 2 AND z = 3`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	or, ok := expr.(Or)
	if !ok {
		t.Fatalf("expected top-level Or, got %T", expr)
	}
	if len(or.Operands) != 2 {
		t.Fatalf("expected 2 OR operands, got %d", len(or.Operands))
	}
	if _, ok := or.Operands[0].(Cmp); !ok {
		t.Fatalf("expected first OR operand to be Cmp, got %T", or.Operands[0])
	}
	if _, ok := or.Operands[1].(And); !ok {
		t.Fatalf("expected second OR operand to be And, got %T", or.Operands[1])
	}
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	expr, err := Parse(`(x = 1 OR y = 2) AND z = 3`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	and, ok := expr.(And)
	if !ok {
		t.Fatalf("expected top-level And, got %T", expr)
	}
	if _, ok := and.Operands[0].(Or); !ok {
		t.Fatalf("expected first AND operand to be Or, got %T", and.Operands[0])
	}
}

func TestParseNot(t *testing.T) {
	expr, err := Parse(`NOT active = true`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := expr.(Not); !ok {
		t.Fatalf("expected Not, got %T", expr)
	}
}

func TestParseIsNull(t *testing.T) {
	expr, err := Parse(`field IS NULL`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	isNull, ok := expr.(IsNull)
	if !ok || isNull.Negated {
		t.Fatalf("expected non-negated IsNull, got %+v", expr)
	}

	expr, err = Parse(`field IS NOT NULL`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	isNull, ok = expr.(IsNull)
	if !ok || !isNull.Negated {
		t.Fatalf("expected negated IsNull, got %+v", expr)
	}
}

func TestParseIn(t *testing.T) {
	expr, err := Parse(`category IN ("a", "b", "c")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in, ok := expr.(In)
	if !ok {
		t.Fatalf("expected In, got %T", expr)
	}
	if len(in.Values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(in.Values))
	}
}

func TestParseLikeAndContains(t *testing.T) {
	if _, err := Parse(`name LIKE "a%b"`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Parse(`name CONTAINS "sub"`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseMalformedInputReturnsParseError(t *testing.T) {
	cases := []string{
		``,
		`field = `,
		`field =`,
		`(field = 1`,
		`field = 1)`,
		`field IN (1, 2`,
		`field IS`,
		`field IS NOT`,
		`"unterminated`,
		`field !`,
		`field = @`,
	}
	for _, src := range cases {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("expected parse error for %q, got none", src)
			continue
		}
		if _, ok := err.(*ParseError); !ok {
			t.Errorf("expected *ParseError for %q, got %T", src, err)
		}
	}
}

func TestParseInputTooLarge(t *testing.T) {
	huge := strings.Repeat("a", MaxInputBytes+1)
	_, err := Parse(huge)
	if err == nil {
		t.Fatal("expected ParseError for oversized input")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Kind != errInputTooLargeKind {
		t.Errorf("expected input-too-large kind, got %q", pe.Kind)
	}
}

func TestParseNestingTooDeep(t *testing.T) {
	var sb strings.Builder
	depth := MaxNestingDepth + 20
	for i := 0; i < depth; i++ {
		sb.WriteString("NOT ")
	}
	sb.WriteString("x = 1")
	_, err := Parse(sb.String())
	if err == nil {
		t.Fatal("expected ParseError for excessive nesting")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Kind != errNestingTooDeepKind {
		t.Errorf("expected nesting-too-deep kind, got %q", pe.Kind)
	}
}

// TestParseNeverPanics checks that the parser never aborts the process
// regardless of input. It fuzzes small mutations of valid and invalid
// fragments and asserts Parse always returns normally.
func TestParseNeverPanics(t *testing.T) {
	fragments := []string{
		"", "(", ")", "AND", "OR", "NOT", "=", "!=", ">=", "<=",
		`"`, `'`, "field", "field =", "field = 1", "1 = field",
		"field IN (", "field IN ()", "field IS", "field IS NOT",
		"((((", "))))", `field = "unterminated`, "field LIKE",
		"-", "-.", "1.2.3", "field = -", "\x00\x01\x02",
	}
	for i, a := range fragments {
		for j, b := range fragments {
			src := a + " " + b
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Parse panicked on %q (fragments %d,%d): %v", src, i, j, r)
					}
				}()
				_, _ = Parse(src)
			}()
		}
	}
}

func TestEvalMissingFieldIsFalseExceptIsNull(t *testing.T) {
	rec := metadata.Record{}

	cmp := Cmp{Field: "missing", Op: OpEq, Value: Literal{Kind: LitInt, I64: 1}}
	if Eval(cmp, rec) {
		t.Error("expected false for comparison on missing field")
	}

	isNull := IsNull{Field: "missing"}
	if !Eval(isNull, rec) {
		t.Error("expected true for IS NULL on missing field")
	}

	isNotNull := IsNull{Field: "missing", Negated: true}
	if Eval(isNotNull, rec) {
		t.Error("expected false for IS NOT NULL on missing field")
	}
}

func TestEvalNumericComparisonIntegerFloat(t *testing.T) {
	rec := metadata.Record{"price": metadata.Integer(10)}
	if !Eval(Cmp{Field: "price", Op: OpGt, Value: Literal{Kind: LitFloat, F64: 9.5}}, rec) {
		t.Error("expected Integer(10) > Float(9.5)")
	}
	if !Eval(Cmp{Field: "price", Op: OpEq, Value: Literal{Kind: LitFloat, F64: 10.0}}, rec) {
		t.Error("expected Integer(10) == Float(10.0)")
	}
}

func TestEvalNaNNeverEqual(t *testing.T) {
	nan := metadata.Record{"x": metadata.Float(nanValue())}
	if Eval(Cmp{Field: "x", Op: OpEq, Value: Literal{Kind: LitFloat, F64: nanValue()}}, nan) {
		t.Error("NaN should never equal NaN")
	}
	if Eval(Cmp{Field: "x", Op: OpGt, Value: Literal{Kind: LitFloat, F64: 0}}, nan) {
		t.Error("NaN should never satisfy an ordering comparison")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestEvalLikeWildcards(t *testing.T) {
	rec := metadata.Record{"name": metadata.String("hello world")}
	if !Eval(Cmp{Field: "name", Op: OpLike, Value: Literal{Kind: LitString, Str: "hello%"}}, rec) {
		t.Error("expected hello% to match 'hello world'")
	}
	if !Eval(Cmp{Field: "name", Op: OpLike, Value: Literal{Kind: LitString, Str: "h_llo world"}}, rec) {
		t.Error("expected h_llo world to match 'hello world'")
	}
	if Eval(Cmp{Field: "name", Op: OpLike, Value: Literal{Kind: LitString, Str: "bye%"}}, rec) {
		t.Error("expected bye% not to match 'hello world'")
	}
}

func TestEvalContains(t *testing.T) {
	rec := metadata.Record{"name": metadata.String("hello world")}
	if !Eval(Cmp{Field: "name", Op: OpContains, Value: Literal{Kind: LitString, Str: "lo wo"}}, rec) {
		t.Error("expected substring match")
	}
}

func TestEvalAndOrNot(t *testing.T) {
	rec := metadata.Record{"a": metadata.Integer(1), "b": metadata.Integer(2)}
	expr, err := Parse(`a = 1 AND b = 2`)
	if err != nil {
		t.Fatal(err)
	}
	if !Eval(expr, rec) {
		t.Error("expected true")
	}

	expr, err = Parse(`NOT (a = 1 AND b = 3)`)
	if err != nil {
		t.Fatal(err)
	}
	if !Eval(expr, rec) {
		t.Error("expected true for negated false conjunction")
	}
}

// TestScenarioS2FilterIntersect reproduces the filter-intersect scenario:
// three vectors with category in {"a","b","a"}; filtering on category="a"
// admits exactly IDs 1 and 3.
func TestScenarioS2FilterIntersect(t *testing.T) {
	records := map[uint64]metadata.Record{
		1: {"category": metadata.String("a")},
		2: {"category": metadata.String("b")},
		3: {"category": metadata.String("a")},
	}
	expr, err := Parse(`category = "a"`)
	if err != nil {
		t.Fatal(err)
	}

	var admitted []uint64
	for id, rec := range records {
		if Eval(expr, rec) {
			admitted = append(admitted, id)
		}
	}
	if len(admitted) != 2 {
		t.Fatalf("expected 2 admitted ids, got %d: %v", len(admitted), admitted)
	}
	for _, id := range admitted {
		if id != 1 && id != 3 {
			t.Errorf("unexpected admitted id %d", id)
		}
	}
}

func TestSelectStrategyTautologyBypasses(t *testing.T) {
	expr := And{} // empty conjunction is vacuously true
	plan := SelectStrategy(expr, nil, nil)
	if plan.Strategy != StrategyBypass {
		t.Errorf("expected StrategyBypass, got %v", plan.Strategy)
	}
}

func TestSelectStrategyContradictionIsEmpty(t *testing.T) {
	expr := Or{} // empty disjunction is vacuously false
	plan := SelectStrategy(expr, nil, nil)
	if plan.Strategy != StrategyEmpty {
		t.Errorf("expected StrategyEmpty, got %v", plan.Strategy)
	}
}

func TestSelectStrategyHighSelectivityPicksPreFilter(t *testing.T) {
	records := map[uint64]metadata.Record{}
	ids := make([]uint64, 0, 100)
	for i := uint64(1); i <= 100; i++ {
		cat := "b"
		if i == 1 {
			cat = "a"
		}
		records[i] = metadata.Record{"category": metadata.String(cat)}
		ids = append(ids, i)
	}
	expr, err := Parse(`category = "a"`)
	if err != nil {
		t.Fatal(err)
	}
	plan := SelectStrategy(expr, records, ids)
	if plan.Strategy != StrategyPreFilter {
		t.Errorf("expected StrategyPreFilter for selectivity 0.01, got %v (s=%v)", plan.Strategy, plan.Selectivity)
	}
}

func TestSelectStrategyLowSelectivityPicksPostFilter(t *testing.T) {
	records := map[uint64]metadata.Record{}
	ids := make([]uint64, 0, 100)
	for i := uint64(1); i <= 100; i++ {
		records[i] = metadata.Record{"active": metadata.Boolean(true)}
		ids = append(ids, i)
	}
	expr, err := Parse(`active = true`)
	if err != nil {
		t.Fatal(err)
	}
	plan := SelectStrategy(expr, records, ids)
	if plan.Strategy != StrategyPostFilter {
		t.Errorf("expected StrategyPostFilter for selectivity 1.0, got %v", plan.Strategy)
	}
}

func TestOversampleFactorCappedAndBounded(t *testing.T) {
	if f := oversampleFactor(1.0); f != 1 {
		t.Errorf("expected oversample 1 for s=1.0, got %d", f)
	}
	if f := oversampleFactor(0.001); f != MaxOversample {
		t.Errorf("expected oversample capped at %d, got %d", MaxOversample, f)
	}
	if f := oversampleFactor(0); f != MaxOversample {
		t.Errorf("expected oversample capped at %d for s=0, got %d", MaxOversample, f)
	}
}

func TestEffectiveEfRespectsCap(t *testing.T) {
	if ef := EffectiveEf(200, MaxOversample); ef != EfCap {
		t.Errorf("expected EfCap %d, got %d", EfCap, ef)
	}
	if ef := EffectiveEf(50, 1); ef != 50 {
		t.Errorf("expected unchanged ef, got %d", ef)
	}
}

func TestParseErrorMessageIncludesOffset(t *testing.T) {
	_, err := Parse(`field = `)
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	msg := pe.Error()
	if !strings.Contains(msg, fmt.Sprintf("%d", pe.Offset)) {
		t.Errorf("expected error message to contain offset, got %q", msg)
	}
}

package filter

import (
	"strings"

	"github.com/matte1782/edgevec-sub002/pkg/metadata"
)

// Eval evaluates expr against record: a comparison against a missing
// field is false for every operator except
// "IS NULL", which is true for a missing field; numeric comparisons never
// treat NaN as equal to anything (including itself); string operators are
// case-sensitive UTF-8 byte comparisons.
func Eval(expr Expr, record metadata.Record) bool {
	switch e := expr.(type) {
	case And:
		for _, op := range e.Operands {
			if !Eval(op, record) {
				return false
			}
		}
		return true

	case Or:
		for _, op := range e.Operands {
			if Eval(op, record) {
				return true
			}
		}
		return false

	case Not:
		return !Eval(e.Operand, record)

	case IsNull:
		v, ok := record[e.Field]
		isNull := !ok || v.IsNull()
		if e.Negated {
			return !isNull
		}
		return isNull

	case In:
		v, ok := record[e.Field]
		if !ok {
			return false
		}
		for _, lit := range e.Values {
			if compareEq(v, lit) {
				return true
			}
		}
		return false

	case Cmp:
		v, ok := record[e.Field]
		if !ok {
			return false
		}
		return evalCmp(v, e.Op, e.Value)

	default:
		return false
	}
}

func evalCmp(v metadata.Value, op Op, lit Literal) bool {
	switch op {
	case OpEq:
		return compareEq(v, lit)
	case OpNe:
		return !compareEq(v, lit)
	case OpGt, OpLt, OpGe, OpLe:
		return compareOrder(v, op, lit)
	case OpLike:
		s, ok := v.AsString()
		if !ok || lit.Kind != LitString {
			return false
		}
		return likeMatch(s, lit.Str)
	case OpContains:
		s, ok := v.AsString()
		if !ok || lit.Kind != LitString {
			return false
		}
		return strings.Contains(s, lit.Str)
	default:
		return false
	}
}

// compareEq reports whether v equals lit. Float NaN is never equal to
// anything, matching IEEE 754 semantics.
func compareEq(v metadata.Value, lit Literal) bool {
	switch lit.Kind {
	case LitString:
		s, ok := v.AsString()
		return ok && s == lit.Str
	case LitBool:
		b, ok := v.AsBoolean()
		return ok && b == lit.Bool
	case LitInt:
		n, ok := v.AsNumeric()
		if !ok {
			return false
		}
		return n == float64(lit.I64)
	case LitFloat:
		n, ok := v.AsNumeric()
		if !ok || isNaN(lit.F64) || isNaN(n) {
			return false
		}
		return n == lit.F64
	default:
		return false
	}
}

// compareOrder evaluates a >, <, >=, or <= comparison. Only numeric
// (Integer/Float) values support ordering comparisons; anything else is
// false, and NaN compares false against every ordering operator.
func compareOrder(v metadata.Value, op Op, lit Literal) bool {
	n, ok := v.AsNumeric()
	if !ok {
		return false
	}
	var target float64
	switch lit.Kind {
	case LitInt:
		target = float64(lit.I64)
	case LitFloat:
		target = lit.F64
		if isNaN(target) {
			return false
		}
	default:
		return false
	}
	if isNaN(n) {
		return false
	}
	switch op {
	case OpGt:
		return n > target
	case OpLt:
		return n < target
	case OpGe:
		return n >= target
	case OpLe:
		return n <= target
	default:
		return false
	}
}

func isNaN(f float64) bool {
	return f != f
}

// likeMatch implements SQL-style LIKE with '%' matching any run of
// characters and '_' matching exactly one character (UTF-8 code point).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(s[1:], p[1:])
	}
	return false
}

package filter

import (
	"fmt"
	"strings"
)

// Matches evaluates the filter directly against a metadata record. It
// implements the same operator semantics as CompileSQL: a record missing the
// field fails every operator except $exists:false, and ordered comparisons
// against values of an incompatible type return false rather than erroring.
// A nil or empty filter matches everything, including nil metadata.
func Matches(f Filter, metadata map[string]any) (bool, error) {
	conds, err := f.Conditions()
	if err != nil {
		return false, err
	}
	if len(conds) == 0 {
		return true, nil
	}
	if metadata == nil {
		return false, nil
	}

	for _, cond := range conds {
		actual, present := metadata[cond.Field]
		if !matchCondition(cond, actual, present) {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(cond Condition, actual any, present bool) bool {
	switch cond.Op {
	case OpExists:
		return cond.Value.(bool) == (present && actual != nil)
	case OpEq:
		return present && looseEqual(actual, cond.Value)
	case OpNe:
		return present && !looseEqual(actual, cond.Value)
	case OpIn:
		if !present {
			return false
		}
		for _, v := range cond.Value.([]any) {
			if looseEqual(actual, v) {
				return true
			}
		}
		return false
	case OpPrefix:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return strings.HasPrefix(s, fmt.Sprintf("%v", cond.Value))
	case OpGt, OpGte, OpLt, OpLte:
		return present && orderedCompare(cond.Op, actual, cond.Value)
	default:
		return false
	}
}

// looseEqual compares scalars with numeric widening, so int 5 equals
// float64(5) the way it would after a JSON round-trip.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

// orderedCompare evaluates $gt/$gte/$lt/$lte. Numbers compare numerically,
// strings lexicographically; any other pairing is false.
func orderedCompare(op string, actual, expected any) bool {
	if af, aok := asFloat(actual); aok {
		bf, bok := asFloat(expected)
		if !bok {
			return false
		}
		return applyOrder(op, compareFloat(af, bf))
	}

	as, aok := actual.(string)
	bs, bok := expected.(string)
	if !aok || !bok {
		return false
	}
	return applyOrder(op, strings.Compare(as, bs))
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

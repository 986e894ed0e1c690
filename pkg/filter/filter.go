// Package filter implements the backend-agnostic metadata filter DSL.
//
// A Filter is an ordered map from field name to either a literal scalar
// (implicit equality) or an operator object carrying exactly one of the
// supported operators. Multiple fields combine with AND semantics. The same
// filter compiles to a SQL fragment (see CompileSQL) and evaluates directly
// against an in-memory metadata record (see Matches); the two paths must
// agree on every input.
package filter

import (
	"fmt"
	"sort"
)

// Operator names accepted inside an operator object.
const (
	OpEq     = "$eq"
	OpNe     = "$ne"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpIn     = "$in"
	OpPrefix = "$prefix"
	OpExists = "$exists"
)

// Filter maps field names to conditions. A value that is not an operator
// object is treated as implicit $eq. A filter with zero keys matches
// everything.
type Filter map[string]any

// Condition is one normalized field condition.
type Condition struct {
	Field string
	Op    string
	Value any
}

var knownOps = map[string]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpIn: {}, OpPrefix: {}, OpExists: {},
}

// Conditions normalizes the filter into a deterministic condition list,
// sorted by field name so that compiled fragments and parameter order are
// stable across calls.
func (f Filter) Conditions() ([]Condition, error) {
	if len(f) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]Condition, 0, len(fields))
	for _, field := range fields {
		cond, err := normalize(field, f[field])
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// normalize turns a raw field value into a Condition. Operator objects must
// carry exactly one operator key.
func normalize(field string, value any) (Condition, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		// Literal scalar: implicit equality.
		return Condition{Field: field, Op: OpEq, Value: value}, nil
	}

	if len(obj) != 1 {
		return Condition{}, fmt.Errorf("filter field %q: operator object must have exactly one key, got %d", field, len(obj))
	}

	for op, v := range obj {
		if _, known := knownOps[op]; !known {
			return Condition{}, fmt.Errorf("filter field %q: unknown operator %q", field, op)
		}
		if op == OpIn {
			if _, isSlice := v.([]any); !isSlice {
				return Condition{}, fmt.Errorf("filter field %q: $in requires an array value", field)
			}
		}
		if op == OpExists {
			if _, isBool := v.(bool); !isBool {
				return Condition{}, fmt.Errorf("filter field %q: $exists requires a boolean value", field)
			}
		}
		return Condition{Field: field, Op: op, Value: v}, nil
	}

	// Unreachable: len(obj) == 1 guarantees one iteration.
	return Condition{}, fmt.Errorf("filter field %q: empty operator object", field)
}

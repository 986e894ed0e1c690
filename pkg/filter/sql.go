package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the JSON field-access syntax used when compiling a filter
// to SQL. Both dialects assume metadata is stored in a column named
// "metadata" holding a JSON object.
type Dialect string

const (
	// DialectSQLite renders fields as json_extract(metadata, '$.field').
	DialectSQLite Dialect = "sqlite"

	// DialectPostgres renders fields as metadata->>'field'.
	DialectPostgres Dialect = "postgres"
)

// CompileSQL compiles a filter into a SQL fragment with positional `?`
// placeholders and the matching parameter list. An empty filter compiles to
// an empty fragment and zero params; callers must omit the WHERE clause
// entirely in that case rather than emitting a bare WHERE.
func CompileSQL(f Filter, dialect Dialect) (string, []any, error) {
	conds, err := f.Conditions()
	if err != nil {
		return "", nil, err
	}
	if len(conds) == 0 {
		return "", nil, nil
	}

	var frags []string
	var params []any

	for _, cond := range conds {
		field, err := fieldExpr(cond.Field, dialect)
		if err != nil {
			return "", nil, err
		}

		switch cond.Op {
		case OpEq:
			frags = append(frags, field+" = ?")
			params = append(params, cond.Value)
		case OpNe:
			frags = append(frags, field+" != ?")
			params = append(params, cond.Value)
		case OpGt:
			frags = append(frags, field+" > ?")
			params = append(params, cond.Value)
		case OpGte:
			frags = append(frags, field+" >= ?")
			params = append(params, cond.Value)
		case OpLt:
			frags = append(frags, field+" < ?")
			params = append(params, cond.Value)
		case OpLte:
			frags = append(frags, field+" <= ?")
			params = append(params, cond.Value)
		case OpIn:
			values := cond.Value.([]any)
			if len(values) == 0 {
				// IN over an empty set matches nothing.
				frags = append(frags, "1 = 0")
				continue
			}
			marks := strings.Repeat("?, ", len(values))
			frags = append(frags, field+" IN ("+marks[:len(marks)-2]+")")
			params = append(params, values...)
		case OpPrefix:
			frags = append(frags, field+" LIKE ? ESCAPE '\\'")
			params = append(params, escapeLike(fmt.Sprintf("%v", cond.Value))+"%")
		case OpExists:
			if cond.Value.(bool) {
				frags = append(frags, field+" IS NOT NULL")
			} else {
				// Rows with no metadata at all fail every condition,
				// matching the in-memory evaluation.
				frags = append(frags, "(metadata IS NOT NULL AND "+field+" IS NULL)")
			}
		default:
			return "", nil, fmt.Errorf("filter field %q: unknown operator %q", cond.Field, cond.Op)
		}
	}

	return strings.Join(frags, " AND "), params, nil
}

// escapeLike escapes LIKE metacharacters so a prefix value is matched
// literally, the same way strings.HasPrefix treats it.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// fieldExpr renders the JSON field access for a dialect. Field names are
// embedded in the fragment, so quotes are rejected rather than escaped.
func fieldExpr(field string, dialect Dialect) (string, error) {
	if strings.ContainsAny(field, "'\"`") {
		return "", fmt.Errorf("filter field %q: quote characters not allowed", field)
	}

	switch dialect {
	case DialectSQLite:
		return "json_extract(metadata, '$." + field + "')", nil
	case DialectPostgres:
		return "metadata->>'" + field + "'", nil
	default:
		return "", fmt.Errorf("unknown SQL dialect %q", dialect)
	}
}

// RenumberPlaceholders rewrites positional `?` placeholders into numbered
// `$N` placeholders starting at start, preserving left-to-right order. This
// is needed when a compiled fragment is appended to a query that already
// carries its own parameters.
func RenumberPlaceholders(fragment string, start int) string {
	if fragment == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(fragment) + 8)

	n := start
	inString := false
	for _, r := range fragment {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

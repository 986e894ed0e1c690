package retrieval

import (
	"strings"
	"unicode"
)

// TokenizeCodeQuery expands code identifiers in a query for better recall:
// "getUserName" becomes "get User Name getUserName", keeping both the
// decomposed parts and the literal form searchable. Tokens that do not look
// like identifiers pass through, and a query with no identifier-like tokens
// is returned unchanged.
func TokenizeCodeQuery(query string) string {
	tokens := strings.Fields(query)
	expanded := make([]string, 0, len(tokens))
	changed := false

	for _, tok := range tokens {
		parts := splitIdentifier(tok)
		if len(parts) > 1 {
			expanded = append(expanded, parts...)
			expanded = append(expanded, tok)
			changed = true
			continue
		}
		expanded = append(expanded, tok)
	}

	if !changed {
		return query
	}
	return strings.Join(expanded, " ")
}

// splitIdentifier decomposes an identifier-like token: dots first, then
// underscores (dropping empty segments), then letter-case transitions.
func splitIdentifier(tok string) []string {
	if !identifierLike(tok) {
		return []string{tok}
	}

	var parts []string
	for _, dotted := range strings.Split(tok, ".") {
		for _, seg := range strings.Split(dotted, "_") {
			if seg == "" {
				continue
			}
			parts = append(parts, splitCase(seg)...)
		}
	}
	return parts
}

// identifierLike reports whether a token contains an identifier marker:
// a lower-to-upper transition, an all-caps-then-lowercase transition, an
// underscore, or a dot.
func identifierLike(tok string) bool {
	if strings.ContainsAny(tok, "_.") {
		return true
	}
	runes := []rune(tok)
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			return true
		}
		if i >= 2 && unicode.IsUpper(runes[i-2]) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i]) {
			return true
		}
	}
	return false
}

// splitCase splits camelCase, PascalCase, and acronym-prefixed names on
// letter-case boundaries: "getUserName" -> [get User Name], "HTTPServer" ->
// [HTTP Server].
func splitCase(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		boundary := unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i])
		if !boundary && i+1 < len(runes) {
			// End of an acronym run: the last upper belongs to the next word.
			boundary = unicode.IsUpper(runes[i-1]) && unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i+1])
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

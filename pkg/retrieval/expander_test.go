package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCodeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "camelCase identifier",
			query: "getUserName",
			want:  "get User Name getUserName",
		},
		{
			name:  "natural language unchanged",
			query: "how to get user",
			want:  "how to get user",
		},
		{
			name:  "snake_case identifier",
			query: "user_name",
			want:  "user name user_name",
		},
		{
			name:  "dotted path",
			query: "os.path.join",
			want:  "os path join os.path.join",
		},
		{
			name:  "acronym prefix",
			query: "HTTPServer",
			want:  "HTTP Server HTTPServer",
		},
		{
			name:  "identifier embedded in natural query",
			query: "fix parseJSON bug",
			want:  "fix parse JSON parseJSON bug",
		},
		{
			name:  "screaming snake",
			query: "MAX_RETRY_COUNT",
			want:  "MAX RETRY COUNT MAX_RETRY_COUNT",
		},
		{
			name:  "empty query",
			query: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeCodeQuery(tt.query))
		})
	}
}

func TestTokenizeCodeQuery_IdempotentOnNaturalOutput(t *testing.T) {
	once := TokenizeCodeQuery("find the user name lookup code")
	twice := TokenizeCodeQuery(once)
	assert.Equal(t, once, twice)
}

func TestTokenizeCodeQuery_PreservesExactStringWhenUnchanged(t *testing.T) {
	query := "plain  spacing   preserved"
	assert.Equal(t, query, TokenizeCodeQuery(query), "untouched queries come back byte for byte")
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", DialectMySQL, false},
		{"mariadb", DialectMySQL, false},
		{"sqlite3", DialectSQLite, false},
		{"oracle", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_QuoteIdent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"orders"`, DialectPostgres.QuoteIdent("orders"))
	assert.Equal(t, "`orders`", string(DialectMySQL.QuoteIdent("orders")))
	assert.Equal(t, `"orders"`, DialectSQLite.QuoteIdent("orders"))
	assert.Equal(t, `"weird""name"`, DialectPostgres.QuoteIdent(`weird"name`))
	assert.Equal(t, `"orders"."status"`, DialectPostgres.QuoteQualified("orders.status"))
}

func TestDialect_Paging(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "LIMIT 10", DialectPostgres.Paging(10, 0))
	assert.Equal(t, "LIMIT 10 OFFSET 20", DialectPostgres.Paging(10, 20))
	assert.Equal(t, "LIMIT 20, 10", DialectMySQL.Paging(10, 20))
	assert.Equal(t, "LIMIT 10 OFFSET 20", DialectSQLite.Paging(10, 20))
	assert.Equal(t, "", DialectPostgres.Paging(0, 20))
}

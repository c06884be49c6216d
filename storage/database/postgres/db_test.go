package pgrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_containsPattern(t *testing.T) {
	tests := []struct {
		q    string
		want string
	}{
		{q: "go", want: "%go%"},
		{q: "100%", want: `%100\%%`},
		{q: "snake_case", want: `%snake\_case%`},
		{q: `C:\dir`, want: `%C:\\dir%`},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPattern(tt.q))
		})
	}
}

func Test_ilikeAny(t *testing.T) {
	sql, args, err := ilikeAny("50%_off", "a.title", "a.summary").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(a.title ILIKE ? OR a.summary ILIKE ?)", sql)
	assert.Equal(t, []interface{}{`%50\%\_off%`, `%50\%\_off%`}, args)
}

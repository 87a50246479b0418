package changelog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliases(t *testing.T) {
	tests := []struct {
		name       string
		spec       string
		wantGlobal string
		wantFields map[string]string
		wantErr    bool
	}{
		{
			name:       "empty",
			spec:       "",
			wantFields: map[string]string{},
		},
		{
			name:       "blank",
			spec:       "   ",
			wantFields: map[string]string{},
		},
		{
			name:       "global alias",
			spec:       "foo",
			wantGlobal: "foo",
			wantFields: map[string]string{},
		},
		{
			name:       "global alias is trimmed",
			spec:       "  foo ",
			wantGlobal: "foo",
			wantFields: map[string]string{},
		},
		{
			name:       "per field",
			spec:       "beta:bar,gamma:baz",
			wantFields: map[string]string{"beta": "bar", "gamma": "baz"},
		},
		{
			name:       "per field with spaces",
			spec:       " beta : bar ,  gamma:baz ",
			wantFields: map[string]string{"beta": "bar", "gamma": "baz"},
		},
		{
			name:       "empty chunks are ignored",
			spec:       "beta:bar,,",
			wantFields: map[string]string{"beta": "bar"},
		},
		{
			name:    "two separators",
			spec:    "beta:bar:baz",
			wantErr: true,
		},
		{
			name:    "chunk without separator",
			spec:    "beta:bar,gamma",
			wantErr: true,
		},
		{
			name:    "missing alias",
			spec:    "beta:",
			wantErr: true,
		},
		{
			name:    "missing field",
			spec:    ":bar",
			wantErr: true,
		},
		{
			name:    "field declared twice",
			spec:    "beta:bar,beta:baz",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAliases(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration), "expected configuration error, got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantGlobal, got.Global)
			assert.Equal(t, tt.wantFields, got.PerField)
		})
	}
}

func TestLogTableName(t *testing.T) {
	global, err := ParseAliases("foo")
	require.NoError(t, err)
	assert.Equal(t, "foo_title_log", global.LogTableName("title", "t"))

	perField, err := ParseAliases("beta:bar,gamma:baz")
	require.NoError(t, err)
	assert.Equal(t, "bar_beta_log", perField.LogTableName("beta", "t"))
	assert.Equal(t, "baz_gamma_log", perField.LogTableName("gamma", "t"))
	assert.Equal(t, "t_alpha_log", perField.LogTableName("alpha", "t"))

	none, err := ParseAliases("")
	require.NoError(t, err)
	assert.Equal(t, "article_title_log", none.LogTableName("title", "article"))
}

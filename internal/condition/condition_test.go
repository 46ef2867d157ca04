package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	input := map[string]any{
		"status": "active",
		"count":  3,
		"email":  "Ada@Example.com",
		"tags":   []any{},
		"user":   map[string]any{"id": 7.0},
	}

	tests := []struct {
		name string
		decl map[string]any
		want bool
	}{
		{"empty condition", nil, true},
		{"match", map[string]any{"match": map[string]any{"status": "active"}}, true},
		{"match numeric across types", map[string]any{"match": map[string]any{"user.id": 7}}, true},
		{"match mismatch", map[string]any{"match": map[string]any{"status": "inactive"}}, false},
		{"missing path matches null", map[string]any{"match": map[string]any{"k": nil}}, true},
		{"not_match", map[string]any{"not_match": map[string]any{"status": "inactive"}}, true},
		{"not_match null on missing", map[string]any{"not_match": map[string]any{"k": nil}}, false},
		{"regexp with flags", map[string]any{"match_regexp": map[string]any{"email": `/@example\.com$/i`}}, true},
		{"regexp plain", map[string]any{"match_regexp": map[string]any{"count": `^\d+$`}}, true},
		{"not_match_regexp", map[string]any{"not_match_regexp": map[string]any{"status": "^in"}}, true},
		{"empty", map[string]any{"empty": []any{"tags", "missing"}}, true},
		{"empty fails", map[string]any{"empty": []any{"status"}}, false},
		{"not_empty", map[string]any{"not_empty": []any{"status", "count"}}, true},
		{"not_empty fails", map[string]any{"not_empty": []any{"tags"}}, false},
		{"families are ANDed", map[string]any{
			"match":     map[string]any{"status": "active"},
			"not_empty": []any{"tags"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw any
			if tt.decl != nil {
				raw = tt.decl
			}
			c, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Evaluate(input))
		})
	}
}

func TestMatchMissingPathIsNull(t *testing.T) {
	c := MustParse(map[string]any{"match": map[string]any{"k": nil}})
	assert.True(t, c.Evaluate(map[string]any{"other": 1}))
	assert.False(t, c.Evaluate(map[string]any{"k": "set"}))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(map[string]any{"matches": map[string]any{}})
	require.Error(t, err)

	_, err = Parse(map[string]any{"match_regexp": map[string]any{"a": "("}})
	require.Error(t, err)

	_, err = Parse("status")
	require.Error(t, err)
}

func TestIsEmptyValue(t *testing.T) {
	for _, v := range []any{nil, "", "0", 0, 0.0, false, []any{}, map[string]any{}} {
		assert.True(t, IsEmptyValue(v), "%#v", v)
	}
	for _, v := range []any{"a", 1, true, []any{nil}, map[string]any{"a": nil}} {
		assert.False(t, IsEmptyValue(v), "%#v", v)
	}
}

func TestIsEmptyCondition(t *testing.T) {
	assert.True(t, MustParse(nil).IsEmpty())
	assert.False(t, MustParse(map[string]any{"empty": "x"}).IsEmpty())
}

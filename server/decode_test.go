package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"json object", `{"a": 1}`, map[string]any{"a": float64(1)}},
		{"single quotes", `{'a': 1}`, map[string]any{"a": float64(1)}},
		{"python literals", `{'ok': True, 'value': None}`, `{'ok': True, 'value': None}`},
		{"python list", `['x', 'y']`, []any{"x", "y"}},
		{"number", "42", float64(42)},
		{"trailing newline", "[1, 2]\n", []any{float64(1), float64(2)}},
		{"plain text", "hello world", "hello world"},
		{"apostrophe", "it's fine", "it's fine"},
		{"empty", "", ""},
		{"bracketed word", "[TODO]", "[TODO]"},
		{"bracketed list", "[a, b]", "[a, b]"},
		{"log prefix", "[INFO] started", "[INFO] started"},
		{"braced text", "{hello world}", "{hello world}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.raw))
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		path     string
		function string
		format   string
		ok       bool
	}{
		{"/", "index", "json", true},
		{"/greet", "greet", "json", true},
		{"/greet/", "greet", "json", true},
		{"/greet/html", "greet", "html", true},
		{"/greet/html/", "greet", "html", true},
		{"/a/b/c", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			function, format, ok := route(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.function, function)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestOrderedPairs(t *testing.T) {
	values, format := orderedPairs("b=2&a=1&&flag&output_format=html&c=%2F")
	assert.Equal(t, []string{"2", "1", "", "/"}, values)
	assert.Equal(t, "html", format)
}

func TestJSONArgs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		format  string
		wantErr bool
	}{
		{"object order", `{"b": 2, "a": "x"}`, []string{"2", "x"}, "", false},
		{"array", `[1, [2, 3], "s"]`, []string{"1", "[2, 3]", "s"}, "", false},
		{"format key", `{"a": 1, "output_format": "html"}`, []string{"1"}, "html", false},
		{"scalar", "42", []string{"42"}, "", false},
		{"surrounding whitespace", "\n  {\"a\": 1}  \n", []string{"1"}, "", false},
		{"truncated", `{"a": `, nil, "", true},
		{"trailing garbage", `{"a":1} junk`, nil, "", true},
		{"second value", `{"a":1} {"b":2}`, nil, "", true},
		{"trailing after array", `[1] 2`, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, format, err := jsonArgs([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, args)
			assert.Equal(t, tt.format, format)
		})
	}
}

package server

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Decode turns a function's raw output into structured data when it looks
// like JSON. Single quotes are read as double quotes. Anything else,
// including bracketed text that only resembles JSON, is returned unchanged.
func Decode(raw string) any {
	text := strings.TrimSpace(raw)
	if text == "" {
		return raw
	}

	var v any
	if jsoniter.UnmarshalFromString(text, &v) == nil {
		return v
	}
	if strings.Contains(text, "'") {
		if jsoniter.UnmarshalFromString(strings.ReplaceAll(text, "'", `"`), &v) == nil {
			return v
		}
	}
	return raw
}

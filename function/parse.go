package function

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

// ErrUnparsable is returned when loader output matches none of the accepted shapes.
var ErrUnparsable = errors.New("unparsable loader output")

var (
	identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	nameList   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\s*,\s*[A-Za-z_$][A-Za-z0-9_$]*)*$`)
)

// Parse converts loader output into a Table. Accepted shapes, in order:
//
//	{"name": ["a", "b"], ...}   JSON object of name to params
//	["name", ...]               JSON array of names
//	{'name': ['a']}             Python/JS repr, repaired to JSON
//	name,other                  comma separated names
//
// Empty output yields an empty table.
func Parse(output string) (Table, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return Table{}, nil
	}

	var decoded any
	err := jsoniter.UnmarshalFromString(text, &decoded)
	if err != nil && (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")) {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr == nil {
			err = jsoniter.UnmarshalFromString(repaired, &decoded)
		}
	}
	if err != nil {
		if nameList.MatchString(text) {
			return fromNames(strings.Split(text, ","))
		}
		return nil, fmt.Errorf("%w: %s", ErrUnparsable, truncate(text, 120))
	}

	switch v := decoded.(type) {
	case map[string]any:
		return fromObject(v)
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: array item %v is not a name", ErrUnparsable, item)
			}
			names = append(names, name)
		}
		return fromNames(names)
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrUnparsable, decoded)
	}
}

func fromObject(obj map[string]any) (Table, error) {
	table := make(Table, len(obj))
	for name, raw := range obj {
		if !identifier.MatchString(name) {
			continue
		}
		var params []string
		if list, ok := raw.([]any); ok {
			params = make([]string, 0, len(list))
			for _, p := range list {
				s, ok := p.(string)
				if !ok {
					return nil, fmt.Errorf("%w: parameter %v of %s is not a name", ErrUnparsable, p, name)
				}
				params = append(params, s)
			}
		}
		table[name] = Descriptor{Name: name, Params: params}
	}
	return table, nil
}

func fromNames(names []string) (Table, error) {
	table := make(Table, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !identifier.MatchString(name) {
			continue
		}
		table[name] = Descriptor{Name: name}
	}
	return table, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

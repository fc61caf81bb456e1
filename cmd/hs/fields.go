package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alfredjeanlab/hotstore/internal/codec"
)

// splitField splits "key=value" into (key, value, true).
// Returns ("", "", false) if there is no '=' or key is empty.
func splitField(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// fieldValue decodes v when it looks like a JSON literal (object, array,
// quoted string, boolean, null or number) and returns it as a plain string
// otherwise. Numbers stay json.Number so large ids keep every digit.
func fieldValue(v string) any {
	if v == "" {
		return v
	}
	literal := false
	switch {
	case v[0] == '{' || v[0] == '[' || v[0] == '"':
		literal = true
	case v == "true" || v == "false" || v == "null":
		literal = true
	case v[0] == '-' || unicode.IsDigit(rune(v[0])):
		literal = true
	}
	if !literal {
		return v
	}
	var out any
	if err := codec.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}

// parseData builds an event payload from a --data JSON object plus any
// number of -d key=value fields. Fields override keys from the object.
// The result is nil when neither is given.
func parseData(raw string, fields []string) (map[string]any, error) {
	var data map[string]any
	if raw != "" {
		if err := codec.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
		if data == nil {
			data = map[string]any{}
		}
	}
	for _, f := range fields {
		k, v, ok := splitField(f)
		if !ok {
			return nil, fmt.Errorf("invalid field %q (want key=value)", f)
		}
		if data == nil {
			data = map[string]any{}
		}
		data[k] = fieldValue(v)
	}
	return data, nil
}

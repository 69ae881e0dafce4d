package jsonx

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// ToDynamicJSON converts any Go value to a dynamic JSON object represented as a map[string]any.
// Pre-encoded JSON ([]byte, json.RawMessage) is decoded directly.
//
// Parameters:
//   - val: The value to convert; it must encode to a JSON object.
//
// Returns:
//   - map[string]any: The decoded object.
//   - error: Any error from encoding val or decoding it as an object.
func ToDynamicJSON(val any) (map[string]any, error) {
	var b []byte
	switch v := val.(type) {
	case json.RawMessage:
		b = v
	case []byte:
		b = v
	default:
		var err error
		if b, err = json.Marshal(val); err != nil {
			return nil, err
		}
	}

	result := make(map[string]any)
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Indent reformats raw JSON with two space indentation. Input that is not
// valid JSON is returned unchanged along with the error.
func Indent(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw, err
	}
	return buf.Bytes(), nil
}

package wire

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var emptyCommand = []byte(`{}`)

// Command is an outbound frame.
type Command struct {
	ID     int64
	Method string
	Params any
}

// Encode renders the command as {"id":..,"method":..,"params":..}.
// Nil params are sent as an empty object; pre-encoded params
// ([]byte, json.RawMessage, gjson.Result) are embedded verbatim.
func (c Command) Encode() ([]byte, error) {
	if c.Method == "" {
		return nil, fmt.Errorf("command %d: method is required", c.ID)
	}

	params, err := encodeParams(c.Params)
	if err != nil {
		return nil, fmt.Errorf("command %d (%s): encode params: %w", c.ID, c.Method, err)
	}

	result := append([]byte(nil), emptyCommand...)
	result, err = sjson.SetBytes(result, "id", c.ID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "method", c.Method)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(result, "params", params)
}

func encodeParams(params any) ([]byte, error) {
	switch p := params.(type) {
	case nil:
		return []byte(`{}`), nil
	case json.RawMessage:
		return validRaw(p)
	case []byte:
		return validRaw(p)
	case gjson.Result:
		return validRaw([]byte(p.Raw))
	default:
		return json.Marshal(p)
	}
}

func validRaw(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return []byte(`{}`), nil
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("invalid json: %s", b)
	}
	return b, nil
}

// Unmarshaler returns the decoder used to turn a raw result into T.
// gjson.Result, string and json.RawMessage receive the raw payload, every
// other type goes through json.Unmarshal.
func Unmarshaler[T any]() func([]byte) (T, error) {
	var t T
	switch any(t).(type) {
	case gjson.Result:
		return func(data []byte) (T, error) {
			return any(gjson.ParseBytes(data)).(T), nil
		}
	case json.RawMessage:
		return func(data []byte) (T, error) {
			return any(json.RawMessage(append([]byte(nil), data...))).(T), nil
		}
	}

	if typ := reflect.TypeFor[T](); typ.Kind() == reflect.String {
		return func(data []byte) (T, error) {
			// a JSON string result is unquoted, anything else is handed over as-is
			s := string(data)
			if r := gjson.ParseBytes(data); r.Type == gjson.String {
				s = r.String()
			}
			return reflect.ValueOf(s).Convert(typ).Interface().(T), nil
		}
	}

	return func(data []byte) (T, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return v, err
		}
		return v, nil
	}
}

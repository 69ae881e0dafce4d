package wire

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Kind tags the shape of an inbound message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSuccess
	KindError
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ErrInvalidMessage is returned by Decode for frames that are not one of
// the three known message shapes.
var ErrInvalidMessage = errors.New("invalid bidi message")

// Message is an inbound frame, classified once by Decode.
//
// Only the fields of the matching Kind are populated:
//   - KindSuccess: ID, Result
//   - KindError: ID (HasID reports whether the frame carried one), Error, Text, Stacktrace
//   - KindEvent: Method, Params
type Message struct {
	Kind Kind

	ID    int64
	HasID bool

	Result json.RawMessage

	Error      string
	Text       string
	Stacktrace string

	Method string
	Params json.RawMessage
}

// Decode classifies a raw frame. The "type" discriminator is used when the
// remote end sends one, otherwise the shape is decided by which fields are
// present.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, fmt.Errorf("%w: not valid json", ErrInvalidMessage)
	}

	fields := gjson.GetManyBytes(data, "type", "id", "result", "error", "message", "stacktrace", "method", "params")
	typ, id, result, errCode, text, stack, method, params := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7]

	kind := KindUnknown
	switch typ.String() {
	case "success":
		kind = KindSuccess
	case "error":
		kind = KindError
	case "event":
		kind = KindEvent
	default:
		switch {
		case errCode.Exists():
			kind = KindError
		case id.Exists() && result.Exists():
			kind = KindSuccess
		case method.Exists() && !id.Exists():
			kind = KindEvent
		}
	}

	msg := Message{Kind: kind}
	switch kind {
	case KindSuccess:
		if id.Type != gjson.Number {
			return Message{}, fmt.Errorf("%w: success without numeric id", ErrInvalidMessage)
		}
		msg.ID, msg.HasID = id.Int(), true
		msg.Result = rawOrEmpty(result)
	case KindError:
		if id.Type == gjson.Number {
			msg.ID, msg.HasID = id.Int(), true
		}
		msg.Error = errCode.String()
		msg.Text = text.String()
		msg.Stacktrace = stack.String()
	case KindEvent:
		if method.String() == "" {
			return Message{}, fmt.Errorf("%w: event without method", ErrInvalidMessage)
		}
		msg.Method = method.String()
		msg.Params = rawOrEmpty(params)
	default:
		return Message{}, fmt.Errorf("%w: unrecognized shape", ErrInvalidMessage)
	}
	return msg, nil
}

func rawOrEmpty(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Raw == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(r.Raw)
}

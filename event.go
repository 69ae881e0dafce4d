package bidi

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/bidi/internal/wire"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var eventJSON = []byte(`{"type":"event"}`)

// Event is a server push message.
type Event struct {
	Method string
	Params json.RawMessage
	// Context is the browsing context the event originates from, empty when
	// the payload carries none.
	Context    string
	ReceivedAt strfmt.DateTime
}

func newEvent(msg wire.Message, receivedAt time.Time) Event {
	return Event{
		Method:     msg.Method,
		Params:     msg.Params,
		Context:    gjson.GetBytes(msg.Params, "context").String(),
		ReceivedAt: strfmt.DateTime(receivedAt),
	}
}

// HasContext reports whether the params named a browsing context.
func (e Event) HasContext() bool {
	return e.Context != ""
}

// Decode unmarshals the event params into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Params, v); err != nil {
		return fmt.Errorf("decode %s params: %w", e.Method, err)
	}
	return nil
}

// MarshalJSON renders the event as an envelope, the shape used when events
// are relayed to other processes.
func (e Event) MarshalJSON() ([]byte, error) {
	result := append([]byte(nil), eventJSON...)

	var err error
	result, err = sjson.SetBytes(result, "method", e.Method)
	if err != nil {
		return nil, err
	}

	params := []byte(e.Params)
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	result, err = sjson.SetRawBytes(result, "params", params)
	if err != nil {
		return nil, err
	}

	if e.Context != "" {
		result, err = sjson.SetBytes(result, "context", e.Context)
		if err != nil {
			return nil, err
		}
	}

	return sjson.SetBytes(result, "received_at", e.ReceivedAt.String())
}

func (e *Event) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "event" {
		return fmt.Errorf("missing or invalid type, expected 'event'")
	}

	method := gjson.GetBytes(data, "method")
	if !method.Exists() || method.String() == "" {
		return fmt.Errorf("missing required field 'method'")
	}
	e.Method = method.String()

	if params := gjson.GetBytes(data, "params"); params.Exists() {
		e.Params = json.RawMessage(params.Raw)
	} else {
		e.Params = json.RawMessage(`{}`)
	}
	e.Context = gjson.GetBytes(data, "context").String()

	if ts := gjson.GetBytes(data, "received_at"); ts.Exists() {
		dt, err := strfmt.ParseDateTime(ts.String())
		if err != nil {
			return fmt.Errorf("invalid received_at: %w", err)
		}
		e.ReceivedAt = dt
	}
	return nil
}

// Handler receives events from the broker. Handlers run one at a time on
// the dispatch goroutine in receipt order; a blocking handler delays every
// event after it. Returned errors are logged.
//
// ctx is cancelled when the broker starts closing or loses its connection.
// Events queued before that are still delivered, with the cancelled ctx.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// On builds a Handler that decodes the event params into T first.
func On[T any](fn func(ctx context.Context, params T) error) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		var params T
		if err := event.Decode(&params); err != nil {
			return err
		}
		return fn(ctx, params)
	})
}

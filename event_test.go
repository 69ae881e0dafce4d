package bidi

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/bidi/internal/wire"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("extracts the browsing context", func(t *testing.T) {
		msg, err := wire.Decode([]byte(`{"type":"event","method":"browsingContext.load","params":{"context":"abc","url":"x"}}`))
		require.NoError(t, err)

		ev := newEvent(msg, at)
		assert.Equal(t, "browsingContext.load", ev.Method)
		assert.Equal(t, "abc", ev.Context)
		assert.True(t, ev.HasContext())
		assert.Equal(t, strfmt.DateTime(at), ev.ReceivedAt)
	})

	t.Run("no context", func(t *testing.T) {
		msg, err := wire.Decode([]byte(`{"type":"event","method":"log.entryAdded","params":{"text":"hi"}}`))
		require.NoError(t, err)

		ev := newEvent(msg, at)
		assert.Empty(t, ev.Context)
		assert.False(t, ev.HasContext())
	})
}

func TestEvent_JSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{
		Method:     "browsingContext.load",
		Params:     json.RawMessage(`{"context":"abc","url":"https://example.com"}`),
		Context:    "abc",
		ReceivedAt: strfmt.DateTime(at),
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	envelope := gjson.ParseBytes(data)
	assert.Equal(t, "event", envelope.Get("type").String())
	assert.Equal(t, "browsingContext.load", envelope.Get("method").String())
	assert.Equal(t, "abc", envelope.Get("context").String())
	assert.Equal(t, "https://example.com", envelope.Get("params.url").String())
	assert.True(t, envelope.Get("received_at").Exists())

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ev.Method, decoded.Method)
	assert.Equal(t, ev.Context, decoded.Context)
	assert.JSONEq(t, string(ev.Params), string(decoded.Params))
	assert.True(t, time.Time(ev.ReceivedAt).Equal(time.Time(decoded.ReceivedAt)))

	t.Run("rejects other message types", func(t *testing.T) {
		var e Event
		assert.Error(t, json.Unmarshal([]byte(`{"type":"success","id":1,"result":{}}`), &e))
		assert.Error(t, json.Unmarshal([]byte(`{"type":"event"}`), &e))
	})

	t.Run("defaults empty params", func(t *testing.T) {
		var e Event
		require.NoError(t, json.Unmarshal([]byte(`{"type":"event","method":"log.entryAdded"}`), &e))
		assert.JSONEq(t, `{}`, string(e.Params))
		assert.False(t, e.HasContext())
	})
}

func TestOn(t *testing.T) {
	type load struct {
		Context string `json:"context"`
		URL     string `json:"url"`
	}

	var got load
	h := On(func(_ context.Context, p load) error {
		got = p
		return nil
	})

	err := h.HandleEvent(context.Background(), Event{Method: "browsingContext.load", Params: json.RawMessage(`{"context":"abc","url":"x"}`)})
	require.NoError(t, err)
	assert.Equal(t, load{Context: "abc", URL: "x"}, got)

	err = h.HandleEvent(context.Background(), Event{Method: "browsingContext.load", Params: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/bidi"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func setupNATS(t *testing.T) *nats.Conn {
	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		t.Skipf("no NATS server at %s: %v", nats.DefaultURL, err)
	}
	t.Cleanup(func() {
		nc.Close()
	})
	return nc
}

type recordingHandler struct {
	mu     sync.Mutex
	events []bidi.Event
}

func (r *recordingHandler) HandleEvent(_ context.Context, event bidi.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingHandler) Events() []bidi.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bidi.Event(nil), r.events...)
}

func TestPublisher_Subject(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		p := NATS(nil, "")
		assert.Equal(t, "bidi.events.log.entryAdded", p.Subject("log.entryAdded"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		p := NATS(nil, "tail.session-1.")
		assert.Equal(t, "tail.session-1.browsingContext.load", p.Subject("browsingContext.load"))
		// cached
		assert.Equal(t, "tail.session-1.browsingContext.load", p.Subject("browsingContext.load"))
	})

	t.Run("rejects events without method", func(t *testing.T) {
		p := NATS(nil, "")
		assert.Error(t, p.HandleEvent(context.Background(), bidi.Event{}))
	})
}

func TestListen_RequiresHandler(t *testing.T) {
	_, err := Listen(context.Background(), nil, "bidi.events.>", nil)
	assert.ErrorIs(t, err, bidi.ErrInvalidHandler)
}

func TestRelay(t *testing.T) {
	t.Run("publishes event envelopes", func(t *testing.T) {
		nc := setupNATS(t)
		prefix := "test." + uuid.NewString()
		pub := NATS(nc, prefix)

		msgs := make(chan *nats.Msg, 1)
		sub, err := nc.ChanSubscribe(prefix+".>", msgs)
		require.NoError(t, err)
		defer sub.Unsubscribe()
		require.NoError(t, nc.Flush())

		event := bidi.Event{
			Method:     "browsingContext.load",
			Params:     json.RawMessage(`{"context":"abc","url":"about:blank"}`),
			Context:    "abc",
			ReceivedAt: strfmt.DateTime(time.Now()),
		}
		require.NoError(t, pub.HandleEvent(context.Background(), event))

		select {
		case msg := <-msgs:
			assert.Equal(t, prefix+".browsingContext.load", msg.Subject)
			assert.Equal(t, "event", gjson.GetBytes(msg.Data, "type").String())
			assert.Equal(t, "abc", gjson.GetBytes(msg.Data, "context").String())
			assert.Equal(t, "about:blank", gjson.GetBytes(msg.Data, "params.url").String())
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for relayed event")
		}
	})

	t.Run("listen feeds events back in order", func(t *testing.T) {
		nc := setupNATS(t)
		prefix := "test." + uuid.NewString()
		pub := NATS(nc, prefix)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rec := &recordingHandler{}
		lsub, err := Listen(ctx, nc, prefix+".>", rec)
		require.NoError(t, err)
		defer lsub.Unsubscribe()
		assert.NotEmpty(t, lsub.ID())
		require.NoError(t, nc.Flush())

		for _, method := range []string{"log.entryAdded", "browsingContext.load", "script.message"} {
			require.NoError(t, pub.HandleEvent(ctx, bidi.Event{Method: method, Params: json.RawMessage(`{}`)}))
		}

		require.Eventually(t, func() bool { return len(rec.Events()) == 3 }, 2*time.Second, 10*time.Millisecond)
		got := rec.Events()
		assert.Equal(t, "log.entryAdded", got[0].Method)
		assert.Equal(t, "browsingContext.load", got[1].Method)
		assert.Equal(t, "script.message", got[2].Method)
	})

	t.Run("skips malformed payloads", func(t *testing.T) {
		nc := setupNATS(t)
		subject := "test." + uuid.NewString()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rec := &recordingHandler{}
		lsub, err := Listen(ctx, nc, subject, rec)
		require.NoError(t, err)
		defer lsub.Unsubscribe()
		require.NoError(t, nc.Flush())

		require.NoError(t, nc.Publish(subject, []byte(`{"type":"success","id":1}`)))
		require.NoError(t, nc.Publish(subject, []byte(`{"type":"event","method":"log.entryAdded","params":{}}`)))

		require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "log.entryAdded", rec.Events()[0].Method)
	})
}

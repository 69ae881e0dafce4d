package bidi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/bidi/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// bidiServer answers session commands and emits one log event after every
// session.subscribe.
func bidiServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd := gjson.ParseBytes(data)
			id := cmd.Get("id").Int()

			var replies []string
			switch cmd.Get("method").String() {
			case "session.status":
				replies = append(replies, fmt.Sprintf(`{"type":"success","id":%d,"result":{"ready":true,"message":"ready"}}`, id))
			case "session.subscribe":
				replies = append(replies,
					fmt.Sprintf(`{"type":"success","id":%d,"result":{"subscription":"sub-%d"}}`, id, id),
					`{"type":"event","method":"log.entryAdded","params":{"level":"info","text":"hello"}}`,
				)
			default:
				replies = append(replies, fmt.Sprintf(`{"type":"error","id":%d,"error":"unknown command","message":"%s"}`, id, cmd.Get("method").String()))
			}
			for _, reply := range replies {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
}

func TestBroker_OverWebSocket(t *testing.T) {
	server := bidiServer(t)
	defer server.Close()

	ws, err := transport.NewWebSocket("ws"+strings.TrimPrefix(server.URL, "http"), transport.Logger(discardLogger()))
	require.NoError(t, err)
	b, err := New(ws, WithLogger(discardLogger()), CommandTimeout(5*time.Second))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	status, err := b.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, "ready", status.Message)

	rec := &recorder{}
	sub, err := b.Subscribe(ctx, "log.entryAdded", rec)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ServerID())

	require.Eventually(t, func() bool { return rec.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello", gjson.GetBytes(rec.Events()[0].Params, "text").String())

	err = b.ExecuteCommand(ctx, Command{Method: "browsingContext.create"})
	assert.True(t, IsProtocolError(err, "unknown command"))

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Err(), ErrClosed)
}

package bidi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/bidi/transport"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// responder handles one command on the fake remote end.
type responder func(r *fakeRemote, cmd gjson.Result)

// autoReply answers every command with an empty success.
func autoReply(r *fakeRemote, cmd gjson.Result) {
	r.reply(cmd.Get("id").Int(), `{}`)
}

// hold answers nothing; tests reply by hand.
func hold(*fakeRemote, gjson.Result) {}

type fakeRemote struct {
	t       *testing.T
	mem     *transport.Memory
	respond responder

	mu       sync.Mutex
	commands []gjson.Result

	stop chan struct{}
	done chan struct{}
}

func newFakeRemote(t *testing.T, mem *transport.Memory, respond responder) *fakeRemote {
	if respond == nil {
		respond = autoReply
	}
	return &fakeRemote{
		t:       t,
		mem:     mem,
		respond: respond,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *fakeRemote) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case frame := <-r.mem.Sent():
			cmd := gjson.ParseBytes(frame)
			r.mu.Lock()
			r.commands = append(r.commands, cmd)
			r.mu.Unlock()
			r.respond(r, cmd)
		}
	}
}

func (r *fakeRemote) shutdown() {
	close(r.stop)
	<-r.done
}

func (r *fakeRemote) deliver(frame string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = r.mem.Deliver(ctx, []byte(frame))
}

func (r *fakeRemote) reply(id int64, result string) {
	r.deliver(fmt.Sprintf(`{"type":"success","id":%d,"result":%s}`, id, result))
}

func (r *fakeRemote) fail(id int64, code, message string) {
	frame := fmt.Sprintf(`{"type":"error","id":%d}`, id)
	frame, _ = sjson.Set(frame, "error", code)
	frame, _ = sjson.Set(frame, "message", message)
	r.deliver(frame)
}

func (r *fakeRemote) emit(method, params string) {
	frame, _ := sjson.Set(`{"type":"event"}`, "method", method)
	frame, _ = sjson.SetRaw(frame, "params", params)
	r.deliver(frame)
}

// sent returns the commands received so far, optionally only those for
// method.
func (r *fakeRemote) sent(method string) []gjson.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []gjson.Result
	for _, cmd := range r.commands {
		if method == "" || cmd.Get("method").String() == method {
			out = append(out, cmd)
		}
	}
	return out
}

func (r *fakeRemote) count(method string) int {
	return len(r.sent(method))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBroker returns a connected broker talking to a fake remote end.
func newTestBroker(t *testing.T, respond responder, options ...Option) (*Broker, *fakeRemote, *transport.Memory) {
	t.Helper()

	mem := transport.NewMemory(256)
	b, err := New(mem, append([]Option{WithLogger(discardLogger())}, options...)...)
	require.NoError(t, err)
	require.NoError(t, b.Connect(context.Background()))

	remote := newFakeRemote(t, mem, respond)
	go remote.run()

	t.Cleanup(func() {
		_ = b.Close()
		remote.shutdown()
	})
	return b, remote, mem
}

// recorder collects the events it handles.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

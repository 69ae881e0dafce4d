/*
Package bidi is a client side broker for the WebDriver BiDi protocol.

A single Broker owns one transport connection and multiplexes it:

  - Commands get a unique id, are sent, and the caller waits until the
    response with that id arrives, the command times out, the caller's
    context ends or the connection goes away.
  - Events pushed by the remote end are queued and dispatched, in the order
    they were received, to the handlers subscribed for them.

# Basic Usage

	ws, err := transport.NewWebSocket("ws://127.0.0.1:9222/session")
	if err != nil {
		return err
	}
	b, err := bidi.New(ws, bidi.CommandTimeout(10*time.Second))
	if err != nil {
		return err
	}
	if err := b.Connect(ctx); err != nil {
		return err
	}
	defer b.Close()

	sub, err := b.Subscribe(ctx, "log.entryAdded", bidi.HandlerFunc(func(ctx context.Context, ev bidi.Event) error {
		slog.Info("console", "params", string(ev.Params))
		return nil
	}))
	if err != nil {
		return err
	}
	defer sub.Unsubscribe(ctx)

	tree, err := bidi.Execute[gjson.Result](ctx, b, bidi.Command{Method: "browsingContext.getTree"})

# Subscriptions

Subscriptions may be scoped to browsing contexts with WithContexts. Handlers
registered for the same event and the same set of contexts share a single
remote subscription: session.subscribe is sent for the first one and
session.unsubscribe once the last one is removed.

Handlers run on the dispatch goroutine one at a time. A handler that blocks
holds up every event behind it, so long running work belongs on its own
goroutine. Errors and panics from a handler are logged and do not affect
other handlers.

# Errors

Remote error responses are returned as *ProtocolError. Timeouts wrap
ErrTimeout, a lost connection wraps ErrDisconnected and a closed broker
returns ErrClosed.
*/
package bidi

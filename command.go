package bidi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/bidi/internal/wire"
	"github.com/casualjim/bidi/pkg/slogx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
)

// Command is a BiDi command. Params is encoded as JSON; nil sends an empty
// object and pre-encoded JSON ([]byte, json.RawMessage) is sent verbatim.
type Command struct {
	Method string
	Params any
}

// ExecuteCommand sends cmd and waits for its response, discarding the result.
func (b *Broker) ExecuteCommand(ctx context.Context, cmd Command, options ...CommandOption) error {
	_, err := b.execute(ctx, cmd, options)
	return err
}

// ExecuteRaw sends cmd and returns the undecoded result.
func (b *Broker) ExecuteRaw(ctx context.Context, cmd Command, options ...CommandOption) (json.RawMessage, error) {
	return b.execute(ctx, cmd, options)
}

// Execute sends cmd on b and decodes the result into T.
//
// Parameters:
//   - ctx: Bounds the wait for the response together with the command timeout.
//   - b: The connected broker to send on.
//   - cmd: The method and params to send.
//   - options: Per command options such as WithTimeout.
//
// Returns:
//   - T: The decoded result, the zero value on failure.
//   - error: A ProtocolError for remote errors, ErrTimeout, ErrClosed,
//     ErrDisconnected or a decode error.
//
// Type Parameters:
//   - T: The Go type the result object is decoded into.
func Execute[T any](ctx context.Context, b *Broker, cmd Command, options ...CommandOption) (T, error) {
	raw, err := b.execute(ctx, cmd, options)
	if err != nil {
		var zero T
		return zero, err
	}

	v, err := wire.Unmarshaler[T]()(raw)
	if err != nil {
		return v, fmt.Errorf("bidi: decode %s result: %w", cmd.Method, err)
	}
	return v, nil
}

func (b *Broker) execute(ctx context.Context, cmd Command, options []CommandOption) (json.RawMessage, error) {
	var co CommandOptions
	if err := opts.Apply(&co, options); err != nil {
		return nil, err
	}
	if err := b.ready(); err != nil {
		return nil, err
	}

	timeout := co.Timeout
	if timeout <= 0 {
		timeout = b.commandTimeout
	}

	id := b.nextID.Add(1)
	data, err := wire.Command{ID: id, Method: cmd.Method, Params: cmd.Params}.Encode()
	if err != nil {
		return nil, fmt.Errorf("bidi: %w", err)
	}

	// the wait ends on a response, the call context, the command timeout or
	// the broker shutting down, whichever comes first
	waitCtx, cancelWait := context.WithCancelCause(ctx)
	defer cancelWait(nil)
	waitCtx, cancelTimeout := context.WithTimeoutCause(waitCtx, timeout,
		fmt.Errorf("%w: %s (id %d) after %s: %w", ErrTimeout, cmd.Method, id, timeout, context.DeadlineExceeded))
	defer cancelTimeout()
	stop := context.AfterFunc(b.ctx, func() {
		cancelWait(context.Cause(b.ctx))
	})
	defer stop()

	entry := b.pending.Register(id, cmd.Method)
	if err := b.transport.Send(waitCtx, data); err != nil {
		b.pending.Reject(id, err)
		return nil, fmt.Errorf("bidi: send %s: %w", cmd.Method, err)
	}
	b.logger.Debug("command sent", slogx.CommandID(id), slogx.Method(cmd.Method))

	result, err := entry.Wait(waitCtx)
	if err != nil {
		// no-op when the entry was already resolved and removed
		b.pending.Abandon(id, err)

		var perr *ProtocolError
		if errors.As(err, &perr) {
			perr.Method = cmd.Method
		} else if errors.Is(err, ErrTimeout) {
			b.logger.Warn("command timed out", slogx.CommandID(id), slogx.Method(cmd.Method), slog.Duration("timeout", timeout))
		}
		return nil, err
	}
	return result, nil
}

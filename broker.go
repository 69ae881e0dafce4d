package bidi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/bidi/internal/pending"
	"github.com/casualjim/bidi/internal/queue"
	"github.com/casualjim/bidi/internal/registry"
	"github.com/casualjim/bidi/internal/wire"
	"github.com/casualjim/bidi/pkg/slogx"
	"github.com/casualjim/bidi/transport"
	"github.com/fogfish/opts"
)

const (
	stateNew int32 = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Broker multiplexes commands and event subscriptions over one transport.
//
// A Broker is connected once and closed once; it is safe for concurrent use
// by any number of goroutines in between.
type Broker struct {
	transport      transport.Transport
	logger         *slog.Logger
	commandTimeout time.Duration

	nextID   atomic.Int64
	pending  *pending.Table
	events   *queue.Queue[Event]
	registry *registry.Registry[Handler]

	state      atomic.Int32
	ctx        context.Context
	cancel     context.CancelCauseFunc
	received   chan struct{}
	dispatched chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New creates a broker for t. Nothing is sent until Connect.
func New(t transport.Transport, options ...Option) (*Broker, error) {
	if t == nil {
		return nil, errors.New("bidi: transport is required")
	}

	b := &Broker{
		transport:      t,
		commandTimeout: DefaultCommandTimeout,
		pending:        pending.NewTable(),
		events:         queue.New[Event](),
		registry:       registry.New[Handler](),
		received:       make(chan struct{}),
		dispatched:     make(chan struct{}),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.commandTimeout <= 0 {
		b.commandTimeout = DefaultCommandTimeout
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slogx.LoggerName("bidi.broker"))
	b.ctx, b.cancel = context.WithCancelCause(context.Background())
	return b, nil
}

// Connect opens the transport and starts the receive and dispatch loops.
func (b *Broker) Connect(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateNew, stateConnecting) {
		if b.state.Load() == stateClosed {
			return ErrClosed
		}
		return ErrAlreadyConnected
	}

	if err := b.transport.Connect(ctx); err != nil {
		b.state.CompareAndSwap(stateConnecting, stateNew)
		return fmt.Errorf("bidi: connect: %w", err)
	}

	if !b.state.CompareAndSwap(stateConnecting, stateConnected) {
		// closed while the handshake was in flight
		_ = b.transport.Close()
		return ErrClosed
	}

	go b.receiveLoop()
	go b.dispatchLoop()

	b.logger.Debug("broker connected")
	return nil
}

// Close stops the broker. Queued events are still dispatched, commands that
// are waiting for a response fail with ErrClosed.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		prev := b.state.Swap(stateClosed)

		b.events.Close()
		b.cancel(ErrClosed)
		if n := b.pending.FailAll(context.Cause(b.ctx)); n > 0 {
			b.logger.Debug("abandoned pending commands", slog.Int("count", n))
		}

		switch prev {
		case stateConnected:
			<-b.received
			<-b.dispatched
			b.closeErr = b.transport.Close()
		case stateNew:
			b.closeErr = b.transport.Close()
		}
		b.logger.Debug("broker closed")
	})
	return b.closeErr
}

// Done is closed when the broker stops, either by Close or because the
// transport failed.
func (b *Broker) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Err returns why the broker stopped, nil while it is running.
func (b *Broker) Err() error {
	if b.ctx.Err() == nil {
		return nil
	}
	return context.Cause(b.ctx)
}

// Pending returns the number of commands waiting for a response.
func (b *Broker) Pending() int {
	return b.pending.Len()
}

func (b *Broker) ready() error {
	switch b.state.Load() {
	case stateNew, stateConnecting:
		return ErrNotConnected
	case stateClosed:
		return ErrClosed
	}
	if b.ctx.Err() != nil {
		return context.Cause(b.ctx)
	}
	return nil
}

func (b *Broker) receiveLoop() {
	defer close(b.received)

	for {
		data, err := b.transport.Receive(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("transport receive failed", slogx.Error(err))
			b.disconnect(err)
			return
		}
		b.route(data)
	}
}

func (b *Broker) disconnect(err error) {
	cause := fmt.Errorf("%w: %w", ErrDisconnected, err)
	b.cancel(cause)
	b.events.Close()
	if n := b.pending.FailAll(cause); n > 0 {
		b.logger.Warn("failed pending commands after connection loss", slog.Int("count", n))
	}
}

func (b *Broker) route(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		b.logger.Warn("dropping undecodable message", slogx.Error(err), slogx.ByteString("data", data))
		return
	}

	switch msg.Kind {
	case wire.KindSuccess:
		if !b.pending.Resolve(msg.ID, msg.Result) {
			b.unmatched(msg)
		}
	case wire.KindError:
		if !msg.HasID {
			b.logger.Error("remote error without command id", slog.String("code", msg.Error), slog.String("message", msg.Text))
			return
		}
		perr := &ProtocolError{
			ID:         msg.ID,
			Code:       msg.Error,
			Message:    msg.Text,
			Stacktrace: msg.Stacktrace,
		}
		if !b.pending.Reject(msg.ID, perr) {
			b.unmatched(msg)
		}
	case wire.KindEvent:
		if !b.events.Push(newEvent(msg, time.Now())) {
			b.logger.Debug("dropping event after shutdown", slogx.Method(msg.Method))
		}
	}
}

func (b *Broker) unmatched(msg wire.Message) {
	if method, late := b.pending.Late(msg.ID); late {
		b.logger.Debug("dropping late response", slogx.CommandID(msg.ID), slogx.Method(method), slogx.Stringer("kind", msg.Kind))
		return
	}
	b.logger.Warn("dropping response for unknown command", slogx.CommandID(msg.ID), slogx.Stringer("kind", msg.Kind))
}

// dispatchLoop hands handlers the broker context: it is cancelled once Close
// starts or the connection is lost, while queued events are still delivered.
func (b *Broker) dispatchLoop() {
	defer close(b.dispatched)

	for {
		event, ok := b.events.Pop(context.Background())
		if !ok {
			return
		}
		b.dispatch(b.ctx, event)
	}
}

func (b *Broker) dispatch(ctx context.Context, event Event) {
	for _, reg := range b.registry.Snapshot(event.Method) {
		if !reg.Filter.Matches(event.Context, event.HasContext()) {
			continue
		}
		b.invoke(ctx, reg, event)
	}
}

func (b *Broker) invoke(ctx context.Context, reg *registry.Registration[Handler], event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slogx.Method(event.Method),
				slog.String("subscription", reg.ID),
				slog.Any("panic", r),
			)
		}
	}()

	if err := reg.Handler.HandleEvent(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			slogx.Method(event.Method),
			slog.String("subscription", reg.ID),
			slogx.Error(err),
		)
	}
}

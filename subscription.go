package bidi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/bidi/internal/registry"
	"github.com/casualjim/bidi/pkg/slogx"
	"github.com/fogfish/opts"
)

// Subscription is the handle of one registered handler.
type Subscription struct {
	broker *Broker
	reg    *registry.Registration[Handler]

	once sync.Once
	err  error
}

// ID is the local registration id. It is unique per Subscribe call, even
// when several calls share one remote subscription.
func (s *Subscription) ID() string { return s.reg.ID }

// Event is the event name the handler is registered for.
func (s *Subscription) Event() string { return s.reg.Event }

// Contexts returns the browsing contexts the subscription is scoped to,
// nil for a session wide subscription.
func (s *Subscription) Contexts() []string { return s.reg.Filter.Contexts() }

// ServerID is the subscription id returned by the remote end, empty when it
// returned none.
func (s *Subscription) ServerID() string { return s.reg.Slot().ServerID() }

// Unsubscribe is shorthand for Broker.Unsubscribe.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.broker.Unsubscribe(ctx, s)
}

// Subscribe registers handler for event. The remote end is only asked to
// subscribe the first time a given event and context set is registered;
// later registrations with the same shape share that remote subscription.
func (b *Broker) Subscribe(ctx context.Context, event string, handler Handler, options ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrInvalidHandler
	}
	if event == "" {
		return nil, errors.New("bidi: event name is required")
	}

	var so SubscribeOptions
	if err := opts.Apply(&so, options); err != nil {
		return nil, err
	}
	if err := b.ready(); err != nil {
		return nil, err
	}

	if so.Timeout > 0 {
		// waiting on another caller's subscribe counts against the timeout too
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, so.Timeout,
			fmt.Errorf("%w: %s %s after %s: %w", ErrTimeout, methodSessionSubscribe, event, so.Timeout, context.DeadlineExceeded))
		defer cancel()
	}

	filter := registry.NewFilter(so.Contexts...)
	for {
		lease := b.registry.Acquire(event, filter)
		if lease.Owner {
			return b.subscribeRemote(ctx, lease.Slot, handler, so)
		}

		select {
		case <-lease.Wait:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-b.ctx.Done():
			return nil, context.Cause(b.ctx)
		}
		if lease.Slot == nil {
			continue
		}
		if reg, ok := b.registry.Attach(lease.Slot, handler); ok {
			return &Subscription{broker: b, reg: reg}, nil
		}
	}
}

func (b *Broker) subscribeRemote(ctx context.Context, slot *registry.Slot, handler Handler, so SubscribeOptions) (*Subscription, error) {
	var cmdOpts []CommandOption
	if so.Timeout > 0 {
		cmdOpts = append(cmdOpts, WithTimeout(so.Timeout))
	}

	params := subscribeParams{
		Events:   []string{slot.Event()},
		Contexts: slot.Filter().Contexts(),
	}
	res, err := Execute[subscribeResult](ctx, b, Command{Method: methodSessionSubscribe, Params: params}, cmdOpts...)
	if err != nil {
		b.registry.Abort(slot)
		return nil, fmt.Errorf("bidi: subscribe %s: %w", slot.Event(), err)
	}

	reg := b.registry.Activate(slot, res.Subscription, handler)
	b.logger.Debug("subscribed",
		slogx.Method(slot.Event()),
		slog.Any("contexts", params.Contexts),
		slog.String("server_id", res.Subscription),
	)
	return &Subscription{broker: b, reg: reg}, nil
}

// Unsubscribe removes sub. The remote end is told to stop sending the event
// once no other registration needs it. Calling Unsubscribe again is a no-op
// returning the first result.
func (b *Broker) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil || sub.broker != b {
		return errors.New("bidi: subscription does not belong to this broker")
	}
	sub.once.Do(func() {
		sub.err = b.unsubscribe(ctx, sub.reg)
	})
	return sub.err
}

func (b *Broker) unsubscribe(ctx context.Context, reg *registry.Registration[Handler]) error {
	removal, ok := b.registry.Remove(reg)
	if !ok || removal.Slot == nil {
		return nil
	}
	defer b.registry.Finish(removal.Slot)

	var params any
	switch removal.Action {
	case registry.ActionByID:
		params = unsubscribeByIDParams{Subscriptions: []string{removal.Slot.ServerID()}}
	case registry.ActionByAttributes:
		params = unsubscribeByAttributesParams{
			Events:   []string{removal.Slot.Event()},
			Contexts: removal.Slot.Filter().Contexts(),
		}
	default:
		return nil
	}

	if b.ctx.Err() != nil {
		// the connection is gone, so is the remote subscription
		return nil
	}
	if err := b.ExecuteCommand(ctx, Command{Method: methodSessionUnsubscribe, Params: params}); err != nil {
		return fmt.Errorf("bidi: unsubscribe %s: %w", reg.Event, err)
	}
	b.logger.Debug("unsubscribed", slogx.Method(reg.Event), slog.String("subscription", reg.ID))
	return nil
}

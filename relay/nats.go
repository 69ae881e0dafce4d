package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/bidi"
	"github.com/casualjim/bidi/pkg/slogx"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is given.
const DefaultPrefix = "bidi.events"

const listenBuffer = 50

// Publisher publishes the events it handles to NATS.
type Publisher struct {
	client   *nats.Conn
	prefix   string
	subjects *haxmap.Map[string, string]
}

// NATS creates a Publisher for client. An empty prefix means DefaultPrefix.
func NATS(client *nats.Conn, prefix string) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		client:   client,
		prefix:   prefix,
		subjects: haxmap.New[string, string](),
	}
}

// Subject returns the subject events for method are published on.
func (p *Publisher) Subject(method string) string {
	subject, _ := p.subjects.GetOrCompute(method, func() string {
		return p.prefix + "." + method
	})
	return subject
}

func (p *Publisher) HandleEvent(ctx context.Context, event bidi.Event) error {
	if event.Method == "" {
		return errors.New("relay: event without method")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("relay: encode %s: %w", event.Method, err)
	}
	if err := p.client.Publish(p.Subject(event.Method), data); err != nil {
		return fmt.Errorf("relay: publish %s: %w", event.Method, err)
	}
	return nil
}

// Subscription is a running Listen.
type Subscription struct {
	id  string
	sub *nats.Subscription
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Unsubscribe() {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", s.id))
	}
}

// Listen subscribes to subject and hands every decoded event to handler, in
// the order NATS delivers them. Delivery stops when ctx ends or the
// subscription is removed.
func Listen(ctx context.Context, client *nats.Conn, subject string, handler bidi.Handler) (*Subscription, error) {
	if handler == nil {
		return nil, bidi.ErrInvalidHandler
	}

	ch := make(chan bidi.Event, listenBuffer)
	nsub, err := client.Subscribe(subject, func(msg *nats.Msg) {
		var event bidi.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}

		select {
		case ch <- event:
		case <-ctx.Done():
			return
		}

		if msg.Reply != "" {
			if nerr := msg.Respond(nil); nerr != nil {
				slog.Error("failed to acknowledge message", slogx.Error(nerr))
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("relay: subscribe %s: %w", subject, err)
	}
	nsub.SetClosedHandler(func(string) { close(ch) })

	sub := &Subscription{id: uuid.Must(uuid.NewV7()).String(), sub: nsub}
	go forward(ctx, sub, ch, handler)
	return sub, nil
}

func forward(ctx context.Context, sub *Subscription, ch <-chan bidi.Event, handler bidi.Handler) {
	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := handler.HandleEvent(ctx, event); err != nil {
				slog.Error("relayed event handler failed",
					slogx.Method(event.Method),
					slog.String("subscription", sub.id),
					slogx.Error(err),
				)
			}
		}
	}
}

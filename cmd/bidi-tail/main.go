// Command bidi-tail connects to a WebDriver BiDi endpoint and prints the
// events it subscribes to, optionally relaying them to NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/bidi"
	"github.com/casualjim/bidi/pkg/natsx"
	"github.com/casualjim/bidi/pkg/slogx"
	"github.com/casualjim/bidi/relay"
	"github.com/casualjim/bidi/transport"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var level = new(slog.LevelVar)

func init() {
	level.Set(slog.LevelWarn)
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

type config struct {
	url      string
	events   []string
	contexts []string
	timeout  time.Duration
	natsURL  string
	relay    bool
	prefix   string
	pretty   bool
	verbose  bool
	noStatus bool
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", slog.String("key", key), slogx.Error(err))
		return fallback
	}
	return d
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	cmd := &cobra.Command{
		Use:   "bidi-tail",
		Short: "Print WebDriver BiDi events as they arrive",
		Long: `Connect to a WebDriver BiDi endpoint, subscribe to events and print them.

Examples:
  bidi-tail --url ws://127.0.0.1:9222/session
  bidi-tail --events browsingContext.load,log.entryAdded --contexts ABC123
  bidi-tail --relay --nats nats://127.0.0.1:4222 --prefix bidi.events`,
		SilenceUsage: true,
		PreRun: func(*cobra.Command, []string) {
			if cfg.verbose {
				level.Set(slog.LevelDebug)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.url, "url", os.Getenv("BIDI_URL"), "WebSocket URL of the BiDi endpoint (env BIDI_URL)")
	flags.StringSliceVarP(&cfg.events, "events", "e", []string{"log.entryAdded", "browsingContext.load"}, "events to subscribe to")
	flags.StringSliceVarP(&cfg.contexts, "contexts", "c", nil, "browsing contexts to scope the subscriptions to")
	flags.DurationVar(&cfg.timeout, "timeout", envDuration("BIDI_COMMAND_TIMEOUT", bidi.DefaultCommandTimeout), "command timeout (env BIDI_COMMAND_TIMEOUT)")
	flags.StringVar(&cfg.natsURL, "nats", os.Getenv("NATS_URL"), "NATS server URL (env NATS_URL)")
	flags.BoolVar(&cfg.relay, "relay", false, "relay events to NATS")
	flags.StringVar(&cfg.prefix, "prefix", relay.DefaultPrefix, "NATS subject prefix for relayed events")
	flags.BoolVar(&cfg.pretty, "pretty", false, "pretty print event params")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&cfg.noStatus, "no-status", false, "skip the session.status check")
	return cmd
}

func run(ctx context.Context, cfg *config) error {
	var errs []error
	if cfg.url == "" {
		errs = append(errs, errors.New("--url or BIDI_URL is required"))
	}
	if len(cfg.events) == 0 {
		errs = append(errs, errors.New("at least one event is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	ws, err := transport.NewWebSocket(cfg.url, transport.Logger(slog.Default()))
	if err != nil {
		return err
	}
	broker, err := bidi.New(ws, bidi.CommandTimeout(cfg.timeout))
	if err != nil {
		return err
	}
	if err := broker.Connect(ctx); err != nil {
		return err
	}
	defer broker.Close()

	out := newPrinter(os.Stdout, cfg.pretty)
	if !cfg.noStatus {
		status, err := broker.Status(ctx)
		if err != nil {
			return fmt.Errorf("session status: %w", err)
		}
		out.Status(status)
	}

	handlers := []bidi.Handler{out}
	if cfg.relay {
		nc, err := natsx.NewClient(cfg.natsURL)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()
		handlers = append(handlers, relay.NATS(nc, cfg.prefix))
	}

	for _, event := range cfg.events {
		for _, h := range handlers {
			sub, err := broker.Subscribe(ctx, event, h, bidi.WithContexts(cfg.contexts...))
			if err != nil {
				return err
			}
			defer func() {
				// the run context is done by now
				uctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
				defer cancel()
				if err := sub.Unsubscribe(uctx); err != nil {
					slog.Warn("unsubscribe failed", slogx.Method(event), slogx.Error(err))
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-broker.Done():
		return broker.Err()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

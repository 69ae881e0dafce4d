package bidi

import (
	"log/slog"
	"time"

	"github.com/fogfish/opts"
)

// DefaultCommandTimeout bounds a command when neither the broker nor the
// call sets a timeout.
const DefaultCommandTimeout = 30 * time.Second

// Option configures a Broker.
type Option = opts.Option[Broker]

var (
	// WithLogger sets the logger for the broker loops.
	WithLogger = opts.ForName[Broker, *slog.Logger]("logger")

	// CommandTimeout replaces DefaultCommandTimeout for every command the
	// broker sends, including its own session commands.
	CommandTimeout = opts.ForName[Broker, time.Duration]("commandTimeout")
)

// CommandOptions holds per call settings for ExecuteCommand and Execute.
type CommandOptions struct {
	Timeout time.Duration
}

// CommandOption configures a single command.
type CommandOption = opts.Option[CommandOptions]

// WithTimeout overrides the command timeout for one call.
var WithTimeout = opts.ForName[CommandOptions, time.Duration]("Timeout")

// SubscribeOptions holds the settings of a Subscribe call.
type SubscribeOptions struct {
	// Contexts scopes delivery to these browsing contexts. Empty means
	// session wide.
	Contexts []string
	// Timeout bounds the remote session.subscribe command.
	Timeout time.Duration
}

// SubscribeOption configures a Subscribe call.
type SubscribeOption = opts.Option[SubscribeOptions]

// SubscribeTimeout bounds the remote subscribe command of one Subscribe call.
var SubscribeTimeout = opts.ForName[SubscribeOptions, time.Duration]("Timeout")

// WithContexts scopes a subscription to the given browsing contexts.
func WithContexts(contexts ...string) SubscribeOption {
	return opts.Type[SubscribeOptions](func(o *SubscribeOptions) error {
		o.Contexts = append(o.Contexts, contexts...)
		return nil
	})
}

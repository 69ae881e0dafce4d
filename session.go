package bidi

import (
	"context"
)

const (
	methodSessionStatus      = "session.status"
	methodSessionSubscribe   = "session.subscribe"
	methodSessionUnsubscribe = "session.unsubscribe"
)

type subscribeParams struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

type subscribeResult struct {
	Subscription string `json:"subscription,omitempty"`
}

type unsubscribeByIDParams struct {
	Subscriptions []string `json:"subscriptions"`
}

type unsubscribeByAttributesParams struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

// SessionStatus is the result of session.status.
type SessionStatus struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// Status asks the remote end whether it can create new sessions.
func (b *Broker) Status(ctx context.Context, options ...CommandOption) (SessionStatus, error) {
	return Execute[SessionStatus](ctx, b, Command{Method: methodSessionStatus}, options...)
}

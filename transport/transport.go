// Package transport provides the duplex channels a bidi.Broker runs on.
//
// A Transport moves opaque frames; it knows nothing about commands or
// events. The package ships a WebSocket transport for talking to a browser
// or driver, and an in-memory transport that lets tests play the remote end.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the transport is closed.
var ErrClosed = errors.New("transport closed")

// ErrNotConnected is returned by Send and Receive before Connect.
var ErrNotConnected = errors.New("transport not connected")

// Transport is a connected duplex channel of opaque frames.
//
// Send may be called from many goroutines. Receive is only ever called from
// one goroutine at a time and must return when ctx is done.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

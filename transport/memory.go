package transport

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Transport. The local side is used by a broker,
// the remote side (Sent, Deliver, Fail) is driven by tests or by an
// embedded fake endpoint.
type Memory struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	failure   error

	inbound  chan []byte
	outbound chan []byte
	done     chan struct{}
	failed   chan struct{}
	failOnce sync.Once
}

// NewMemory creates a Memory transport whose queues hold up to buffer frames
// in each direction.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{
		inbound:  make(chan []byte, buffer),
		outbound: make(chan []byte, buffer),
		done:     make(chan struct{}),
		failed:   make(chan struct{}),
	}
}

// Connect marks the pipe open. It fails once the pipe is closed.
func (m *Memory) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.connected = true
	return nil
}

func (m *Memory) state() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.failure != nil:
		return m.failure
	case !m.connected:
		return ErrNotConnected
	}
	return nil
}

// Send queues data for the remote side, see Sent.
func (m *Memory) Send(ctx context.Context, data []byte) error {
	if err := m.state(); err != nil {
		return err
	}
	frame := append([]byte(nil), data...)
	select {
	case m.outbound <- frame:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-m.done:
		return ErrClosed
	case <-m.failed:
		return m.state()
	}
}

func (m *Memory) Receive(ctx context.Context) ([]byte, error) {
	if err := m.state(); err != nil {
		return nil, err
	}
	select {
	case data := <-m.inbound:
		return data, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-m.done:
		return nil, ErrClosed
	case <-m.failed:
		return nil, m.state()
	}
}

// Close closes the pipe; pending Receive calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

// Closed reports whether the local side closed the transport.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Sent returns the frames written by the local side.
func (m *Memory) Sent() <-chan []byte {
	return m.outbound
}

// Deliver queues a frame for the local side to receive.
func (m *Memory) Deliver(ctx context.Context, data []byte) error {
	select {
	case m.inbound <- append([]byte(nil), data...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Fail simulates a dropped connection: pending and future reads and writes
// return err.
func (m *Memory) Fail(err error) {
	if err == nil {
		err = errors.New("connection reset")
	}
	m.failOnce.Do(func() {
		m.mu.Lock()
		m.failure = err
		m.mu.Unlock()
		close(m.failed)
	})
}

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/casualjim/bidi/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultReadLimit        = 64 << 20
)

// WebSocketOption configures a WebSocket transport.
type WebSocketOption = opts.Option[WebSocket]

var (
	// Header adds HTTP headers to the opening handshake.
	Header = opts.ForName[WebSocket, http.Header]("header")
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout = opts.ForName[WebSocket, time.Duration]("handshakeTimeout")
	// WriteWait bounds every frame write.
	WriteWait = opts.ForName[WebSocket, time.Duration]("writeWait")
	// ReadLimit is the largest frame accepted from the remote end.
	ReadLimit = opts.ForName[WebSocket, int64]("readLimit")
	// TLSConfig is used for wss:// endpoints.
	TLSConfig = opts.ForName[WebSocket, *tls.Config]("tlsConfig")
	// Logger receives connection lifecycle logs.
	Logger = opts.ForName[WebSocket, *slog.Logger]("logger")
)

// WebSocket is a Transport over a gorilla/websocket connection, as spoken
// by BiDi endpoints (ws://host:port/session/<id>).
type WebSocket struct {
	url              string
	header           http.Header
	handshakeTimeout time.Duration
	writeWait        time.Duration
	readLimit        int64
	tlsConfig        *tls.Config
	logger           *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
}

// NewWebSocket creates an unconnected WebSocket transport for url.
func NewWebSocket(url string, options ...WebSocketOption) (*WebSocket, error) {
	ws := &WebSocket{
		url:              url,
		handshakeTimeout: defaultHandshakeTimeout,
		writeWait:        defaultWriteWait,
		readLimit:        defaultReadLimit,
		logger:           slog.Default(),
	}
	if err := opts.Apply(ws, options); err != nil {
		return nil, err
	}
	if ws.url == "" {
		return nil, errors.New("websocket url is required")
	}
	ws.logger = ws.logger.With(slogx.LoggerName("bidi.transport"), slog.String("url", ws.url))
	return ws, nil
}

// Connect dials the endpoint. Calling it again on a live connection is an error.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.conn != nil {
		return errors.New("websocket already connected")
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.handshakeTimeout,
		TLSClientConfig:  w.tlsConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			w.logger.Error("websocket dial error with response", slog.String("status", resp.Status), slogx.Error(err))
			return fmt.Errorf("failed to dial websocket %s (status: %s): %w", w.url, resp.Status, err)
		}
		w.logger.Error("websocket dial error", slogx.Error(err))
		return fmt.Errorf("failed to dial websocket %s: %w", w.url, err)
	}
	conn.SetReadLimit(w.readLimit)
	w.conn = conn

	w.logger.Debug("websocket connected")
	return nil
}

func (w *WebSocket) current() (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.conn == nil {
		return nil, ErrNotConnected
	}
	return w.conn, nil
}

// Send writes data as one text message.
func (w *WebSocket) Send(ctx context.Context, data []byte) error {
	conn, err := w.current()
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(w.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Receive reads the next text or binary frame. Cancelling ctx forces the
// pending read to fail; the connection is unusable for reads afterwards.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	conn, err := w.current()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			if w.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return message, nil
		}
	}
}

func (w *WebSocket) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close sends a normal closure frame and closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(w.writeWait),
	)
	w.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		w.logger.Debug("error sending close message", slogx.Error(err))
	}
	return conn.Close()
}

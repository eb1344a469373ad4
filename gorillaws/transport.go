// Package gorillaws backs a session transport with a gorilla/websocket
// client connection. One Transport serves one connect attempt: configure,
// Open, send through the Writer, Close. The read pump owns the connection's
// inbound side and reports frames and the final close code through the
// subscribed event sink.
package gorillaws

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = 5 * time.Second
)

var (
	errAlreadyOpen = errors.New("gorillaws: transport already opened")
	errNotOpen     = errors.New("gorillaws: transport not open")
	errClosed      = errors.New("gorillaws: transport closed")
)

// Option adjusts transport construction.
type Option func(*Transport)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) { t.handshakeTimeout = d }
}

// WithTLSConfig supplies the TLS configuration for wss addresses.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) { t.tlsConfig = cfg }
}

// Transport implements wsess.Transport over gorilla/websocket.
type Transport struct {
	handshakeTimeout time.Duration
	tlsConfig        *tls.Config

	mu        sync.Mutex
	headers   http.Header
	protocols []string
	ev        wsess.Events
	conn      *websocket.Conn
	writer    *messageWriter
	closed    bool
	closeCode int
	torndown  bool
}

var _ wsess.Transport = (*Transport)(nil)

func New(opts ...Option) *Transport {
	t := &Transport{
		handshakeTimeout: defaultHandshakeTimeout,
		headers:          make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Factory adapts New into a wsess.TransportFactory.
func Factory(opts ...Option) wsess.TransportFactory {
	return func() wsess.Transport { return New(opts...) }
}

func (t *Transport) SetHeader(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers.Add(name, value)
}

func (t *Transport) AppendProtocol(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.protocols = append(t.protocols, name)
}

func (t *Transport) Subscribe(ev wsess.Events) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ev = ev
}

// Open dials the address and starts the read pump. The handshake is bounded
// by ctx and the configured handshake timeout, whichever ends first.
func (t *Transport) Open(ctx context.Context, address string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: errClosed}
	}
	if t.conn != nil {
		t.mu.Unlock()
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: errAlreadyOpen}
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.handshakeTimeout,
		Subprotocols:     append([]string(nil), t.protocols...),
		TLSClientConfig:  t.tlsConfig,
	}
	headers := t.headers.Clone()
	ev := t.ev
	t.mu.Unlock()

	conn, _, err := dialer.DialContext(ctx, address, headers)
	if err != nil {
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: err}
	}

	t.mu.Lock()
	if t.closed {
		// Close raced the dial; the connection never becomes visible.
		t.mu.Unlock()
		_ = conn.Close()
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: errClosed}
	}
	t.conn = conn
	t.writer = &messageWriter{conn: conn}
	t.mu.Unlock()

	log.Debug().
		Str("address", address).
		Str("subprotocol", conn.Subprotocol()).
		Msg("websocket dialed")

	go t.readPump(conn, ev)
	return nil
}

func (t *Transport) Writer() (wsess.MessageWriter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer == nil {
		return nil, &wsess.TransportError{Code: wsess.CloseAbnormal, Err: errNotOpen}
	}
	return t.writer, nil
}

// Close sends a close frame with the given status code and stops accepting
// writes. The connection is confirmed down through Events.Closed once the
// peer answers the close handshake, or force-dropped after a grace period.
func (t *Transport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.closeCode = code
	conn := t.conn
	writer := t.writer
	t.mu.Unlock()

	if writer != nil {
		writer.shutdown(code)
	}
	if conn == nil {
		// Dial still in flight; Open notices the closed flag when it lands.
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(closeGracePeriod)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		_ = conn.Close()
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: err}
	}

	time.AfterFunc(closeGracePeriod, func() {
		t.mu.Lock()
		done := t.torndown
		t.mu.Unlock()
		if !done {
			_ = conn.Close()
		}
	})
	return nil
}

// readPump drains inbound frames until the connection dies, then reports the
// close exactly once.
func (t *Transport) readPump(conn *websocket.Conn, ev wsess.Events) {
	code := wsess.CloseAbnormal
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			break
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if ev != nil {
			ev.MessageReceived(payload)
		}
	}

	t.mu.Lock()
	t.torndown = true
	// A locally initiated close that never got a peer echo still reports the
	// requested status code rather than an abnormal one.
	if t.closed && code == wsess.CloseAbnormal {
		code = t.closeCode
	}
	t.mu.Unlock()

	_ = conn.Close()
	log.Debug().Int("code", code).Msg("websocket closed")
	if ev != nil {
		ev.Closed(code)
	}
}

// messageWriter stages one outgoing text message at a time. The session's
// send pipeline serializes Write and Flush; the mutex only coordinates with
// shutdown.
type messageWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	staged []byte
	closed bool
	code   int
}

func (w *messageWriter) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &wsess.TransportError{Code: w.code, Err: errClosed}
	}
	w.staged = append(w.staged, p...)
	return nil
}

func (w *messageWriter) Flush() error {
	w.mu.Lock()
	if w.closed {
		code := w.code
		w.mu.Unlock()
		return &wsess.TransportError{Code: code, Err: errClosed}
	}
	payload := w.staged
	w.staged = nil
	conn := w.conn
	w.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return &wsess.TransportError{Code: ce.Code, Err: err}
		}
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: err}
	}
	return nil
}

func (w *messageWriter) shutdown(code int) {
	w.mu.Lock()
	w.closed = true
	w.code = code
	w.mu.Unlock()
}

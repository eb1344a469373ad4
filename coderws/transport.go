// Package coderws backs a session transport with a coder/websocket client
// connection. It mirrors the gorillaws package behind the same interface, so
// callers pick an implementation purely through the transport factory.
package coderws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess"
)

const defaultWriteTimeout = 10 * time.Second

var (
	errAlreadyOpen = errors.New("coderws: transport already opened")
	errNotOpen     = errors.New("coderws: transport not open")
	errClosed      = errors.New("coderws: transport closed")
)

// Option adjusts transport construction.
type Option func(*Transport)

// WithHTTPClient supplies the HTTP client used for the opening handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *Transport) { t.httpClient = hc }
}

// WithWriteTimeout bounds each message transmission.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) { t.writeTimeout = d }
}

// Transport implements wsess.Transport over coder/websocket.
type Transport struct {
	httpClient   *http.Client
	writeTimeout time.Duration

	mu        sync.Mutex
	headers   http.Header
	protocols []string
	ev        wsess.Events
	conn      *websocket.Conn
	writer    *messageWriter
	closed    bool
	closeCode int
}

var _ wsess.Transport = (*Transport)(nil)

func New(opts ...Option) *Transport {
	t := &Transport{
		writeTimeout: defaultWriteTimeout,
		headers:      make(http.Header),
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
	opts := &websocket.DialOptions{
		HTTPClient:   t.httpClient,
		HTTPHeader:   t.headers.Clone(),
		Subprotocols: append([]string(nil), t.protocols...),
	}
	ev := t.ev
	t.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, address, opts)
	if err != nil {
		return &wsess.TransportError{Code: closeCodeFrom(err), Err: err}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.CloseNow()
		return &wsess.TransportError{Code: wsess.CloseAbnormal, Err: errClosed}
	}
	t.conn = conn
	t.writer = &messageWriter{conn: conn, timeout: t.writeTimeout}
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

// Close performs the close handshake with the given status code. The read
// pump reports the result through Events.Closed.
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
		return nil
	}
	if err := conn.Close(websocket.StatusCode(code), reason); err != nil {
		// The peer may already be gone; the read pump still reports the close.
		log.Debug().Err(err).Int("code", code).Msg("close handshake incomplete")
	}
	return nil
}

func (t *Transport) readPump(conn *websocket.Conn, ev wsess.Events) {
	code := wsess.CloseAbnormal
	for {
		msgType, payload, err := conn.Read(context.Background())
		if err != nil {
			code = closeCodeFrom(err)
			break
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		if ev != nil {
			ev.MessageReceived(payload)
		}
	}

	t.mu.Lock()
	if t.closed && code == wsess.CloseAbnormal {
		code = t.closeCode
	}
	t.mu.Unlock()

	conn.CloseNow()
	log.Debug().Int("code", code).Msg("websocket closed")
	if ev != nil {
		ev.Closed(code)
	}
}

// closeCodeFrom maps an error to its close status code, or abnormal closure
// when the error carries none.
func closeCodeFrom(err error) int {
	if status := websocket.CloseStatus(err); status != -1 {
		return int(status)
	}
	return wsess.CloseAbnormal
}

// messageWriter stages one outgoing text message at a time.
type messageWriter struct {
	timeout time.Duration

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
	timeout := w.timeout
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return &wsess.TransportError{Code: closeCodeFrom(err), Err: err}
	}
	return nil
}

func (w *messageWriter) shutdown(code int) {
	w.mu.Lock()
	w.closed = true
	w.code = code
	w.mu.Unlock()
}

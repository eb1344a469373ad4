package wsess

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess/internal/observability"
)

// State is the session lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one logical WebSocket connection: its lifecycle state, its
// transport handle, and its outgoing pipeline. The transport is non-nil
// exactly while the state is Connecting, Open, or Closing.
type Session struct {
	id     uint64
	client *Client

	mu        sync.Mutex
	state     State
	address   string
	protocols []string
	transport Transport
	writer    MessageWriter
	connectOp *Operation

	sendMu sync.Mutex
	sendQ  []*outgoing
}

func (s *Session) ID() uint64 { return s.id }

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subprotocols returns the sub-protocol list offered by the most recent
// connect attempt.
func (s *Session) Subprotocols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.protocols...)
}

// ConnectResult returns the most recent connect outcome: ErrInvalidState
// before any attempt, ErrPending while an attempt is in flight, and the
// recorded Result afterwards.
func (s *Session) ConnectResult() (Result, error) {
	s.mu.Lock()
	op := s.connectOp
	s.mu.Unlock()
	if op == nil {
		return Result{}, ErrInvalidState
	}
	return op.Result()
}

// Connect establishes the session's transport. Valid from Idle, and again
// from Failed or Closed, where it builds a replacement transport on the same
// session. The sub-protocol field is parsed as a comma-separated list
// (entries trimmed, empties dropped, order preserved) and offered through
// the transport's dedicated facility; the reserved negotiation header is
// filtered out of headers. The dial runs on the scheduler and is bounded
// only by ctx. The returned Operation completes with the connect Result.
func (s *Session) Connect(ctx context.Context, address, subProtocolCsv string, headers http.Header) (*Operation, error) {
	if address == "" {
		return nil, ErrAddressRequired
	}
	if s.client == nil || s.client.isClosed() {
		return nil, ErrNotReady
	}

	protocols := ParseSubprotocols(subProtocolCsv)
	transport := s.client.cfg.NewTransport()
	if transport == nil {
		return nil, ErrTransportFactoryRequired
	}

	s.mu.Lock()
	switch s.state {
	case StateIdle, StateFailed, StateClosed:
	default:
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	prev := s.state
	op := newOperation()
	s.state = StateConnecting
	s.address = address
	s.protocols = protocols
	s.transport = transport
	s.writer = nil
	s.connectOp = op
	s.mu.Unlock()

	for name, values := range headers {
		if isReservedHeader(name) {
			log.Debug().Uint64("session", s.id).Msg("dropping reserved subprotocol header")
			continue
		}
		for _, v := range values {
			transport.SetHeader(name, v)
		}
	}
	for _, p := range protocols {
		transport.AppendProtocol(p)
	}
	transport.Subscribe(&sessionEvents{session: s, transport: transport})

	log.Info().
		Uint64("session", s.id).
		Str("address", address).
		Strs("protocols", protocols).
		Msg("connect requested")

	if err := s.client.submit(func() { s.runConnect(ctx, transport, address, op) }); err != nil {
		s.mu.Lock()
		if s.transport == transport {
			s.state = prev
			s.transport = nil
			s.connectOp = nil
		}
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	return op, nil
}

// runConnect executes one connect attempt on the scheduler.
func (s *Session) runConnect(ctx context.Context, t Transport, address string, op *Operation) {
	if err := t.Open(ctx, address); err != nil {
		s.failConnect(t, op, err)
		return
	}

	writer, err := t.Writer()
	if err != nil {
		_ = t.Close(CloseInternalErr, "writer unavailable")
		s.failConnect(t, op, err)
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting || s.transport != t {
		// torn down while the dial was in flight
		s.mu.Unlock()
		op.complete(newResult(s, CodeUnknown))
		observability.RecordConnect("failed")
		return
	}
	s.writer = writer
	s.state = StateOpen
	s.mu.Unlock()

	op.complete(newResult(s, CodeOK))
	observability.RecordConnect("ok")
	log.Info().Uint64("session", s.id).Msg("session open")
}

func (s *Session) failConnect(t Transport, op *Operation, err error) {
	s.mu.Lock()
	if s.transport == t {
		s.transport = nil
		s.writer = nil
		s.state = StateFailed
	}
	s.mu.Unlock()

	res := resultFromError(s, err)
	op.complete(res)
	observability.RecordConnect("failed")
	log.Error().
		Err(err).
		Uint64("session", s.id).
		Int("code", res.Code).
		Msg("connect failed")
}

// Disconnect requests transport close with the given status code. Valid
// while Connecting or Open; the close itself is confirmed asynchronously
// through the subscriber's SessionClosed callback. Queued messages are not
// cancelled here; they fail through the send pipeline once the transport
// stops accepting writes.
func (s *Session) Disconnect(closeStatusCode int) error {
	s.mu.Lock()
	if s.transport == nil {
		s.mu.Unlock()
		return ErrNoTransport
	}
	if s.state != StateOpen && s.state != StateConnecting {
		s.mu.Unlock()
		return ErrInvalidState
	}
	transport := s.transport
	s.state = StateClosing
	s.mu.Unlock()

	log.Info().
		Uint64("session", s.id).
		Int("code", closeStatusCode).
		Msg("disconnect requested")

	if err := transport.Close(closeStatusCode, ""); err != nil {
		return &TransportError{Code: CodeUnknown, Err: err}
	}
	return nil
}

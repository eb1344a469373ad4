package wsess

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess/internal/observability"
)

// Subscriber receives inbound events for every session of a client.
// Callbacks fire on transport-owned goroutines and should hand work off
// promptly.
type Subscriber interface {
	// MessageReceived delivers one non-empty inbound message payload.
	MessageReceived(s *Session, payload []byte)
	// SessionClosed reports the close status code verbatim, whether the
	// close was locally or remotely initiated.
	SessionClosed(s *Session, code int)
}

// sessionEvents adapts one transport's notifications onto its session. The
// transport reference lets the session ignore stale events after the
// transport has been replaced by a reconnect.
type sessionEvents struct {
	session   *Session
	transport Transport
}

func (ev *sessionEvents) MessageReceived(payload []byte) {
	ev.session.handleMessage(payload)
}

func (ev *sessionEvents) Closed(code int) {
	ev.session.handleClosed(ev.transport, code)
}

func (s *Session) handleMessage(payload []byte) {
	if len(payload) == 0 {
		log.Debug().Uint64("session", s.id).Msg("dropping empty inbound message")
		return
	}
	observability.RecordReceive()

	sub := s.client.subscriber()
	if sub == nil {
		return
	}
	sub.MessageReceived(s, payload)
}

func (s *Session) handleClosed(t Transport, code int) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.writer = nil
	if s.state != StateFailed {
		s.state = StateClosed
	}
	s.mu.Unlock()

	observability.RecordClose(code)
	log.Info().Uint64("session", s.id).Int("code", code).Msg("session closed")

	sub := s.client.subscriber()
	if sub != nil {
		sub.SessionClosed(s, code)
	}
}

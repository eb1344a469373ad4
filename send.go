package wsess

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess/internal/observability"
)

// outgoing is one queued message record: the payload, its assigned id, the
// transport it may ride, the caller's completion token, and the observed
// outcome.
type outgoing struct {
	id        uint64
	payload   []byte
	transport Transport
	op        *Operation
	code      int
	err       error
	started   time.Time
}

// Send enqueues one text message for ordered transmission. The returned
// Operation completes when the transport flush for this record finishes,
// successfully or not. Completions are delivered in Send call order.
func (s *Session) Send(text string) (*Operation, error) {
	if len(text) == 0 {
		return nil, ErrEmptyMessage
	}
	if s.client == nil || s.client.isClosed() {
		return nil, ErrNotReady
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	transport := s.transport
	s.mu.Unlock()

	msg := &outgoing{
		id:        s.client.nextID(),
		payload:   []byte(text),
		transport: transport,
		op:        newOperation(),
	}

	// The emptiness check and the append must be atomic with respect to
	// other producers; two producers observing "empty" would both start a
	// transmission and break single-flight.
	s.sendMu.Lock()
	wasEmpty := len(s.sendQ) == 0
	s.sendQ = append(s.sendQ, msg)
	depth := len(s.sendQ)
	s.sendMu.Unlock()

	log.Debug().
		Uint64("session", s.id).
		Uint64("message", msg.id).
		Int("queue", depth).
		Msg("message enqueued")

	if wasEmpty {
		s.advance(false)
	}
	return msg.op, nil
}

// advance is the send-loop entry point. A producer calls it after appending
// to an empty queue; each record's completion calls it with popCompleted to
// discard the finished front and dispatch the successor. The in-flight
// record stays at the front until its completion, which keeps the
// append-time emptiness check a sound in-flight test.
func (s *Session) advance(popCompleted bool) {
	s.sendMu.Lock()
	if popCompleted && len(s.sendQ) > 0 {
		s.sendQ = s.sendQ[1:]
	}
	if len(s.sendQ) == 0 {
		s.sendMu.Unlock()
		return
	}
	msg := s.sendQ[0]
	s.sendMu.Unlock()

	s.transmit(msg)
}

// transmit submits one record to the transport writer on the scheduler. The
// queue lock is never held here; the slow path must not serialize producers.
// A record rides only the transport that was current when it was enqueued;
// once a teardown or a reconnect has replaced that transport, the record
// fails instead of surfacing on a connection it was never queued for.
func (s *Session) transmit(msg *outgoing) {
	s.mu.Lock()
	writer := s.writer
	if s.transport != msg.transport {
		writer = nil
	}
	s.mu.Unlock()

	msg.started = time.Now()
	if writer == nil {
		s.finish(msg, &TransportError{Code: CodeUnknown, Err: ErrNoTransport})
		return
	}

	err := s.client.submit(func() {
		if werr := writer.Write(msg.payload); werr != nil {
			s.finish(msg, werr)
			return
		}
		s.finish(msg, writer.Flush())
	})
	if err != nil {
		s.finish(msg, &TransportError{Code: CodeUnknown, Err: err})
	}
}

// finish records the outcome on the record, completes the caller's token,
// and re-enters the loop for the next record. A record that fails before
// its flush is still completed here, so the queue never stalls behind a
// dead entry.
func (s *Session) finish(msg *outgoing, err error) {
	res := resultFromError(s, err)
	msg.code = res.Code
	msg.err = err

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		log.Warn().
			Err(err).
			Uint64("session", s.id).
			Uint64("message", msg.id).
			Int("code", res.Code).
			Msg("message send failed")
	}
	observability.RecordSend(outcome, time.Since(msg.started))

	msg.op.complete(res)
	s.advance(true)
}

package wsess

import "context"

// Transport is the platform-facing collaborator performing network I/O and
// protocol framing. One transport instance serves one connect attempt: the
// session configures it with SetHeader, AppendProtocol, and Subscribe, then
// calls Open, acquires the Writer for the send path, and finally Close.
// Implementations own the goroutines of their read path; Events callbacks
// fire on those transport-owned goroutines.
//
// All operations report failures as errors, wrapping a *TransportError when
// a platform diagnostic code is known. Nothing panics across the boundary.
type Transport interface {
	// SetHeader registers one handshake header value before Open.
	SetHeader(name, value string)
	// AppendProtocol registers one offered sub-protocol, in offer order.
	AppendProtocol(name string)
	// Subscribe registers the event sink. Must be called before Open.
	Subscribe(ev Events)
	// Open dials the address. It blocks until the handshake finishes or ctx
	// is done; the session runs it on the scheduler, never on the caller.
	Open(ctx context.Context, address string) error
	// Writer returns the message writer bound to the open connection.
	Writer() (MessageWriter, error)
	// Close tears the connection down with the given status code. The close
	// is confirmed asynchronously through Events.Closed.
	Close(code int, reason string) error
}

// MessageWriter stages and transmits one outgoing text message at a time.
// The single-flight pipeline guarantees it is never used concurrently.
type MessageWriter interface {
	// Write stages payload bytes for the next transmission.
	Write(p []byte) error
	// Flush transmits the staged bytes as one text message and clears the
	// stage.
	Flush() error
}

// Events is the sink for transport-originated notifications.
type Events interface {
	// MessageReceived delivers one complete inbound message payload.
	MessageReceived(payload []byte)
	// Closed reports the connection close with its status code, whether the
	// close was locally or remotely initiated. Fired at most once.
	Closed(code int)
}

// TransportFactory builds one fresh transport per connect attempt.
type TransportFactory func() Transport

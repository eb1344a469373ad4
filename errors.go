package wsess

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage    = errors.New("wsess: empty message")
	ErrAddressRequired = errors.New("wsess: address required")
	ErrNotReady        = errors.New("wsess: client not initialized")
	ErrNotConnected    = errors.New("wsess: session not connected")
	ErrNoTransport     = errors.New("wsess: session has no active transport")
	ErrInvalidState    = errors.New("wsess: operation invalid in current state")
	ErrPending         = errors.New("wsess: operation still pending")

	ErrSubscriberRequired       = errors.New("wsess: subscriber required")
	ErrTransportFactoryRequired = errors.New("wsess: transport factory required")
)

// TransportError wraps a failure surfaced by the transport during connect,
// write, or flush, preserving the platform diagnostic code verbatim.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wsess: transport failure (code %d)", e.Code)
	}
	return fmt.Sprintf("wsess: transport failure (code %d): %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusOf maps an error from the application surface onto the generic tier
// of the two-tier code scheme. Unrecognized errors land in StatusUnexpected,
// the catch-all class.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrAddressRequired),
		errors.Is(err, ErrNoTransport),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrSubscriberRequired),
		errors.Is(err, ErrTransportFactoryRequired):
		return StatusInvalidArgument
	case errors.Is(err, ErrNotReady):
		return StatusNotReady
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		return StatusFailed
	}
	return StatusUnexpected
}

package wsess

import "errors"

// Status is the generic tier of the two-tier completion code scheme; the
// transport's own diagnostic travels alongside it as the platform Code.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusNotReady
	StatusUnexpected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusNotReady:
		return "not_ready"
	case StatusUnexpected:
		return "unexpected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Platform codes shared by the built-in transports. Transports may report
// any RFC 6455 close code; CodeUnknown marks failures with no finer
// diagnostic.
const (
	CodeOK      = 0
	CodeUnknown = -1
)

// RFC 6455 close status codes used by Disconnect callers and transports.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseAbnormal      = 1006
	CloseInternalErr   = 1011
)

// Result is the uniform completion value for connect and send operations.
// Status is a pure function of Code: CodeOK yields StatusOK, anything else
// StatusFailed.
type Result struct {
	Session *Session
	Status  Status
	Code    int
}

// Failed reports whether the result carries a failure.
func (r Result) Failed() bool { return r.Status != StatusOK }

func newResult(s *Session, code int) Result {
	status := StatusOK
	if code != CodeOK {
		status = StatusFailed
	}
	return Result{Session: s, Status: status, Code: code}
}

// resultFromError derives the completion result for an async outcome. A
// TransportError contributes its platform code; any other failure maps to
// CodeUnknown.
func resultFromError(s *Session, err error) Result {
	if err == nil {
		return newResult(s, CodeOK)
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		return newResult(s, terr.Code)
	}
	return newResult(s, CodeUnknown)
}

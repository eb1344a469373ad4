package wsess

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wsess/internal/testutil/testlog"
)

func TestConnectOpensSessionAndRecordsNegotiation(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer abc123")
	headers.Set("Sec-WebSocket-Protocol", "sneaky")
	headers["SEC-WEBSOCKET-PROTOCOL"] = []string{"sneakier"}
	headers["x-custom"] = []string{"one", "two"}

	op, err := s.Connect(context.Background(), "wss://example.test/chat", "chat, superchat", headers)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	res := waitResult(t, op)
	if res.Failed() {
		t.Fatalf("connect failed: status=%v code=%d", res.Status, res.Code)
	}
	if res.Status != StatusOK || res.Code != CodeOK {
		t.Fatalf("result = {%v %d}, want {%v %d}", res.Status, res.Code, StatusOK, CodeOK)
	}
	if res.Session != s {
		t.Fatalf("result carries wrong session")
	}
	if got := s.State(); got != StateOpen {
		t.Fatalf("state = %v, want %v", got, StateOpen)
	}

	wantProtos := []string{"chat", "superchat"}
	gotProtos := ft.recordedProtocols()
	if len(gotProtos) != len(wantProtos) {
		t.Fatalf("protocols = %v, want %v", gotProtos, wantProtos)
	}
	for i := range wantProtos {
		if gotProtos[i] != wantProtos[i] {
			t.Fatalf("protocols = %v, want %v", gotProtos, wantProtos)
		}
	}

	// The session reports the same parsed offer it handed the transport.
	offered := s.Subprotocols()
	if len(offered) != len(wantProtos) || offered[0] != wantProtos[0] || offered[1] != wantProtos[1] {
		t.Fatalf("offered = %v, want %v", offered, wantProtos)
	}

	hdrs := ft.recordedHeaders()
	if got := hdrs.Get("Authorization"); got != "Bearer abc123" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := hdrs.Values("x-custom"); len(got) != 2 {
		t.Fatalf("x-custom = %v, want two values", got)
	}
	for name := range hdrs {
		if strings.EqualFold(name, SubprotocolHeader) {
			t.Fatalf("reserved header %q leaked to the transport", name)
		}
	}

	recorded, err := s.ConnectResult()
	if err != nil {
		t.Fatalf("connect result: %v", err)
	}
	if recorded.Status != StatusOK {
		t.Fatalf("recorded status = %v, want %v", recorded.Status, StatusOK)
	}
}

func TestConnectRejectsBadArguments(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	if _, err := s.Connect(context.Background(), "", "", nil); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("empty address error = %v, want %v", err, ErrAddressRequired)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after rejected connect = %v, want %v", got, StateIdle)
	}

	var detached Session
	if _, err := detached.Connect(context.Background(), "wss://example.test", "", nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("detached session error = %v, want %v", err, ErrNotReady)
	}
}

func TestConnectRefusedWhileOpen(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	c := newTestClient(t, func() Transport { return ft })
	s := openSession(t, c, "wss://example.test/chat")

	if _, err := s.Connect(context.Background(), "wss://example.test/other", "", nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("connect while open error = %v, want %v", err, ErrInvalidState)
	}
	if got := s.State(); got != StateOpen {
		t.Fatalf("state = %v, want %v", got, StateOpen)
	}
}

func TestConnectFailureMarksSessionFailed(t *testing.T) {
	testlog.Start(t)

	failing := newFakeTransport()
	failing.openErr = &TransportError{Code: CloseAbnormal, Err: errors.New("connection refused")}
	working := newFakeTransport()

	attempts := []*fakeTransport{failing, working}
	next := 0
	c := newTestClient(t, func() Transport {
		tr := attempts[next]
		if next < len(attempts)-1 {
			next++
		}
		return tr
	})
	s := c.NewSession()

	op, err := s.Connect(context.Background(), "wss://example.test/chat", "", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	res := waitResult(t, op)
	if !res.Failed() {
		t.Fatalf("result = {%v %d}, want a failure", res.Status, res.Code)
	}
	if res.Code != CloseAbnormal {
		t.Fatalf("code = %d, want %d", res.Code, CloseAbnormal)
	}
	if got := s.State(); got != StateFailed {
		t.Fatalf("state = %v, want %v", got, StateFailed)
	}

	if _, err := s.Send("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send on failed session error = %v, want %v", err, ErrNotConnected)
	}

	// A failed session may dial again with a fresh transport.
	op2, err := s.Connect(context.Background(), "wss://example.test/chat", "chat", nil)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if res := waitResult(t, op2); res.Failed() {
		t.Fatalf("reconnect failed: status=%v code=%d", res.Status, res.Code)
	}
	if got := s.State(); got != StateOpen {
		t.Fatalf("state after reconnect = %v, want %v", got, StateOpen)
	}

	msgOp, err := s.Send("hello")
	if err != nil {
		t.Fatalf("send after reconnect: %v", err)
	}
	if res := waitResult(t, msgOp); res.Failed() {
		t.Fatalf("send failed: status=%v code=%d", res.Status, res.Code)
	}
	if sent := working.writer.sentPayloads(); len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("sent = %v, want [hello]", sent)
	}
}

func TestConnectResultLifecycle(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	ft.openGate = make(chan struct{})
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	if _, err := s.ConnectResult(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("result before connect error = %v, want %v", err, ErrInvalidState)
	}

	op, err := s.Connect(context.Background(), "wss://example.test/chat", "", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state = %v, want %v", got, StateConnecting)
	}
	if _, err := s.ConnectResult(); !errors.Is(err, ErrPending) {
		t.Fatalf("result mid-dial error = %v, want %v", err, ErrPending)
	}
	if _, err := s.Connect(context.Background(), "wss://example.test/chat", "", nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second connect error = %v, want %v", err, ErrInvalidState)
	}

	close(ft.openGate)
	if res := waitResult(t, op); res.Failed() {
		t.Fatalf("connect failed: status=%v code=%d", res.Status, res.Code)
	}
	if _, err := s.ConnectResult(); err != nil {
		t.Fatalf("result after open: %v", err)
	}
}

func TestConnectHonorsContext(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	ft.openGate = make(chan struct{})
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	op, err := s.Connect(ctx, "wss://example.test/chat", "", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	res := waitResult(t, op)
	if !res.Failed() {
		t.Fatalf("result = {%v %d}, want a failure", res.Status, res.Code)
	}
	if got := s.State(); got != StateFailed {
		t.Fatalf("state = %v, want %v", got, StateFailed)
	}
}

func TestDisconnectRequiresLiveTransport(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	if err := s.Disconnect(CloseNormal); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("disconnect on idle session error = %v, want %v", err, ErrNoTransport)
	}

	var detached Session
	if err := detached.Disconnect(CloseNormal); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("disconnect on detached session error = %v, want %v", err, ErrNoTransport)
	}
}

func TestDisconnectFromOpen(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	rec := newRecorder()
	c := newTestClient(t, func() Transport { return ft })
	if err := c.Subscribe(rec); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	s := openSession(t, c, "wss://example.test/chat")

	if err := s.Disconnect(CloseNormal); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if got := s.State(); got != StateClosing {
		t.Fatalf("state = %v, want %v", got, StateClosing)
	}
	if closed, code := ft.closedWith(); !closed || code != CloseNormal {
		t.Fatalf("transport close = (%v, %d), want (true, %d)", closed, code, CloseNormal)
	}

	// A second disconnect finds the session already closing.
	if err := s.Disconnect(CloseNormal); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second disconnect error = %v, want %v", err, ErrInvalidState)
	}

	ft.emitClosed(CloseNormal)
	select {
	case code := <-rec.closes:
		if code != CloseNormal {
			t.Fatalf("close code = %d, want %d", code, CloseNormal)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the close notification")
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %v, want %v", got, StateClosed)
	}

	if err := s.Disconnect(CloseNormal); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("disconnect after close error = %v, want %v", err, ErrNoTransport)
	}
}

func TestDisconnectAbortsPendingDial(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	ft.openGate = make(chan struct{})
	c := newTestClient(t, func() Transport { return ft })
	s := c.NewSession()

	op, err := s.Connect(context.Background(), "wss://example.test/chat", "", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state = %v, want %v", got, StateConnecting)
	}

	if err := s.Disconnect(CloseGoingAway); err != nil {
		t.Fatalf("disconnect during dial: %v", err)
	}
	res := waitResult(t, op)
	if !res.Failed() {
		t.Fatalf("aborted dial result = {%v %d}, want a failure", res.Status, res.Code)
	}
	if closed, code := ft.closedWith(); !closed || code != CloseGoingAway {
		t.Fatalf("transport close = (%v, %d), want (true, %d)", closed, code, CloseGoingAway)
	}
	if got := s.State(); got != StateFailed {
		t.Fatalf("state after aborted dial = %v, want %v", got, StateFailed)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	testlog.Start(t)

	ft := newFakeTransport()
	c := newTestClient(t, func() Transport { return ft })

	seen := make(map[uint64]bool)
	for i := 0; i < 8; i++ {
		s := c.NewSession()
		if seen[s.ID()] {
			t.Fatalf("duplicate session id %d", s.ID())
		}
		seen[s.ID()] = true
	}
}

package wsess

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

var errFakeClosed = errors.New("fake transport closed")

// flushCall is one transmission handed to the fake writer, waiting for the
// test to script its outcome.
type flushCall struct {
	payload []byte
	reply   chan error
}

// fakeWriter scripts the MessageWriter half of the pipeline. In auto mode
// every flush succeeds immediately; in manual mode each flush blocks until
// the test answers it through calls. Write observes overlapping
// transmissions so tests can assert the single-flight invariant.
type fakeWriter struct {
	mu         sync.Mutex
	staged     []byte
	sent       []string
	writeErr   error
	closed     bool
	closeCode  int
	active     int
	violations int
	auto       bool
	autoDelay  time.Duration
	calls      chan flushCall
}

func newFakeWriter(auto bool) *fakeWriter {
	return &fakeWriter{auto: auto, calls: make(chan flushCall, 16)}
}

func (w *fakeWriter) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &TransportError{Code: w.closeCode, Err: errFakeClosed}
	}
	if w.writeErr != nil {
		return w.writeErr
	}
	if w.active > 0 {
		w.violations++
	}
	w.staged = append(w.staged, p...)
	return nil
}

func (w *fakeWriter) Flush() error {
	w.mu.Lock()
	if w.closed {
		code := w.closeCode
		w.mu.Unlock()
		return &TransportError{Code: code, Err: errFakeClosed}
	}
	payload := w.staged
	w.staged = nil
	w.active++
	if w.active > 1 {
		w.violations++
	}
	auto := w.auto
	delay := w.autoDelay
	w.mu.Unlock()

	var err error
	if auto {
		if delay > 0 {
			time.Sleep(delay)
		}
	} else {
		call := flushCall{payload: payload, reply: make(chan error, 1)}
		w.calls <- call
		err = <-call.reply
	}

	w.mu.Lock()
	w.active--
	if err == nil {
		w.sent = append(w.sent, string(payload))
	}
	w.mu.Unlock()
	return err
}

func (w *fakeWriter) shutdown(code int) {
	w.mu.Lock()
	w.closed = true
	w.closeCode = code
	w.mu.Unlock()
}

func (w *fakeWriter) setWriteErr(err error) {
	w.mu.Lock()
	w.writeErr = err
	w.mu.Unlock()
}

func (w *fakeWriter) sentPayloads() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.sent...)
}

func (w *fakeWriter) violationCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.violations
}

func (w *fakeWriter) nextFlush(t *testing.T) flushCall {
	t.Helper()
	select {
	case call := <-w.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a flush")
		return flushCall{}
	}
}

func (w *fakeWriter) expectNoFlush(t *testing.T) {
	t.Helper()
	select {
	case call := <-w.calls:
		t.Fatalf("unexpected flush of %q", call.payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// fakeTransport scripts the Transport side of a connect attempt.
type fakeTransport struct {
	mu        sync.Mutex
	address   string
	headers   http.Header
	protocols []string
	ev        Events
	writer    *fakeWriter

	openErr   error
	openGate  chan struct{}
	writerErr error
	closed    bool
	closeCode int
	closedCh  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		headers:  make(http.Header),
		writer:   newFakeWriter(true),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeTransport) SetHeader(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers.Add(name, value)
}

func (f *fakeTransport) AppendProtocol(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.protocols = append(f.protocols, name)
}

func (f *fakeTransport) Subscribe(ev Events) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ev = ev
}

func (f *fakeTransport) Open(ctx context.Context, address string) error {
	f.mu.Lock()
	f.address = address
	gate := f.openGate
	openErr := f.openErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &TransportError{Code: CodeUnknown, Err: ctx.Err()}
		case <-f.closedCh:
			return &TransportError{Code: CodeUnknown, Err: errFakeClosed}
		}
	}
	return openErr
}

func (f *fakeTransport) Writer() (MessageWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writerErr != nil {
		return nil, f.writerErr
	}
	return f.writer, nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	alreadyClosed := f.closed
	f.closed = true
	f.closeCode = code
	f.mu.Unlock()

	f.writer.shutdown(code)
	if !alreadyClosed {
		close(f.closedCh)
	}
	return nil
}

func (f *fakeTransport) emitMessage(payload []byte) {
	f.mu.Lock()
	ev := f.ev
	f.mu.Unlock()
	if ev != nil {
		ev.MessageReceived(payload)
	}
}

func (f *fakeTransport) emitClosed(code int) {
	f.mu.Lock()
	ev := f.ev
	f.mu.Unlock()
	if ev != nil {
		ev.Closed(code)
	}
}

func (f *fakeTransport) recordedProtocols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.protocols...)
}

func (f *fakeTransport) recordedHeaders() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(http.Header, len(f.headers))
	for k, vs := range f.headers {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (f *fakeTransport) closedWith() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

// recorder collects subscriber callbacks for assertions.
type recorder struct {
	messages chan string
	closes   chan int
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan string, 16),
		closes:   make(chan int, 16),
	}
}

func (r *recorder) MessageReceived(s *Session, payload []byte) {
	r.messages <- string(payload)
}

func (r *recorder) SessionClosed(s *Session, code int) {
	r.closes <- code
}

func newTestClient(t *testing.T, factory TransportFactory) *Client {
	t.Helper()
	c, err := New(Config{NewTransport: factory})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			t.Fatalf("close client: %v", err)
		}
	})
	return c
}

func openSession(t *testing.T, c *Client, address string) *Session {
	t.Helper()
	s := c.NewSession()
	op, err := s.Connect(context.Background(), address, "", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if res := waitResult(t, op); res.Failed() {
		t.Fatalf("connect result: status=%v code=%d", res.Status, res.Code)
	}
	if got := s.State(); got != StateOpen {
		t.Fatalf("state after connect: %v", got)
	}
	return s
}

func waitResult(t *testing.T, op *Operation) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := op.Wait(ctx)
	if err != nil {
		t.Fatalf("wait for completion: %v", err)
	}
	return res
}

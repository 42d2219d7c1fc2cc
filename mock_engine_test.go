package quicpipe

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

var _ Engine = (*MockEngine)(nil)

// MockEngine is a mock implementation of Engine using testify/mock.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) AddBytes(id StreamID, p []byte, fin bool) error {
	args := m.Called(id, p, fin)
	return args.Error(0)
}

func (m *MockEngine) ResetStream(id StreamID, code uint64) {
	m.Called(id, code)
}

func (m *MockEngine) StopSending(id StreamID, code uint64) {
	m.Called(id, code)
}

// recordingEngine captures engine calls in order, for assertions on
// call sequences where mock expectations would be awkward.
type recordingEngine struct {
	mu    sync.Mutex
	calls []engineCall

	addBytesErr error
}

type engineCall struct {
	op      string // "add_bytes", "reset_stream", "stop_sending"
	id      StreamID
	payload []byte
	fin     bool
	code    uint64
}

func (e *recordingEngine) AddBytes(id StreamID, p []byte, fin bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.addBytesErr != nil {
		return e.addBytesErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	e.calls = append(e.calls, engineCall{op: "add_bytes", id: id, payload: buf, fin: fin})
	return nil
}

func (e *recordingEngine) ResetStream(id StreamID, code uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, engineCall{op: "reset_stream", id: id, code: code})
}

func (e *recordingEngine) StopSending(id StreamID, code uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, engineCall{op: "stop_sending", id: id, code: code})
}

func (e *recordingEngine) snapshot() []engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]engineCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

func (e *recordingEngine) ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := make([]string, len(e.calls))
	for i, c := range e.calls {
		ops[i] = c.op
	}
	return ops
}

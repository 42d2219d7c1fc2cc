package quicpipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// newStreamPair creates a consumer handle and its engine adapter.
// The two halves share nothing but the internal message queues.
func newStreamPair(id StreamID, engine Engine, localAddr, remoteAddr net.Addr, isClientConn bool, logger *slog.Logger) (*Stream, *Context) {
	inbound := newMessageQueue()
	outbound := newMessageQueue()

	stream := &Stream{
		inbound:    inbound,
		outbound:   outbound,
		id:         id,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
	}
	sctx := newContext(inbound, outbound, id, engine, isClientConn, logger)

	return stream, sctx
}

// Stream is the consumer-facing handle of a stream pair. It has no
// access to the engine: everything it does travels over the internal
// queues to the paired Context.
//
// Receive and Read must not be called concurrently with each other.
type Stream struct {
	inbound  *messageQueue
	outbound *messageQueue

	id         StreamID
	localAddr  net.Addr
	remoteAddr net.Addr

	mu     sync.Mutex
	reset  bool
	done   bool
	closed bool

	readBuf []byte
}

// StreamID returns the stream's identifier.
func (s *Stream) StreamID() StreamID {
	return s.id
}

// Type returns whether the stream is unidirectional or bidirectional.
func (s *Stream) Type() Type {
	return s.id.Type()
}

// LocalAddr returns the local address of the owning connection.
func (s *Stream) LocalAddr() net.Addr {
	return s.localAddr
}

// RemoteAddr returns the peer address of the owning connection.
func (s *Stream) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// IsReset reports whether the stream ended because of a reset rather
// than a graceful close. It never reverts to false once set.
func (s *Stream) IsReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset
}

// Receive returns the next inbound chunk. It returns io.EOF once the
// stream has ended, whether by graceful close, reset (see IsReset) or
// connection teardown. A connection failure is returned exactly once,
// then subsequent calls return io.EOF.
func (s *Stream) Receive(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done {
			return nil, io.EOF
		}

		m, ok := s.inbound.pop()
		if ok {
			switch m.kind {
			case msgRecvData:
				return m.payload, nil
			case msgClose:
				s.finish(false)
				return nil, io.EOF
			case msgReset:
				s.finish(true)
				return nil, io.EOF
			case msgError:
				s.finish(false)
				return nil, m.err
			default:
				panic(fmt.Sprintf("quicpipe: %s message on consumer side of stream %d", m.kind, s.id))
			}
		}

		closed, _ := s.inbound.state()
		if closed {
			s.finish(false)
			return nil, io.EOF
		}

		select {
		case <-s.inbound.wait():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Stream) finish(reset bool) {
	s.mu.Lock()
	s.done = true
	if reset {
		s.reset = true
	}
	s.mu.Unlock()
}

// Read implements io.Reader over Receive, carrying partially consumed
// chunks across calls.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		chunk, err := s.Receive(context.Background())
		if err != nil {
			return 0, err
		}
		s.readBuf = chunk
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Send enqueues p for delivery to the peer. The stream takes ownership
// of p; callers must not modify it afterwards. Send never blocks. If
// the counterpart has terminated, the returned *SendError carries p
// back so the caller can recover the unsent bytes.
func (s *Stream) Send(p []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &SendError{Payload: p, Err: ErrClosed}
	}

	if err := s.outbound.push(message{kind: msgSendData, payload: p}); err != nil {
		return &SendError{Payload: p, Err: err}
	}
	return nil
}

// Write implements io.Writer. Unlike Send it copies p, so the caller
// may reuse the buffer.
func (s *Stream) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := s.Send(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Reset aborts the stream. Reset is best effort: if the counterpart is
// already gone the error reports that, and nothing panics.
func (s *Stream) Reset() error {
	if err := s.outbound.push(message{kind: msgReset}); err != nil {
		return fmt.Errorf("reset stream %d: %w", s.id, err)
	}
	return nil
}

// Close signals graceful shutdown of the send side. It never blocks
// and tolerates an already-gone counterpart; the connection may have
// terminated first, which is expected rather than exceptional.
// After Close, Send fails with ErrClosed.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.outbound.push(message{kind: msgClose})
	return nil
}

package quicpipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

func newContext(inbound, outbound *messageQueue, id StreamID, engine Engine, isClientConn bool, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Context{
		inbound:      inbound,
		outbound:     outbound,
		id:           id,
		engine:       engine,
		isClientConn: isClientConn,
		logger:       logger.With("stream_id", uint64(id)),
	}
}

// Context is the engine-facing adapter of a stream pair. It owns the
// engine handle for its stream: every engine call happens inside Run,
// on the single goroutine the connection driver dedicates to it. The
// engine's callbacks (OnReceive, OnConnectionError, OnConnectionClose)
// never block; they only classify events and enqueue messages.
type Context struct {
	inbound  *messageQueue // to the consumer
	outbound *messageQueue // from the consumer

	id           StreamID
	engine       Engine
	isClientConn bool
	logger       *slog.Logger

	mu          sync.Mutex
	finished    bool
	stopSending bool
	dataSent    bool
}

// StreamID returns the identifier of the stream this adapter serves.
func (c *Context) StreamID() StreamID {
	return c.id
}

// Run drives the adapter until both directions reach a terminal state:
// the send side finished and inbound delivery stopped. It drains the
// currently ready portion of the consumer's queue, emits the matching
// engine calls, and waits for more work. Run returns nil on clean
// termination and the connection's error if the connection failed.
func (c *Context) Run(ctx context.Context) error {
	for {
		for {
			m, ok := c.outbound.pop()
			if !ok {
				break
			}
			switch m.kind {
			case msgSendData:
				if err := c.sendData(m.payload); err != nil {
					return err
				}
			case msgReset:
				c.resetStream()
			case msgClose:
				c.close()
				return nil
			case msgError:
				// errors travel on the inbound direction; drained only
			default:
				panic(fmt.Sprintf("quicpipe: %s message on engine side of stream %d", m.kind, c.id))
			}
		}

		closed, err := c.outbound.state()
		if err != nil {
			return err
		}
		if closed && c.terminal() {
			return nil
		}

		select {
		case <-c.outbound.wait():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnReceive is the engine's data callback. Payload bytes are copied,
// so the engine may reuse its buffer.
func (c *Context) OnReceive(p []byte, ev Event) {
	if len(p) > 0 {
		c.mu.Lock()
		finished := c.finished
		c.mu.Unlock()
		if finished {
			// a peer or engine protocol violation; drop with a diagnostic
			c.logger.Warn("data received after stream finished", "len", len(p))
		} else {
			buf := make([]byte, len(p))
			copy(buf, p)
			_ = c.inbound.push(message{kind: msgRecvData, payload: buf})
		}
	}

	switch ev {
	case EventReset:
		c.mu.Lock()
		c.finished = true
		c.mu.Unlock()
		_ = c.inbound.push(message{kind: msgReset})
	case EventStopSending:
		c.mu.Lock()
		c.stopSending = true
		c.mu.Unlock()
		c.outbound.close()
	case EventFin:
		_ = c.inbound.push(message{kind: msgClose})
		c.mu.Lock()
		c.finished = true
		c.mu.Unlock()
	}

	// wake Run for its termination check
	c.outbound.signal()
}

// OnConnectionError propagates a connection-level failure into both
// directions: the consumer observes it on its next Receive, and any
// pending or future Send fails with the same cause.
func (c *Context) OnConnectionError(err error) {
	cerr := &ConnectionError{Err: err}
	_ = c.inbound.push(message{kind: msgError, err: cerr})
	c.inbound.close()
	c.outbound.fail(cerr)
}

// OnConnectionClose terminates the stream on connection teardown.
// Teardown wins over stream-local state: the consumer's next Receive
// ends the sequence regardless of anything still queued.
func (c *Context) OnConnectionClose() {
	c.inbound.shutdown()
	c.outbound.shutdown()
	c.mu.Lock()
	c.finished = true
	c.stopSending = true
	c.mu.Unlock()
	c.outbound.signal()
}

func (c *Context) sendData(p []byte) error {
	if c.id.IsUnidirectional() && !c.isUnidirectionalSendAllowed() {
		// a usage mistake, not a wire-level fault
		c.logger.Error("refusing write to an incoming unidirectional stream")
		return nil
	}

	c.mu.Lock()
	if c.stopSending {
		c.mu.Unlock()
		return nil
	}
	if len(p) > 0 {
		c.dataSent = true
	}
	c.mu.Unlock()

	if err := c.engine.AddBytes(c.id, p, false); err != nil {
		cerr := &ConnectionError{Err: err}
		_ = c.inbound.push(message{kind: msgError, err: cerr})
		c.inbound.close()
		c.outbound.fail(cerr)
		c.mu.Lock()
		c.finished = true
		c.stopSending = true
		c.mu.Unlock()
		return cerr
	}
	return nil
}

// close runs the graceful shutdown sequence: stop inbound delivery
// where the stream can receive, then either fin the send side (if any
// data was ever sent) or reset it (an empty stream cannot be cleanly
// fin-closed). Closing an already-terminal adapter makes no further
// engine calls.
func (c *Context) close() {
	c.mu.Lock()
	if c.finished && c.stopSending {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.stopSending = true
	dataSent := c.dataSent
	c.mu.Unlock()

	c.outbound.close()

	if !c.id.IsUnidirectional() || !c.isUnidirectionalSendAllowed() {
		c.engine.StopSending(c.id, 0)
	}

	if dataSent {
		if err := c.engine.AddBytes(c.id, nil, true); err != nil {
			c.logger.Warn("fin write failed", "error", err)
		}
	} else {
		c.engine.ResetStream(c.id, 0)
	}
}

func (c *Context) resetStream() {
	c.mu.Lock()
	if c.finished && c.stopSending {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.stopSending = true
	c.mu.Unlock()

	c.outbound.close()
	c.engine.ResetStream(c.id, 0)
}

func (c *Context) terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished && c.stopSending
}

// isUnidirectionalSendAllowed reports whether the local side is the
// sending side of a unidirectional stream: the stream's initiator bit
// must match the connection's perspective.
func (c *Context) isUnidirectionalSendAllowed() bool {
	return c.id.IsClientInitiated() == c.isClientConn
}

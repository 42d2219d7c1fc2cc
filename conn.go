package quicpipe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
)

// NewConn builds the per-connection driver for an engine. isClient
// states whether the local side initiated the connection; it decides
// stream-id allocation and the send permission of unidirectional
// streams.
func NewConn(engine Engine, localAddr, remoteAddr net.Addr, isClient bool, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Conn{
		engine:     engine,
		isClient:   isClient,
		logger:     logger,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
		runCtx:     runCtx,
		cancel:     cancel,
		contexts:   make(map[StreamID]*Context),
		accepts: &acceptQueue{
			notify: make(chan struct{}, 1),
		},
	}
}

// Conn multiplexes stream pairs over a single engine connection. It
// owns every Context, drives each one on its own goroutine, and routes
// engine callbacks to the right pair by stream id. Peer-initiated
// streams surface through AcceptStream.
type Conn struct {
	engine   Engine
	isClient bool
	logger   *slog.Logger

	localAddr  net.Addr
	remoteAddr net.Addr

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	contexts map[StreamID]*Context
	nextBidi uint64
	nextUni  uint64
	closed   bool

	accepts *acceptQueue
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr returns the peer address of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// OpenStream opens a locally-initiated bidirectional stream.
func (c *Conn) OpenStream() (*Stream, error) {
	return c.open(false)
}

// OpenUniStream opens a locally-initiated unidirectional send stream.
func (c *Conn) OpenUniStream() (*Stream, error) {
	return c.open(true)
}

func (c *Conn) open(unidirectional bool) (*Stream, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var id StreamID
	if opener, ok := c.engine.(StreamOpener); ok {
		var err error
		id, err = opener.OpenStream(unidirectional)
		if err != nil {
			return nil, err
		}
	} else {
		id = c.allocStreamID(unidirectional)
	}

	stream, _ := c.register(id)
	return stream, nil
}

// allocStreamID hands out local stream ids in QUIC numbering: the
// sequence number shifted past the two tag bits.
func (c *Conn) allocStreamID(unidirectional bool) StreamID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var seq uint64
	if unidirectional {
		seq = c.nextUni
		c.nextUni++
	} else {
		seq = c.nextBidi
		c.nextBidi++
	}
	id := StreamID(seq << 2)
	if unidirectional {
		id |= 2
	}
	if !c.isClient {
		id |= 1
	}
	return id
}

func (c *Conn) register(id StreamID) (*Stream, *Context) {
	stream, sctx := newStreamPair(id, c.engine, c.localAddr, c.remoteAddr, c.isClient, c.logger)
	c.mu.Lock()
	c.contexts[id] = sctx
	c.mu.Unlock()
	c.runContext(id, sctx)
	return stream, sctx
}

// runContext supervises the adapter's task; its completion frees the
// stream-id slot.
func (c *Conn) runContext(id StreamID, sctx *Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := sctx.Run(c.runCtx); err != nil {
			c.logger.Debug("stream task ended with error", "stream_id", uint64(id), "error", err)
		}
		c.mu.Lock()
		delete(c.contexts, id)
		c.mu.Unlock()
	}()
}

// AcceptStream returns the next peer-initiated stream.
func (c *Conn) AcceptStream(ctx context.Context) (*Stream, error) {
	for {
		if s, ok := c.accepts.pop(); ok {
			return s, nil
		}
		closed, err := c.accepts.state()
		if closed {
			if err != nil {
				return nil, err
			}
			return nil, ErrClosed
		}
		select {
		case <-c.accepts.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HandleEvent routes an engine callback to the stream it belongs to.
// First contact with a peer-initiated id creates the pair and queues
// its consumer handle for AcceptStream.
func (c *Conn) HandleEvent(id StreamID, p []byte, ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	sctx, ok := c.contexts[id]
	c.mu.Unlock()

	if !ok {
		if id.IsClientInitiated() == c.isClient {
			// a callback for a local stream that already terminated
			c.logger.Debug("event for unknown local stream dropped",
				"stream_id", uint64(id), "event", ev.String())
			return
		}
		var stream *Stream
		stream, sctx = c.acceptRemote(id)
		if stream != nil {
			c.accepts.push(stream)
		}
	}

	sctx.OnReceive(p, ev)
}

// acceptRemote creates the pair for a peer-initiated id, exactly once.
// The returned stream is nil when another callback got there first.
func (c *Conn) acceptRemote(id StreamID) (*Stream, *Context) {
	c.mu.Lock()
	if sctx, ok := c.contexts[id]; ok {
		c.mu.Unlock()
		return nil, sctx
	}
	stream, sctx := newStreamPair(id, c.engine, c.localAddr, c.remoteAddr, c.isClient, c.logger)
	c.contexts[id] = sctx
	c.mu.Unlock()
	c.runContext(id, sctx)
	return stream, sctx
}

// HandleConnectionError broadcasts a fatal connection failure into
// every live stream pair, so no stream silently hangs after its
// connection has failed.
func (c *Conn) HandleConnectionError(err error) {
	ctxs := c.teardown()
	if ctxs == nil {
		return
	}
	for _, sctx := range ctxs {
		sctx.OnConnectionError(err)
	}
	c.accepts.fail(&ConnectionError{Err: err})
	c.cancel()
}

// HandleConnectionClose terminates every live stream pair gracefully.
func (c *Conn) HandleConnectionClose() {
	ctxs := c.teardown()
	if ctxs == nil {
		return
	}
	for _, sctx := range ctxs {
		sctx.OnConnectionClose()
	}
	c.accepts.close()
	c.cancel()
}

// teardown marks the connection closed and returns the live adapters,
// or nil if it was already closed.
func (c *Conn) teardown() []*Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	ctxs := make([]*Context, 0, len(c.contexts))
	for _, sctx := range c.contexts {
		ctxs = append(ctxs, sctx)
	}
	return ctxs
}

// CloseWithError closes the underlying connection (when the engine
// supports it) and every stream belonging to it.
func (c *Conn) CloseWithError(code uint64, msg string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}

	var err error
	if closer, ok := c.engine.(ConnectionCloser); ok {
		err = closer.CloseWithError(code, msg)
	}
	c.HandleConnectionClose()
	return err
}

// Close closes the connection with error code zero.
func (c *Conn) Close() error {
	return c.CloseWithError(0, "")
}

// Wait blocks until every stream adapter has terminated.
func (c *Conn) Wait() {
	c.wg.Wait()
}

// acceptQueue buffers peer-initiated streams until AcceptStream picks
// them up, in the same unbounded FIFO shape as the message queues.
type acceptQueue struct {
	mu      sync.Mutex
	pending []*Stream
	notify  chan struct{}
	closed  bool
	err     error
}

func (q *acceptQueue) push(s *Stream) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, s)
	q.mu.Unlock()
	q.signal()
}

func (q *acceptQueue) pop() (*Stream, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	s := q.pending[0]
	q.pending = q.pending[1:]
	return s, true
}

func (q *acceptQueue) state() (closed bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed, q.err
}

func (q *acceptQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *acceptQueue) fail(err error) {
	q.mu.Lock()
	q.closed = true
	q.err = err
	q.mu.Unlock()
	q.signal()
}

func (q *acceptQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

package quicgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/OkutaniDaichi0106/quicpipe"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

const readBufferSize = 32 * 1024

var (
	_ quicpipe.Engine           = (*Engine)(nil)
	_ quicpipe.StreamOpener     = (*Engine)(nil)
	_ quicpipe.ConnectionCloser = (*Engine)(nil)
)

// Wrap drives a quic-go connection as a quicpipe.Conn. isClient states
// whether the local side dialed the connection.
func Wrap(conn quicgo_quicgo.Connection, isClient bool, logger *slog.Logger) *quicpipe.Conn {
	e := newEngine(conn, logger)
	pc := quicpipe.NewConn(e, conn.LocalAddr(), conn.RemoteAddr(), isClient, logger)
	e.start(pc)
	return pc
}

func newEngine(conn quicgo_quicgo.Connection, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		conn:   conn,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		sends:  make(map[quicpipe.StreamID]quicgo_quicgo.SendStream),
		recvs:  make(map[quicpipe.StreamID]quicgo_quicgo.ReceiveStream),
	}
}

// Engine implements quicpipe.Engine over a quic-go connection. The
// stream objects quic-go hands out stay private to the engine; the
// core only ever sees stream ids, bytes and events.
type Engine struct {
	conn   quicgo_quicgo.Connection
	logger *slog.Logger
	target *quicpipe.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	sends map[quicpipe.StreamID]quicgo_quicgo.SendStream
	recvs map[quicpipe.StreamID]quicgo_quicgo.ReceiveStream
}

func (e *Engine) start(target *quicpipe.Conn) {
	e.target = target
	e.wg.Add(3)
	go e.acceptBiStreams()
	go e.acceptUniStreams()
	go e.superviseConnection()
}

// AddBytes writes payload bytes to the stream; fin closes the send
// side after the final write. A stream-level write failure means the
// peer stopped reading and surfaces as a stop-sending event rather
// than an error.
func (e *Engine) AddBytes(id quicpipe.StreamID, p []byte, fin bool) error {
	e.mu.Lock()
	ss, ok := e.sends[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("quicgo: unknown send stream %d", id)
	}

	if len(p) > 0 {
		if _, err := ss.Write(p); err != nil {
			var serr *quicgo_quicgo.StreamError
			if errors.As(err, &serr) {
				e.target.HandleEvent(id, nil, quicpipe.EventStopSending)
				return nil
			}
			return wrapError(err)
		}
	}

	if fin {
		err := ss.Close()
		e.dropSend(id)
		if err != nil {
			return wrapError(err)
		}
	}
	return nil
}

// ResetStream aborts the send side with the given application error
// code.
func (e *Engine) ResetStream(id quicpipe.StreamID, code uint64) {
	e.mu.Lock()
	ss, ok := e.sends[id]
	delete(e.sends, id)
	e.mu.Unlock()
	if ok {
		ss.CancelWrite(quicgo_quicgo.StreamErrorCode(code))
	}
}

// StopSending asks the peer to stop sending on the stream. The peer
// answers with a reset, which the read pump reports as usual.
func (e *Engine) StopSending(id quicpipe.StreamID, code uint64) {
	e.mu.Lock()
	rs, ok := e.recvs[id]
	e.mu.Unlock()
	if ok {
		rs.CancelRead(quicgo_quicgo.StreamErrorCode(code))
	}
}

// OpenStream opens a new local stream and returns the id quic-go
// assigned to it.
func (e *Engine) OpenStream(unidirectional bool) (quicpipe.StreamID, error) {
	if unidirectional {
		ss, err := e.conn.OpenUniStream()
		if err != nil {
			return 0, wrapError(err)
		}
		id := quicpipe.StreamID(ss.StreamID())
		e.mu.Lock()
		e.sends[id] = ss
		e.mu.Unlock()
		return id, nil
	}

	stream, err := e.conn.OpenStream()
	if err != nil {
		return 0, wrapError(err)
	}
	return e.track(stream, stream), nil
}

// CloseWithError closes the underlying connection.
func (e *Engine) CloseWithError(code uint64, msg string) error {
	e.cancel()
	return wrapError(e.conn.CloseWithError(quicgo_quicgo.ApplicationErrorCode(code), msg))
}

// track registers the halves of a stream and starts its read pump.
// Either half may be nil for unidirectional streams.
func (e *Engine) track(ss quicgo_quicgo.SendStream, rs quicgo_quicgo.ReceiveStream) quicpipe.StreamID {
	var id quicpipe.StreamID
	if ss != nil {
		id = quicpipe.StreamID(ss.StreamID())
	} else {
		id = quicpipe.StreamID(rs.StreamID())
	}

	e.mu.Lock()
	if ss != nil {
		e.sends[id] = ss
	}
	if rs != nil {
		e.recvs[id] = rs
	}
	e.mu.Unlock()

	if rs != nil {
		e.wg.Add(1)
		go e.readLoop(id, rs)
	}
	return id
}

func (e *Engine) acceptBiStreams() {
	defer e.wg.Done()
	for {
		stream, err := e.conn.AcceptStream(e.ctx)
		if err != nil {
			return
		}
		id := e.track(stream, stream)
		// announce the stream before any of its data arrives
		e.target.HandleEvent(id, nil, quicpipe.EventData)
	}
}

func (e *Engine) acceptUniStreams() {
	defer e.wg.Done()
	for {
		rs, err := e.conn.AcceptUniStream(e.ctx)
		if err != nil {
			return
		}
		id := e.track(nil, rs)
		e.target.HandleEvent(id, nil, quicpipe.EventData)
	}
}

// readLoop pumps inbound bytes into data callbacks and classifies the
// stream's end: a clean fin, a peer reset, or a connection failure
// left to the supervisor.
func (e *Engine) readLoop(id quicpipe.StreamID, rs quicgo_quicgo.ReceiveStream) {
	defer e.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := rs.Read(buf)
		if n > 0 {
			e.target.HandleEvent(id, buf[:n], quicpipe.EventData)
		}
		if err != nil {
			var serr *quicgo_quicgo.StreamError
			switch {
			case errors.As(err, &serr):
				e.target.HandleEvent(id, nil, quicpipe.EventReset)
			case errors.Is(err, io.EOF):
				e.target.HandleEvent(id, nil, quicpipe.EventFin)
			default:
				e.logger.Debug("read loop ended", "stream_id", uint64(id), "error", err)
			}
			e.dropRecv(id)
			return
		}
	}
}

// superviseConnection watches the connection's context and reports its
// termination once, as either a graceful close or an error broadcast.
func (e *Engine) superviseConnection() {
	defer e.wg.Done()
	connCtx := e.conn.Context()
	<-connCtx.Done()

	err := context.Cause(connCtx)
	var appErr *quicgo_quicgo.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == 0 {
		e.target.HandleConnectionClose()
	} else {
		e.target.HandleConnectionError(wrapError(err))
	}
	e.cancel()
}

func (e *Engine) dropSend(id quicpipe.StreamID) {
	e.mu.Lock()
	delete(e.sends, id)
	e.mu.Unlock()
}

func (e *Engine) dropRecv(id quicpipe.StreamID) {
	e.mu.Lock()
	delete(e.recvs, id)
	e.mu.Unlock()
}

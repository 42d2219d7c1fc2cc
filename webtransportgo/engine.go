package webtransportgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/OkutaniDaichi0106/quicpipe"
	"github.com/quic-go/webtransport-go"
)

const readBufferSize = 32 * 1024

var (
	_ quicpipe.Engine           = (*Engine)(nil)
	_ quicpipe.StreamOpener     = (*Engine)(nil)
	_ quicpipe.ConnectionCloser = (*Engine)(nil)
)

// Wrap drives a WebTransport session as a quicpipe.Conn. isClient
// states whether the local side dialed the session.
func Wrap(sess *webtransport.Session, isClient bool, logger *slog.Logger) *quicpipe.Conn {
	e := newEngine(sess, logger)
	pc := quicpipe.NewConn(e, sess.LocalAddr(), sess.RemoteAddr(), isClient, logger)
	e.start(pc)
	return pc
}

func newEngine(sess *webtransport.Session, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		sess:   sess,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		sends:  make(map[quicpipe.StreamID]webtransport.SendStream),
		recvs:  make(map[quicpipe.StreamID]webtransport.ReceiveStream),
	}
}

// Engine implements quicpipe.Engine over a WebTransport session: the
// same adapter surface as the quicgo engine, with the streams living
// inside an HTTP/3 session.
type Engine struct {
	sess   *webtransport.Session
	logger *slog.Logger
	target *quicpipe.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	sends map[quicpipe.StreamID]webtransport.SendStream
	recvs map[quicpipe.StreamID]webtransport.ReceiveStream
}

func (e *Engine) start(target *quicpipe.Conn) {
	e.target = target
	e.wg.Add(3)
	go e.acceptBiStreams()
	go e.acceptUniStreams()
	go e.superviseSession()
}

func (e *Engine) AddBytes(id quicpipe.StreamID, p []byte, fin bool) error {
	e.mu.Lock()
	ss, ok := e.sends[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("webtransportgo: unknown send stream %d", id)
	}

	if len(p) > 0 {
		if _, err := ss.Write(p); err != nil {
			var serr *webtransport.StreamError
			if errors.As(err, &serr) {
				e.target.HandleEvent(id, nil, quicpipe.EventStopSending)
				return nil
			}
			return err
		}
	}

	if fin {
		err := ss.Close()
		e.dropSend(id)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ResetStream(id quicpipe.StreamID, code uint64) {
	e.mu.Lock()
	ss, ok := e.sends[id]
	delete(e.sends, id)
	e.mu.Unlock()
	if ok {
		ss.CancelWrite(webtransport.StreamErrorCode(code))
	}
}

func (e *Engine) StopSending(id quicpipe.StreamID, code uint64) {
	e.mu.Lock()
	rs, ok := e.recvs[id]
	e.mu.Unlock()
	if ok {
		rs.CancelRead(webtransport.StreamErrorCode(code))
	}
}

func (e *Engine) OpenStream(unidirectional bool) (quicpipe.StreamID, error) {
	if unidirectional {
		ss, err := e.sess.OpenUniStream()
		if err != nil {
			return 0, err
		}
		id := quicpipe.StreamID(ss.StreamID())
		e.mu.Lock()
		e.sends[id] = ss
		e.mu.Unlock()
		return id, nil
	}

	stream, err := e.sess.OpenStream()
	if err != nil {
		return 0, err
	}
	return e.track(stream, stream), nil
}

func (e *Engine) CloseWithError(code uint64, msg string) error {
	e.cancel()
	return e.sess.CloseWithError(webtransport.SessionErrorCode(code), msg)
}

func (e *Engine) track(ss webtransport.SendStream, rs webtransport.ReceiveStream) quicpipe.StreamID {
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
		stream, err := e.sess.AcceptStream(e.ctx)
		if err != nil {
			return
		}
		id := e.track(stream, stream)
		e.target.HandleEvent(id, nil, quicpipe.EventData)
	}
}

func (e *Engine) acceptUniStreams() {
	defer e.wg.Done()
	for {
		rs, err := e.sess.AcceptUniStream(e.ctx)
		if err != nil {
			return
		}
		id := e.track(nil, rs)
		e.target.HandleEvent(id, nil, quicpipe.EventData)
	}
}

func (e *Engine) readLoop(id quicpipe.StreamID, rs webtransport.ReceiveStream) {
	defer e.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := rs.Read(buf)
		if n > 0 {
			e.target.HandleEvent(id, buf[:n], quicpipe.EventData)
		}
		if err != nil {
			var serr *webtransport.StreamError
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

func (e *Engine) superviseSession() {
	defer e.wg.Done()
	sessCtx := e.sess.Context()
	<-sessCtx.Done()

	err := context.Cause(sessCtx)
	if err == nil || errors.Is(err, context.Canceled) {
		e.target.HandleConnectionClose()
	} else {
		e.target.HandleConnectionError(err)
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

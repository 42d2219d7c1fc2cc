package quicpipe

// Engine is the transport component performing reliable, encrypted,
// congestion-controlled delivery of stream bytes. It is consumed
// through this narrow surface; everything else (loss detection, wire
// encoding, handshake) stays on the engine's side of the boundary.
//
// All Engine calls for a given stream are made from that stream's
// Context, on a single goroutine.
type Engine interface {
	// AddBytes hands payload bytes for the stream to the engine.
	// fin marks the end of the send side; a fin write may carry an
	// empty payload.
	AddBytes(id StreamID, p []byte, fin bool) error

	// ResetStream abruptly terminates the send side of the stream.
	ResetStream(id StreamID, code uint64)

	// StopSending asks the peer to stop sending on the stream.
	StopSending(id StreamID, code uint64)
}

// StreamOpener is implemented by engines that assign stream
// identifiers themselves. A Conn uses it when opening local streams;
// engines without it get ids allocated by the Conn.
type StreamOpener interface {
	OpenStream(unidirectional bool) (StreamID, error)
}

// ConnectionCloser is implemented by engines that can close the whole
// underlying connection with an application error code.
type ConnectionCloser interface {
	CloseWithError(code uint64, msg string) error
}

// Event classifies an engine callback for a stream.
type Event int

const (
	// EventData carries payload bytes only.
	EventData Event = iota
	// EventReset signals that the peer reset the stream.
	EventReset
	// EventStopSending signals that the peer asked us to stop sending.
	EventStopSending
	// EventFin signals that the peer finished its send side cleanly.
	EventFin
)

func (ev Event) String() string {
	switch ev {
	case EventData:
		return "data"
	case EventReset:
		return "stream_reset"
	case EventStopSending:
		return "stop_sending"
	case EventFin:
		return "stream_fin"
	default:
		return "unknown"
	}
}

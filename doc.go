// Package quicpipe exposes the streams of a multiplexed transport
// connection as consumer handles backed by a callback-driven engine.
//
// Every stream exists as a pair: a Stream, the consumer-facing handle
// implementing io.Reader and io.Writer semantics, and a Context, the
// engine-facing adapter that translates between the engine's
// synchronous callbacks and the consumer's asynchronous reads and
// writes. The two halves communicate only over internal message
// queues, so neither side can block the other.
//
// The engine itself (loss detection, congestion control, encryption,
// wire encoding) stays behind the Engine interface. The quicgo and
// webtransportgo subpackages provide engines backed by
// github.com/quic-go/quic-go and github.com/quic-go/webtransport-go.
package quicpipe

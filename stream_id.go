package quicpipe

// StreamID identifies a stream within a multiplexed connection.
// The two low bits encode the stream's initiator and directionality,
// following the QUIC numbering convention: bit 0 is the initiator
// (0 = client-initiated, 1 = server-initiated) and bit 1 is the
// directionality (0 = bidirectional, 1 = unidirectional).
type StreamID uint64

// Type reports whether a stream carries data in one or both directions.
type Type int

const (
	Bidirectional Type = iota
	Unidirectional
)

func (t Type) String() string {
	switch t {
	case Bidirectional:
		return "bidirectional"
	case Unidirectional:
		return "unidirectional"
	default:
		return "unknown"
	}
}

// IsClientInitiated reports whether the stream was opened by the
// client side of the connection.
func (id StreamID) IsClientInitiated() bool {
	return id&1 == 0
}

// IsUnidirectional reports whether the stream carries data in a single
// direction only.
func (id StreamID) IsUnidirectional() bool {
	return id&2 != 0
}

// Type returns the stream's directionality, derived from the id bits.
func (id StreamID) Type() Type {
	if id.IsUnidirectional() {
		return Unidirectional
	}
	return Bidirectional
}

package quicpipe

// messageKind tags the messages carried over the internal queues of a
// stream pair. Not every kind is legal in both directions: SendData
// only flows consumer to engine, RecvData only engine to consumer.
// A message of the wrong kind arriving at an endpoint is a defect in
// the channel discipline and panics.
type messageKind int

const (
	// msgClose signals graceful shutdown.
	msgClose messageKind = iota
	// msgRecvData carries an inbound payload chunk.
	msgRecvData
	// msgSendData carries an outbound payload chunk.
	msgSendData
	// msgError carries a propagated failure.
	msgError
	// msgReset signals abrupt termination.
	msgReset
)

func (k messageKind) String() string {
	switch k {
	case msgClose:
		return "Close"
	case msgRecvData:
		return "RecvData"
	case msgSendData:
		return "SendData"
	case msgError:
		return "Error"
	case msgReset:
		return "Reset"
	default:
		return "unknown"
	}
}

type message struct {
	kind    messageKind
	payload []byte
	err     error
}

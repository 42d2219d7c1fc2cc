package quicpipe

import (
	"errors"
	"fmt"
)

// ErrClosed indicates that the counterpart of a stream pair has
// already terminated, so the operation could not be delivered.
var ErrClosed = errors.New("quicpipe: closed")

// SendError is returned when an outbound chunk could not be enqueued.
// Payload holds the rejected bytes so the caller can retry or discard
// them deliberately.
type SendError struct {
	Payload []byte
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("quicpipe: send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ConnectionError carries a failure of the owning connection. It is
// fatal to every stream of that connection and is delivered both to
// consumers blocked on Receive and to senders.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("quicpipe: connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

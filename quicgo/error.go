package quicgo

import (
	"errors"

	"github.com/OkutaniDaichi0106/quicpipe"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

// wrapError lifts quic-go connection-level failures into
// quicpipe.ConnectionError so consumers can match them uniformly.
// Stream-level and unrecognized errors pass through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var (
		appErr       *quicgo_quicgo.ApplicationError
		transportErr *quicgo_quicgo.TransportError
		idleErr      *quicgo_quicgo.IdleTimeoutError
		hsErr        *quicgo_quicgo.HandshakeTimeoutError
		resetErr     *quicgo_quicgo.StatelessResetError
		vnErr        *quicgo_quicgo.VersionNegotiationError
	)
	switch {
	case errors.As(err, &appErr),
		errors.As(err, &transportErr),
		errors.As(err, &idleErr),
		errors.As(err, &hsErr),
		errors.As(err, &resetErr),
		errors.As(err, &vnErr):
		return &quicpipe.ConnectionError{Err: err}
	default:
		return err
	}
}

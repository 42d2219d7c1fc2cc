package quicgo

import (
	"context"
	"crypto/tls"
	"log/slog"

	"github.com/OkutaniDaichi0106/quicpipe"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

// DialAddr connects to addr and returns the stream-multiplexed
// connection, driven by a quic-go engine.
func DialAddr(ctx context.Context, addr string, tlsConfig *tls.Config, quicConfig *quicgo_quicgo.Config, logger *slog.Logger) (*quicpipe.Conn, error) {
	conn, err := quicgo_quicgo.DialAddr(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, wrapError(err)
	}
	return Wrap(conn, true, logger), nil
}

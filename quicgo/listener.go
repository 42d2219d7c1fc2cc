package quicgo

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"

	"github.com/OkutaniDaichi0106/quicpipe"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

// Listen binds a QUIC listener on addr. Accepted connections are
// driven as quicpipe.Conns with the server perspective.
func Listen(addr string, tlsConfig *tls.Config, quicConfig *quicgo_quicgo.Config, logger *slog.Logger) (*Listener, error) {
	ln, err := quicgo_quicgo.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Listener{ln: ln, logger: logger}, nil
}

type Listener struct {
	ln     *quicgo_quicgo.Listener
	logger *slog.Logger
}

// Accept waits for the next incoming connection.
func (l *Listener) Accept(ctx context.Context) (*quicpipe.Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return Wrap(conn, false, l.logger), nil
}

// Addr returns the local address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

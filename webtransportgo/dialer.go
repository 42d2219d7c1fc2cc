package webtransportgo

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/OkutaniDaichi0106/quicpipe"
	"github.com/quic-go/webtransport-go"
)

// Dial establishes a WebTransport session with the given URL and
// returns the stream-multiplexed connection.
func Dial(ctx context.Context, dialer *webtransport.Dialer, url string, header http.Header, logger *slog.Logger) (*quicpipe.Conn, error) {
	if dialer == nil {
		dialer = &webtransport.Dialer{}
	}
	_, sess, err := dialer.Dial(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return Wrap(sess, true, logger), nil
}

// Upgrade accepts a WebTransport session on the server side of an
// HTTP/3 request and returns the stream-multiplexed connection.
func Upgrade(s *webtransport.Server, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*quicpipe.Conn, error) {
	sess, err := s.Upgrade(w, r)
	if err != nil {
		return nil, err
	}
	return Wrap(sess, false, logger), nil
}

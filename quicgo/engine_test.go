package quicgo

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OkutaniDaichi0106/quicpipe"
	quicgo_quicgo "github.com/quic-go/quic-go"
)

const testALPN = "quicpipe-test"

func generateTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
		NextProtos: []string{testALPN},
	}
}

func clientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{testALPN},
	}
}

func TestEngine_EchoOverQUIC(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", generateTLSConfig(t), nil, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- func() error {
			conn, err := ln.Accept(ctx)
			if err != nil {
				return err
			}
			stream, err := conn.AcceptStream(ctx)
			if err != nil {
				return err
			}
			chunk, err := stream.Receive(ctx)
			if err != nil {
				return err
			}
			if err := stream.Send(chunk); err != nil {
				return err
			}
			if _, err := stream.Receive(ctx); !errors.Is(err, io.EOF) {
				return fmt.Errorf("expected client fin, got %v", err)
			}
			return stream.Close()
		}()
	}()

	conn, err := DialAddr(ctx, ln.Addr().String(), clientTLSConfig(), nil, nil)
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.OpenStream()
	require.NoError(t, err)

	require.NoError(t, stream.Send([]byte("hello")))

	echo := make([]byte, 5)
	_, err = io.ReadFull(stream, echo)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), echo)

	require.NoError(t, stream.Close())
	require.NoError(t, <-serverErr)
}

func TestEngine_UnidirectionalStream(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", generateTLSConfig(t), nil, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		streamType quicpipe.Type
		data       []byte
		err        error
	}
	serverRes := make(chan result, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			serverRes <- result{err: err}
			return
		}
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			serverRes <- result{err: err}
			return
		}
		data, err := io.ReadAll(stream)
		serverRes <- result{streamType: stream.Type(), data: data, err: err}
	}()

	conn, err := DialAddr(ctx, ln.Addr().String(), clientTLSConfig(), nil, nil)
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.OpenUniStream()
	require.NoError(t, err)
	assert.Equal(t, quicpipe.Unidirectional, stream.Type())

	require.NoError(t, stream.Send([]byte("one way")))
	require.NoError(t, stream.Close())

	select {
	case res := <-serverRes:
		require.NoError(t, res.err)
		assert.Equal(t, quicpipe.Unidirectional, res.streamType)
		assert.Equal(t, []byte("one way"), res.data)
	case <-ctx.Done():
		t.Fatal("server did not finish reading")
	}
}

func TestEngine_ResetPropagates(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", generateTLSConfig(t), nil, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		reset bool
		err   error
	}
	serverRes := make(chan result, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			serverRes <- result{err: err}
			return
		}
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			serverRes <- result{err: err}
			return
		}
		for {
			if _, err := stream.Receive(ctx); err != nil {
				if !errors.Is(err, io.EOF) {
					serverRes <- result{err: err}
					return
				}
				serverRes <- result{reset: stream.IsReset()}
				return
			}
		}
	}()

	conn, err := DialAddr(ctx, ln.Addr().String(), clientTLSConfig(), nil, nil)
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.OpenStream()
	require.NoError(t, err)
	require.NoError(t, stream.Send([]byte("about to abort")))
	require.NoError(t, stream.Reset())

	select {
	case res := <-serverRes:
		require.NoError(t, res.err)
		assert.True(t, res.reset, "server should observe the reset")
	case <-ctx.Done():
		t.Fatal("server did not observe stream end")
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))

	appErr := &quicgo_quicgo.ApplicationError{ErrorCode: 9, ErrorMessage: "gone"}
	var connErr *quicpipe.ConnectionError
	require.ErrorAs(t, wrapError(appErr), &connErr)
	assert.ErrorIs(t, connErr, appErr)

	plain := errors.New("unrelated")
	assert.Equal(t, plain, wrapError(plain))
}

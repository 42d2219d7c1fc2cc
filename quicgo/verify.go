package quicgo

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// VerifyCertificate checks the peer's leaf certificate and the rest of
// its chain. Returning nil accepts the peer.
type VerifyCertificate func(cert *x509.Certificate, chain []*x509.Certificate) error

// ClientTLSConfig builds a client tls.Config for serverName. When
// verify is non-nil it replaces the standard chain verification;
// otherwise the default verification applies.
func ClientTLSConfig(serverName string, verify VerifyCertificate, nextProtos ...string) *tls.Config {
	conf := &tls.Config{
		ServerName: serverName,
		NextProtos: nextProtos,
	}
	if verify == nil {
		return conf
	}

	conf.InsecureSkipVerify = true
	conf.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		}
		if len(certs) == 0 {
			return errors.New("quicgo: peer presented no certificate")
		}
		return verify(certs[0], certs[1:])
	}
	return conf
}

// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedTestCert(t *testing.T, cn string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert
}

// tlsLoopback performs a real handshake over a loopback TCP listener,
// negotiating alpn (if non-empty) via NextProtos on both sides.
func tlsLoopback(t *testing.T, alpn string) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cert := selfSignedTestCert(t, "example.com")
	var protos []string
	if alpn != "" {
		protos = []string{alpn}
	}

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverConnCh <- nil
			return
		}
		tconn := tls.Server(raw, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   protos,
		})
		_ = tconn.Handshake()
		serverConnCh <- tconn
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	cconn := tls.Client(raw, &tls.Config{
		ServerName:         "example.com",
		InsecureSkipVerify: true,
		NextProtos:         protos,
	})
	require.NoError(t, cconn.Handshake())

	server = <-serverConnCh
	require.NotNil(t, server)
	return cconn, server
}

func TestNegotiatedALPNReportsH2WhenNegotiated(t *testing.T) {
	client, server := tlsLoopback(t, "h2")
	defer client.Close()
	defer server.Close()

	assert.Equal(t, "h2", negotiatedALPN(client))
	assert.Equal(t, "h2", negotiatedALPN(server))
}

func TestNegotiatedALPNEmptyWhenNoneNegotiated(t *testing.T) {
	client, server := tlsLoopback(t, "")
	defer client.Close()
	defer server.Close()

	assert.Equal(t, "", negotiatedALPN(client))
}

func TestNegotiatedALPNEmptyForPlainConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	assert.Equal(t, "", negotiatedALPN(client))
}

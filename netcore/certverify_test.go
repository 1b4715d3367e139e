// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert returns the DER bytes of a self-signed leaf certificate
// with the given common name and validity window.
func selfSignedCert(t *testing.T, cn string, notBefore, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCertVerifierAcceptsSelfSignedLeafWhenAllowed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "example.com", now.Add(-time.Hour), now.Add(time.Hour))

	v := &certVerifier{
		opts: OpenOptions{CommonName: "example.com", AllowSelfSigned: true, VerifyCommonName: true},
		now:  fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	assert.NoError(t, err)
}

func TestCertVerifierRejectsSelfSignedLeafWhenNotAllowed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "example.com", now.Add(-time.Hour), now.Add(time.Hour))

	v := &certVerifier{
		opts: OpenOptions{CommonName: "example.com", AllowSelfSigned: false},
		now:  fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	assert.ErrorIs(t, err, ErrCertificateRejected)
}

func TestCertVerifierRejectsExpiredWhenNotAllowed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "example.com", now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	v := &certVerifier{
		opts: OpenOptions{CommonName: "example.com", AllowSelfSigned: true, AllowExpired: false},
		now:  fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	assert.ErrorIs(t, err, ErrCertificateRejected)
}

func TestCertVerifierAcceptsExpiredWhenAllowed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "example.com", now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	v := &certVerifier{
		opts: OpenOptions{CommonName: "example.com", AllowSelfSigned: true, AllowExpired: true},
		now:  fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	assert.NoError(t, err)
}

func TestCertVerifierRejectsCommonNameMismatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "other.example.com", now.Add(-time.Hour), now.Add(time.Hour))

	v := &certVerifier{
		opts: OpenOptions{
			CommonName:                 "example.com",
			AllowSelfSigned:            true,
			VerifyCommonName:           true,
			VerifySelfSignedCommonName: true,
		},
		now: fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	require.Error(t, err)
	var hostErr x509.HostnameError
	assert.ErrorAs(t, err, &hostErr)
}

func TestCertVerifierSkipsCommonNameForSelfSignedByDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := selfSignedCert(t, "other.example.com", now.Add(-time.Hour), now.Add(time.Hour))

	v := &certVerifier{
		opts: OpenOptions{
			CommonName:                 "example.com",
			AllowSelfSigned:            true,
			VerifyCommonName:           true,
			VerifySelfSignedCommonName: false,
		},
		now: fixedClock(now),
	}
	err := v.verify([][]byte{cert}, nil)
	assert.NoError(t, err)
}

func TestCertVerifierRejectsEmptyChain(t *testing.T) {
	v := &certVerifier{opts: OpenOptions{}, now: fixedClock(time.Now())}
	err := v.verify(nil, nil)
	assert.ErrorIs(t, err, ErrCertificateRejected)
}

func TestCertVerifierRejectsUnparsableCert(t *testing.T) {
	v := &certVerifier{opts: OpenOptions{}, now: fixedClock(time.Now())}
	err := v.verify([][]byte{[]byte("not a certificate")}, nil)
	require.Error(t, err)
}

func TestParseCertChain(t *testing.T) {
	now := time.Now()
	cert := selfSignedCert(t, "example.com", now.Add(-time.Hour), now.Add(time.Hour))

	certs, err := parseCertChain([][]byte{cert})
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "example.com", certs[0].Subject.CommonName)
}

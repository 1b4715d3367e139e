// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"bytes"
	"crypto/x509"
	"time"
)

// certVerifier implements spec.md §4.2's certificate verification policy as
// a [*tls.Config.VerifyPeerCertificate] callback. It is installed whenever
// [OpenOptions.VerifyCertificate] is set, with [tls.Config.InsecureSkipVerify]
// forced true so crypto/tls's own chain-trust check never runs ahead of (and
// can never substitute for) this policy.
type certVerifier struct {
	opts OpenOptions
	now  func() time.Time
}

// verify is the callback body. rawCerts is the chain as presented by the
// peer, leaf first.
func (v *certVerifier) verify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	certs, err := parseCertChain(rawCerts)
	if err != nil {
		return err
	}
	if len(certs) == 0 {
		return ErrCertificateRejected
	}

	if v.chainIsTrusted(certs) {
		return v.verifyCommonNameIfNeeded(certs[0], false)
	}

	for depth, cert := range certs {
		selfSigned := bytes.Equal(cert.RawIssuer, cert.RawSubject)
		switch {
		case selfSigned && depth == 0:
			if !v.opts.AllowSelfSigned {
				return ErrCertificateRejected
			}
		case selfSigned:
			if !(v.opts.AllowSelfSigned || v.opts.AllowSelfChain) {
				return ErrCertificateRejected
			}
		}
		if v.expired(cert) && !v.opts.AllowExpired {
			return ErrCertificateRejected
		}
	}

	leafSelfSigned := bytes.Equal(certs[0].RawIssuer, certs[0].RawSubject)
	return v.verifyCommonNameIfNeeded(certs[0], leafSelfSigned)
}

// chainIsTrusted reports whether certs verifies against the system root
// pool, ignoring hostname (handled separately below). This is the spec's
// "OK → continue" fast path.
func (v *certVerifier) chainIsTrusted(certs []*x509.Certificate) bool {
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return err == nil
}

func (v *certVerifier) expired(cert *x509.Certificate) bool {
	now := v.now()
	return now.Before(cert.NotBefore) || now.After(cert.NotAfter)
}

func (v *certVerifier) verifyCommonNameIfNeeded(leaf *x509.Certificate, leafSelfSigned bool) error {
	if !v.opts.VerifyCommonName {
		return nil
	}
	if leafSelfSigned && !v.opts.VerifySelfSignedCommonName {
		return nil
	}
	name := v.opts.CommonName
	if name == "" {
		name = v.opts.HostPort
	}
	return leaf.VerifyHostname(name)
}

func parseCertChain(rawCerts [][]byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

package fetch

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/ocsp"

	"github.com/nao1215/urlvet/internal/model"
)

// extKeyUsageOIDs maps the usages x509 decodes into enums back to their OIDs.
var extKeyUsageOIDs = map[x509.ExtKeyUsage]string{
	x509.ExtKeyUsageAny:             "2.5.29.37.0",
	x509.ExtKeyUsageServerAuth:      "1.3.6.1.5.5.7.3.1",
	x509.ExtKeyUsageClientAuth:      "1.3.6.1.5.5.7.3.2",
	x509.ExtKeyUsageCodeSigning:     "1.3.6.1.5.5.7.3.3",
	x509.ExtKeyUsageEmailProtection: "1.3.6.1.5.5.7.3.4",
	x509.ExtKeyUsageTimeStamping:    "1.3.6.1.5.5.7.3.8",
	x509.ExtKeyUsageOCSPSigning:     "1.3.6.1.5.5.7.3.9",
}

// certificateRecord reduces a TLS connection state to the certificate
// record the TLS analyzer works on. It returns nil when the peer sent no
// certificate.
func certificateRecord(state *tls.ConnectionState) *model.Certificate {
	if state == nil || len(state.PeerCertificates) == 0 {
		return nil
	}
	leaf := state.PeerCertificates[0]
	sum := sha256.Sum256(leaf.Raw)

	c := &model.Certificate{
		Subject:            leaf.Subject.String(),
		Issuer:             leaf.Issuer.String(),
		DNSNames:           append([]string(nil), leaf.DNSNames...),
		NotBefore:          leaf.NotBefore,
		NotAfter:           leaf.NotAfter,
		PublicKeyAlgorithm: leaf.PublicKeyAlgorithm.String(),
		PublicKeyBits:      publicKeyBits(leaf.PublicKey),
		SelfSigned:         isSelfSigned(leaf),
		ExtKeyUsageOIDs:    keyUsageOIDs(leaf),
		Fingerprint:        hex.EncodeToString(sum[:]),
		TLSVersion:         tlsVersion(state.Version),
	}
	for _, ip := range leaf.IPAddresses {
		c.IPAddresses = append(c.IPAddresses, ip.String())
	}

	if len(state.OCSPResponse) > 0 {
		var issuer *x509.Certificate
		if len(state.PeerCertificates) > 1 {
			issuer = state.PeerCertificates[1]
		}
		c.OCSPStatus = ocspStatus(state.OCSPResponse, issuer)
	}
	return c
}

// tlsVersion renders a protocol version as "TLS1.2"; unknown values keep
// the hex form tls.VersionName produces.
func tlsVersion(v uint16) string {
	if v == 0 {
		return ""
	}
	return strings.ReplaceAll(tls.VersionName(v), " ", "")
}

func publicKeyBits(pub any) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}

// isSelfSigned reports whether the certificate names itself as issuer and
// its signature verifies with its own key.
func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	// CheckSignatureFrom would also demand the CA flag, which leaf
	// certificates made by hand often lack.
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func keyUsageOIDs(cert *x509.Certificate) []string {
	oids := make([]string, 0, len(cert.ExtKeyUsage)+len(cert.UnknownExtKeyUsage))
	for _, u := range cert.ExtKeyUsage {
		if oid, ok := extKeyUsageOIDs[u]; ok {
			oids = append(oids, oid)
		}
	}
	for _, oid := range cert.UnknownExtKeyUsage {
		oids = append(oids, oid.String())
	}
	return oids
}

// ocspStatus parses a stapled OCSP response. The signature is checked when
// the issuer is known.
func ocspStatus(der []byte, issuer *x509.Certificate) string {
	resp, err := ocsp.ParseResponse(der, issuer)
	if err != nil {
		return "unknown"
	}
	switch resp.Status {
	case ocsp.Good:
		return "good"
	case ocsp.Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}

package fetch

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/ocsp"
)

func newCert(t *testing.T, template, parent *x509.Certificate, pub any, priv crypto.Signer) *x509.Certificate {
	t.Helper()

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestCertificateRecord(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)

	t.Run("self signed leaf", func(t *testing.T) {
		t.Parallel()

		key := newECKey(t)
		template := &x509.Certificate{
			SerialNumber:       big.NewInt(1),
			Subject:            pkix.Name{CommonName: "example.com"},
			DNSNames:           []string{"example.com", "www.example.com"},
			NotBefore:          now.Add(-time.Hour),
			NotAfter:           now.Add(24 * time.Hour),
			ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 2, 3, 4}},
		}
		leaf := newCert(t, template, template, &key.PublicKey, key)

		c := certificateRecord(&tls.ConnectionState{
			Version:          tls.VersionTLS12,
			PeerCertificates: []*x509.Certificate{leaf},
		})
		if c == nil {
			t.Fatal("expected a record")
		}
		if !c.SelfSigned {
			t.Error("expected a self-signed certificate")
		}
		if c.PublicKeyAlgorithm != "ECDSA" || c.PublicKeyBits != 256 {
			t.Errorf("key = %s/%d", c.PublicKeyAlgorithm, c.PublicKeyBits)
		}
		if c.TLSVersion != "TLS1.2" {
			t.Errorf("TLSVersion = %q", c.TLSVersion)
		}
		if diff := cmp.Diff([]string{"example.com", "www.example.com"}, c.DNSNames); diff != "" {
			t.Errorf("DNSNames mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"1.3.6.1.5.5.7.3.1", "1.2.3.4"}, c.ExtKeyUsageOIDs); diff != "" {
			t.Errorf("EKU mismatch (-want +got):\n%s", diff)
		}
		if c.OCSPStatus != "" {
			t.Errorf("OCSPStatus = %q, want empty when nothing is stapled", c.OCSPStatus)
		}
	})

	t.Run("ca signed leaf with stapled revocation", func(t *testing.T) {
		t.Parallel()

		caKey := newECKey(t)
		caTemplate := &x509.Certificate{
			SerialNumber:          big.NewInt(10),
			Subject:               pkix.Name{CommonName: "Test CA"},
			NotBefore:             now.Add(-time.Hour),
			NotAfter:              now.Add(365 * 24 * time.Hour),
			IsCA:                  true,
			BasicConstraintsValid: true,
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		}
		ca := newCert(t, caTemplate, caTemplate, &caKey.PublicKey, caKey)

		leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}
		leaf := newCert(t, &x509.Certificate{
			SerialNumber: big.NewInt(11),
			Subject:      pkix.Name{CommonName: "example.com"},
			DNSNames:     []string{"example.com"},
			NotBefore:    now.Add(-time.Hour),
			NotAfter:     now.Add(24 * time.Hour),
		}, ca, &leafKey.PublicKey, caKey)

		staple, err := ocsp.CreateResponse(ca, ca, ocsp.Response{
			Status:       ocsp.Revoked,
			SerialNumber: leaf.SerialNumber,
			ThisUpdate:   now.Add(-time.Hour),
			NextUpdate:   now.Add(time.Hour),
			RevokedAt:    now.Add(-2 * time.Hour),
		}, caKey)
		if err != nil {
			t.Fatalf("create OCSP response: %v", err)
		}

		c := certificateRecord(&tls.ConnectionState{
			Version:          tls.VersionTLS13,
			PeerCertificates: []*x509.Certificate{leaf, ca},
			OCSPResponse:     staple,
		})
		if c.SelfSigned {
			t.Error("a CA-issued certificate is not self-signed")
		}
		if c.PublicKeyAlgorithm != "RSA" || c.PublicKeyBits != 2048 {
			t.Errorf("key = %s/%d", c.PublicKeyAlgorithm, c.PublicKeyBits)
		}
		if c.Issuer != "CN=Test CA" {
			t.Errorf("Issuer = %q", c.Issuer)
		}
		if c.OCSPStatus != "revoked" {
			t.Errorf("OCSPStatus = %q, want revoked", c.OCSPStatus)
		}
		if len(c.ExtKeyUsageOIDs) != 0 {
			t.Errorf("unexpected EKU %v", c.ExtKeyUsageOIDs)
		}
	})

	t.Run("no peer certificate", func(t *testing.T) {
		t.Parallel()

		if c := certificateRecord(&tls.ConnectionState{Version: tls.VersionTLS13}); c != nil {
			t.Errorf("expected nil, got %+v", c)
		}
		if c := certificateRecord(nil); c != nil {
			t.Errorf("expected nil, got %+v", c)
		}
	})
}

func TestOCSPStatusGarbage(t *testing.T) {
	t.Parallel()

	if got := ocspStatus([]byte("not der"), nil); got != "unknown" {
		t.Errorf("ocspStatus = %q, want unknown", got)
	}
}

func TestTLSVersion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		v    uint16
		want string
	}{
		{tls.VersionTLS10, "TLS1.0"},
		{tls.VersionTLS11, "TLS1.1"},
		{tls.VersionTLS13, "TLS1.3"},
		{0, ""},
	}
	for _, tc := range testCases {
		if got := tlsVersion(tc.v); got != tc.want {
			t.Errorf("tlsVersion(%#x) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

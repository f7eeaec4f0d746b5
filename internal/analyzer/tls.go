package analyzer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/urlvet/internal/model"
)

const (
	// freshCertificateAge is the age under which a certificate counts as
	// issued for a throw-away site.
	freshCertificateAge = 7 * 24 * time.Hour

	minRSABits   = 2048
	minECDSABits = 256

	oidServerAuth  = "1.3.6.1.5.5.7.3.1"
	oidAnyKeyUsage = "2.5.29.37.0"
)

// TLSAnalyzer checks the pre-parsed certificate record.
type TLSAnalyzer struct{}

// NewTLSAnalyzer creates a new TLSAnalyzer.
func NewTLSAnalyzer() *TLSAnalyzer {
	return &TLSAnalyzer{}
}

// Name returns the analyzer name.
func (a *TLSAnalyzer) Name() string {
	return "tls"
}

// Phase returns the analyzer phase.
func (a *TLSAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze checks the server certificate.
func (a *TLSAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}
	cert := rec.Certificate
	if cert == nil {
		return []model.Finding{data.finding(model.RuleTLSMissing, "")}, nil
	}

	findings := make([]model.Finding, 0)
	now := data.Now

	switch {
	case now.After(cert.NotAfter):
		findings = append(findings, data.finding(model.RuleTLSExpired, cert.NotAfter.UTC().Format(time.RFC3339)))
	case now.Before(cert.NotBefore):
		findings = append(findings, data.finding(model.RuleTLSNotYetValid, cert.NotBefore.UTC().Format(time.RFC3339)))
	case now.Sub(cert.NotBefore) < freshCertificateAge:
		findings = append(findings, data.finding(model.RuleTLSFresh, cert.NotBefore.UTC().Format(time.RFC3339)))
	}

	if cert.SelfSigned {
		findings = append(findings, data.finding(model.RuleTLSSelfSigned, cert.Issuer))
	}
	host := data.Target.Parts.HostASCII
	if host == "" {
		host = data.Target.Parts.Host
	}
	if !certificateCovers(cert, host, data.Target.Parts.IsIP) {
		findings = append(findings, data.finding(model.RuleTLSNameMismatch, host))
	}
	if weakKey(cert) {
		findings = append(findings, data.finding(model.RuleTLSWeakKey, cert.PublicKeyAlgorithm+" "+strconv.Itoa(cert.PublicKeyBits)))
	}
	if len(cert.ExtKeyUsageOIDs) > 0 && !hasServerAuth(cert.ExtKeyUsageOIDs) {
		findings = append(findings, data.finding(model.RuleTLSNoServerAuth, strings.Join(cert.ExtKeyUsageOIDs, ", ")))
	}
	if strings.EqualFold(cert.OCSPStatus, "revoked") {
		findings = append(findings, data.finding(model.RuleTLSRevoked, cert.Fingerprint))
	}
	if cert.TLSVersion == "TLS1.0" || cert.TLSVersion == "TLS1.1" {
		findings = append(findings, data.finding(model.RuleTLSLegacyVersion, cert.TLSVersion))
	}
	for _, name := range cert.DNSNames {
		if strings.HasPrefix(name, "*.") {
			findings = append(findings, data.finding(model.RuleTLSWildcard, name))
			break
		}
	}

	return findings, nil
}

// certificateCovers reports whether the certificate is valid for host.
func certificateCovers(cert *model.Certificate, host string, isIP bool) bool {
	if isIP {
		for _, ip := range cert.IPAddresses {
			if ip == host {
				return true
			}
		}
		return false
	}
	for _, name := range cert.DNSNames {
		if matchHostname(strings.ToLower(name), host) {
			return true
		}
	}
	return false
}

// matchHostname matches host against a certificate name. A wildcard covers
// exactly one left-most label.
func matchHostname(pattern, host string) bool {
	pattern = strings.TrimSuffix(pattern, ".")
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if !strings.HasPrefix(pattern, "*.") {
		return pattern == host
	}
	_, rest, ok := strings.Cut(host, ".")
	return ok && rest == pattern[2:] && strings.Contains(rest, ".")
}

func weakKey(cert *model.Certificate) bool {
	switch cert.PublicKeyAlgorithm {
	case "RSA", "DSA":
		return cert.PublicKeyBits < minRSABits
	case "ECDSA":
		return cert.PublicKeyBits < minECDSABits
	default:
		return false
	}
}

func hasServerAuth(oids []string) bool {
	for _, oid := range oids {
		if oid == oidServerAuth || oid == oidAnyKeyUsage {
			return true
		}
	}
	return false
}

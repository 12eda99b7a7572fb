package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/txnroute/txnroute/feeder/internal/config"
)

const (
	dialTimeout  = 10 * time.Second
	expiringDays = 30
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// CertStatus describes the leaf certificate served by one endpoint.
type CertStatus struct {
	SourceID string
	Endpoint string
	AuthType string
	Status   string
	DaysLeft int
	Issuer   string
	NotAfter time.Time
	// Verified reports whether the chain verifies against the system roots
	// for the endpoint host. Always false when verification is disabled.
	Verified bool
}

// Check dials the source endpoint and inspects its leaf certificate.
// It returns nil for sources that are not HTTPS.
func Check(ctx context.Context, src config.Source) *CertStatus {
	return checkAt(ctx, src, time.Now())
}

func checkAt(ctx context.Context, src config.Source, now time.Time) *CertStatus {
	if src.Type != "http" {
		return nil
	}
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{SourceID: src.ID, Endpoint: src.Endpoint, AuthType: src.Auth.Mode}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	addr := u.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	// Verification happens below, so an expired certificate is still
	// reported as expired rather than unreachable.
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}
	leaf := state.PeerCertificates[0]

	if !src.TLS.InsecureSkipVerify {
		inter := x509.NewCertPool()
		for _, c := range state.PeerCertificates[1:] {
			inter.AddCert(c)
		}
		_, err := leaf.Verify(x509.VerifyOptions{
			DNSName:       u.Hostname(),
			Intermediates: inter,
			CurrentTime:   now,
		})
		cs.Verified = err == nil
	}

	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= expiringDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

package security

import (
	"crypto/tls"
	"fmt"

	tdxclient "github.com/google/go-tdx-guest/client"
)

// TEEProvider is the identity variant for a confidential-computing workload
// that has a DCAP/TDX quote available instead of a pre-provisioned
// certificate. SSLContext retrieves a quote and fails if none can be
// obtained; the quote itself is not placed in the returned TLS config or
// sent anywhere.
type TEEProvider struct {
	RegistrationIDValue string
	ReportData          [64]byte
}

func (p *TEEProvider) RegistrationID() string { return p.RegistrationIDValue }

// IsX509 reports true: a TEE-backed registration is flagged like the X.509
// variant. No client certificate or quote is attached to the TLS config.
func (p *TEEProvider) IsX509() bool { return true }

func (p *TEEProvider) SSLContext() (*tls.Config, error) {
	if _, err := p.quote(); err != nil {
		return nil, err
	}
	return &tls.Config{}, nil
}

func (p *TEEProvider) quote() ([]byte, error) {
	qp := &tdxclient.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(p.ReportData)
	}

	qd, err := tdxclient.OpenDevice()
	if err != nil {
		return nil, fmt.Errorf("tee provider: open tdx device: %w", err)
	}
	defer qd.Close()

	return tdxclient.GetRawQuote(qd, p.ReportData)
}

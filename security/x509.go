package security

import (
	"crypto/tls"
	"fmt"
)

// X509Provider authenticates with a client certificate chain signed by the
// provisioning service's expected CA.
type X509Provider struct {
	RegistrationIDValue string
	Cert                tls.Certificate
	RootCAs             *tls.Config
}

func (p *X509Provider) RegistrationID() string { return p.RegistrationIDValue }

func (p *X509Provider) IsX509() bool { return true }

func (p *X509Provider) SSLContext() (*tls.Config, error) {
	if len(p.Cert.Certificate) == 0 {
		return nil, fmt.Errorf("x509 provider: no client certificate configured")
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{p.Cert},
	}
	if p.RootCAs != nil {
		cfg.RootCAs = p.RootCAs.RootCAs
	}
	return cfg, nil
}

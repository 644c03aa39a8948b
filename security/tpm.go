package security

import (
	"crypto/tls"
	"fmt"
	"sync"
)

// TPMProvider models a device whose identity key lives in a TPM. It never
// holds the key itself in this package — ActivateIdentityKey is invoked by
// dpsm.Task once a registration reaches ASSIGNED with TPM state, and a real
// deployment would forward the decoded key into the platform's TPM stack
// from there.
type TPMProvider struct {
	RegistrationIDValue string
	EndorsementKey      []byte

	Activate func(identityKey []byte) error

	mu       sync.Mutex
	activated bool
	lastKey   []byte
}

func (p *TPMProvider) RegistrationID() string { return p.RegistrationIDValue }

func (p *TPMProvider) SSLContext() (*tls.Config, error) {
	if len(p.EndorsementKey) == 0 {
		return nil, fmt.Errorf("tpm provider: no endorsement key configured")
	}
	return &tls.Config{}, nil
}

// ActivateIdentityKey is invoked exactly once per successful Run, never
// concurrently with itself (the driver runs one step at a time).
func (p *TPMProvider) ActivateIdentityKey(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Activate != nil {
		if err := p.Activate(key); err != nil {
			return err
		}
	}
	p.activated = true
	p.lastKey = append([]byte(nil), key...)
	return nil
}

// Activated reports whether ActivateIdentityKey has succeeded, for tests.
func (p *TPMProvider) Activated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activated
}

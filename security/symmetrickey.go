package security

import (
	"crypto/sha256"
	"crypto/tls"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	derivedKeyLength = 32
	pbkdf2Iterations = 100_000
)

// SymmetricKeyProvider authenticates with a shared key flashed onto the
// device, deriving both a stable registration id and a per-registration
// key from it. A device with no KeyStore configured keeps the shared
// key in memory for the process lifetime only.
type SymmetricKeyProvider struct {
	SharedKey []byte
	Salt      []byte

	KeyStore *VaultBackedKeyStore
}

// sharedKey returns the provider's configured key, falling back to a Vault
// read when one is configured and no key is held locally.
func (p *SymmetricKeyProvider) sharedKey() ([]byte, error) {
	if len(p.SharedKey) > 0 {
		return p.SharedKey, nil
	}
	if p.KeyStore != nil {
		return p.KeyStore.FetchSharedKey()
	}
	return nil, fmt.Errorf("symmetric key provider: no shared key available")
}

// RegistrationID derives a stable, non-reversible fingerprint of the shared
// key using Keccak-256, mirroring the teacher's ContractAddress-style
// typed-identifier derivation.
func (p *SymmetricKeyProvider) RegistrationID() string {
	key, err := p.sharedKey()
	if err != nil {
		return ""
	}
	digest := ethcrypto.Keccak256(key)
	return fmt.Sprintf("%x", digest[:20])
}

// SSLContext returns an empty TLS config: symmetric-key auth carries its
// credential in the request body/headers via AuthorizationCtx, not via the
// TLS handshake, so no connection is considered "open" in the identity
// sense until Register actually executes.
func (p *SymmetricKeyProvider) SSLContext() (*tls.Config, error) {
	return &tls.Config{}, nil
}

// DerivedKey produces a per-registration key from the shared key and salt
// using PBKDF2-HMAC-SHA256, suitable as SAS-token signing material.
func (p *SymmetricKeyProvider) DerivedKey() ([]byte, error) {
	key, err := p.sharedKey()
	if err != nil {
		return nil, err
	}
	salt := p.Salt
	if len(salt) == 0 {
		salt = []byte(p.RegistrationID())
	}
	return pbkdf2.Key(key, salt, pbkdf2Iterations, derivedKeyLength, sha256.New), nil
}

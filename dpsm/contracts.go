package dpsm

import (
	"context"
	"crypto/tls"
	"time"
)

// RequestData is handed to TransportContract.Open once, before any
// registration traffic is sent.
type RequestData struct {
	RegistrationID string
	SSLContext     *tls.Config
	IsX509         bool
	Payload        []byte
}

// TransportContract is the external collaborator responsible for speaking
// whatever wire protocol the provisioning service expects. dpsm never
// parses the envelope itself: every method returns an already-assembled
// RegistrationOperationStatus.
type TransportContract interface {
	// Open prepares the transport (TLS, connection pooling, endpoint
	// resolution) for one provisioning attempt. Called exactly once.
	Open(ctx context.Context, data RequestData) error

	// Close tears down anything Open acquired. Must be idempotent and must
	// not error on a transport that was never opened.
	Close() error

	// RetryHint is consulted before each status poll, including the first
	// one after Register.
	RetryHint() time.Duration

	// Register submits the registration payload and returns the initial
	// operation status. authz may be populated with credential material
	// the transport derives for subsequent QueryStatus calls.
	Register(ctx context.Context, payload []byte, authz *AuthorizationCtx) (*RegistrationOperationStatus, error)

	// QueryStatus polls an in-flight operation by id.
	QueryStatus(ctx context.Context, operationID string, authz *AuthorizationCtx) (*RegistrationOperationStatus, error)
}

// SecurityProvider supplies the identity material a TransportContract needs
// to authenticate. Concrete variants (X.509, TPM, symmetric key, TEE
// attestation) optionally implement X509Capable and/or TPMCapable; the
// driver type-asserts for those capabilities rather than branching on a
// provider "kind" enum.
type SecurityProvider interface {
	RegistrationID() string
	SSLContext() (*tls.Config, error)
}

// X509Capable is implemented by SecurityProvider variants that authenticate
// with a certificate chain rather than a derived token.
type X509Capable interface {
	IsX509() bool
}

// TPMCapable is implemented by SecurityProvider variants backed by a TPM,
// and is invoked once a registration reaches ASSIGNED with TPM state.
type TPMCapable interface {
	ActivateIdentityKey(key []byte) error
}

// RegistrationCallback receives the single terminal result of a Run call,
// whatever path produced it: success, hub failure, transport error, or
// timeout.
type RegistrationCallback func(result *RegistrationResult, err error, userContext any)

// Package security provides dpsm.SecurityProvider implementations for the
// identity variants a device might use to authenticate during
// provisioning: X.509 certificate chains, TPM-backed keys, pre-shared
// symmetric keys, and TEE attestation.
package security

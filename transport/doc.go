// Package transport provides HTTP-based TransportContract implementations
// for package dpsm, plus a fake DPS service under testdps for driving
// integration tests without a real provisioning backend.
package transport

// Package dpsm implements the device-side provisioning state machine: open a
// transport, submit a registration request, poll the resulting operation
// until it reaches a terminal status, and hand the assignment (or failure)
// back to the caller exactly once.
package dpsm

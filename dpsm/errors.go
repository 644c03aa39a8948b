package dpsm

import (
	"fmt"
	"time"
)

// InvalidArgumentError is returned by New when construction arguments fail
// validation. It never reaches a RegistrationCallback — a Task that can't be
// constructed never runs.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("dpsm: invalid argument %s: %s", e.Field, e.Reason)
}

// AuthenticationFailureError covers a malformed or missing response from
// either RegisterStep or StatusStep: no operation id, an unparseable status,
// or a terminal state missing the fields its status requires.
type AuthenticationFailureError struct {
	Reason string
}

func (e *AuthenticationFailureError) Error() string {
	return fmt.Sprintf("dpsm: authentication failure: %s", e.Reason)
}

// HubError wraps a terminal FAILED or DISABLED registration state reported
// by the service itself, as opposed to a transport or parsing problem.
type HubError struct {
	Message      string
	Code         int
	HasCode      bool
	Substatus    string
}

func (e *HubError) Error() string {
	if e.HasCode {
		return fmt.Sprintf("dpsm: hub error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("dpsm: hub error: %s", e.Message)
}

// TransportError wraps any error returned directly by a TransportContract
// method (Open, Register, QueryStatus).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("dpsm: transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// SecurityProviderError wraps any error returned by a SecurityProvider
// method (SSLContext, ActivateIdentityKey).
type SecurityProviderError struct {
	Err error
}

func (e *SecurityProviderError) Error() string {
	return fmt.Sprintf("dpsm: security provider error: %v", e.Err)
}
func (e *SecurityProviderError) Unwrap() error { return e.Err }

// TimeoutError is returned when a step does not complete within its
// allotted ceiling (register: 1,000,000ms, status: 10,000ms).
type TimeoutError struct {
	Step    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dpsm: %s timed out after %s", e.Step, e.Elapsed)
}

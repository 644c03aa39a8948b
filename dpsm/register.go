package dpsm

import (
	"context"
	"fmt"
)

// runRegister issues the one-shot registration call and validates the
// shape of its response. It never inspects RegistrationState.Payload or any
// TPM field: those are the driver's concern once the operation goes
// terminal.
func runRegister(ctx context.Context, transport TransportContract, payload []byte, authz *AuthorizationCtx) (*RegistrationOperationStatus, error) {
	status, err := transport.Register(ctx, payload, authz)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if status == nil {
		return nil, &AuthenticationFailureError{Reason: "registration response was empty"}
	}
	if status.OperationID == "" {
		return nil, &AuthenticationFailureError{Reason: "registration response carried no operation id"}
	}
	if _, perr := ParseProvisioningStatus(status.Status); perr != nil {
		return nil, &AuthenticationFailureError{Reason: fmt.Sprintf("registration response: %v", perr)}
	}
	return status, nil
}

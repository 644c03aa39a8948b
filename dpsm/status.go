package dpsm

import (
	"context"
	"fmt"
)

// runStatus polls a single registration operation and validates the shape
// of its response like runRegister, except that a response with no
// operation id is not an error: operationID is filled in instead.
func runStatus(ctx context.Context, transport TransportContract, operationID string, authz *AuthorizationCtx) (*RegistrationOperationStatus, error) {
	status, err := transport.QueryStatus(ctx, operationID, authz)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if status == nil {
		return nil, &AuthenticationFailureError{Reason: "status response was empty"}
	}
	if status.OperationID == "" {
		status.OperationID = operationID
	}
	if _, perr := ParseProvisioningStatus(status.Status); perr != nil {
		return nil, &AuthenticationFailureError{Reason: fmt.Sprintf("status response: %v", perr)}
	}
	return status, nil
}

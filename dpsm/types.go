package dpsm

import (
	"fmt"
	"strings"
)

// ProvisioningStatus is the wire-level status of a registration operation.
type ProvisioningStatus int

const (
	StatusUnassigned ProvisioningStatus = iota
	StatusAssigning
	StatusAssigned
	StatusFailed
	StatusDisabled
)

func (s ProvisioningStatus) String() string {
	switch s {
	case StatusUnassigned:
		return "unassigned"
	case StatusAssigning:
		return "assigning"
	case StatusAssigned:
		return "assigned"
	case StatusFailed:
		return "failed"
	case StatusDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the driver should stop polling on this status.
func (s ProvisioningStatus) Terminal() bool {
	switch s {
	case StatusAssigned, StatusFailed, StatusDisabled:
		return true
	default:
		return false
	}
}

// ParseProvisioningStatus parses the raw wire value of a status field. An
// empty or unrecognized value is an error, never a zero value, so callers
// can't silently treat "unknown" as "unassigned".
func ParseProvisioningStatus(raw string) (ProvisioningStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "unassigned":
		return StatusUnassigned, nil
	case "assigning":
		return StatusAssigning, nil
	case "assigned":
		return StatusAssigned, nil
	case "failed":
		return StatusFailed, nil
	case "disabled":
		return StatusDisabled, nil
	default:
		return 0, fmt.Errorf("unrecognized provisioning status %q", raw)
	}
}

// LifecycleStatus is the caller-facing summary of where a Run ended up,
// reported through RegistrationResult and the optional StatusObserver sink.
type LifecycleStatus int

const (
	LifecycleUnauthenticated LifecycleStatus = iota
	LifecycleAuthenticated
	LifecycleAssigning
	LifecycleAssigned
	LifecycleFailed
	LifecycleDisabled
	LifecycleError
)

func (l LifecycleStatus) String() string {
	switch l {
	case LifecycleUnauthenticated:
		return "unauthenticated"
	case LifecycleAuthenticated:
		return "authenticated"
	case LifecycleAssigning:
		return "assigning"
	case LifecycleAssigned:
		return "assigned"
	case LifecycleFailed:
		return "failed"
	case LifecycleDisabled:
		return "disabled"
	case LifecycleError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// TPMState carries the TPM activation key material returned by the service
// once a TPM-backed registration reaches ASSIGNED.
type TPMState struct {
	// AuthenticationKey is base64-encoded as received on the wire.
	AuthenticationKey string
}

// RegistrationState is the payload carried by a terminal
// RegistrationOperationStatus.
type RegistrationState struct {
	RegistrationID         string
	AssignedHub            string
	DeviceID               string
	Substatus              string
	CreatedDateTimeUTC     string
	LastUpdatedDateTimeUTC string
	ETag                   string
	ErrorMessage           string
	ErrorCode              int
	HasErrorCode           bool
	TPM                    *TPMState
	Payload                []byte
}

// RegistrationOperationStatus is the shape returned by both RegisterStep and
// StatusStep. Status is kept as the raw wire string: parsing it into a
// ProvisioningStatus is the driver's job, not the transport's, so the
// transport stays oblivious to what the value means.
type RegistrationOperationStatus struct {
	OperationID string
	Status      string
	RetryAfter  string
	State       *RegistrationState
}

// RegistrationResult is handed to the caller's callback exactly once, on
// success, failure, or timeout.
type RegistrationResult struct {
	Lifecycle   LifecycleStatus
	State       *RegistrationState
	Err         error
}

package dpsm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/atomic"
)

// Config carries everything a Task needs to drive one provisioning attempt.
// It is consumed by New and never mutated afterward.
type Config struct {
	// SecurityProvider supplies identity material for the transport.
	SecurityProvider SecurityProvider

	// Callback receives the single terminal result of Run. Required.
	Callback RegistrationCallback

	// UserContext is passed back to Callback verbatim.
	UserContext any

	// Payload is the registration payload submitted to the service.
	Payload []byte

	// UniqueIdentifier, when set, becomes the connectionId component of
	// the thread-name log attribute once the transport is open. When
	// empty, the literal "PendingConnectionId" is used instead, matching
	// devices (typically symmetric-key auth) that have no stable
	// identifier until a connection actually exists.
	UniqueIdentifier string

	// StatusObserver, if set, is invoked with the lifecycle status at
	// each phase transition. It is purely observational: nothing in Task
	// depends on it being called or on what it does. It exists so a
	// caller can watch progress without Task itself carrying a mutable
	// status field of its own.
	StatusObserver func(LifecycleStatus)

	// Log receives structured diagnostics, including the thread-name
	// attribute. Defaults to slog.Default() if nil.
	Log *slog.Logger
}

// Task drives a single provisioning attempt: open, register, poll until
// terminal, dispatch, cleanup. A Task must not be run more than once; the
// caller is responsible for not calling Run twice on the same Task.
type Task struct {
	cfg       *Config
	transport TransportContract
	authz     *AuthorizationCtx
	executor  *executor
	log       *slog.Logger

	callbackFired atomic.Bool
}

// New validates construction arguments and returns a Task ready to Run.
// Construction failures are reported as *InvalidArgumentError and never
// reach Config.Callback — a Task that fails to construct never runs.
func New(cfg *Config, transport TransportContract) (*Task, error) {
	if cfg == nil {
		return nil, &InvalidArgumentError{Field: "cfg", Reason: "must not be nil"}
	}
	if transport == nil {
		return nil, &InvalidArgumentError{Field: "transport", Reason: "must not be nil"}
	}
	if cfg.SecurityProvider == nil {
		return nil, &InvalidArgumentError{Field: "cfg.SecurityProvider", Reason: "must not be nil"}
	}
	if cfg.Callback == nil {
		return nil, &InvalidArgumentError{Field: "cfg.Callback", Reason: "must not be nil"}
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Task{
		cfg:       cfg,
		transport: transport,
		authz:     &AuthorizationCtx{},
		executor:  newExecutor(),
		log:       log,
	}, nil
}

// Run drives the provisioning attempt to completion: opening the transport,
// registering, polling until terminal, and invoking Config.Callback exactly
// once before returning. The returned error is the same error passed to the
// callback, offered only as a convenience for callers that don't need a
// callback-shaped API.
func (t *Task) Run(ctx context.Context) error {
	defer t.cleanup()

	t.logThreadName("PendingConnectionId")
	t.observe(LifecycleUnauthenticated)

	sslCtx, err := t.cfg.SecurityProvider.SSLContext()
	if err != nil {
		return t.fail(&SecurityProviderError{Err: err})
	}

	isX509 := false
	if x509c, ok := t.cfg.SecurityProvider.(X509Capable); ok {
		isX509 = x509c.IsX509()
	}

	reqData := RequestData{
		RegistrationID: t.cfg.SecurityProvider.RegistrationID(),
		SSLContext:     sslCtx,
		IsX509:         isX509,
		Payload:        t.cfg.Payload,
	}

	if err := t.transport.Open(ctx, reqData); err != nil {
		return t.fail(&TransportError{Err: err})
	}

	connectionID := t.cfg.UniqueIdentifier
	if connectionID == "" {
		connectionID = "PendingConnectionId"
	}
	t.logThreadName(connectionID)
	t.observe(LifecycleAuthenticated)

	regStatus, err := t.executor.submit(ctx, "register", registerTimeout, func(ctx context.Context) (*RegistrationOperationStatus, error) {
		return runRegister(ctx, t.transport, t.cfg.Payload, t.authz)
	})
	if err != nil {
		return t.fail(err)
	}

	return t.pollUntilTerminal(ctx, regStatus)
}

// pollUntilTerminal inspects the given status first (no sleep), then
// repeatedly sleeps for the transport's retry hint and polls again until a
// terminal status is reached.
func (t *Task) pollUntilTerminal(ctx context.Context, current *RegistrationOperationStatus) error {
	for {
		parsed, perr := ParseProvisioningStatus(current.Status)
		if perr != nil {
			return t.fail(&AuthenticationFailureError{Reason: perr.Error()})
		}

		if parsed.Terminal() {
			return t.dispatchTerminal(ctx, parsed, current)
		}

		t.observe(LifecycleAssigning)

		if hint := t.transport.RetryHint(); hint > 0 {
			if err := sleepCtx(ctx, hint); err != nil {
				return t.fail(&TransportError{Err: err})
			}
		}

		next, err := t.executor.submit(ctx, "status", statusTimeout, func(ctx context.Context) (*RegistrationOperationStatus, error) {
			return runStatus(ctx, t.transport, current.OperationID, t.authz)
		})
		if err != nil {
			return t.fail(err)
		}
		current = next
	}
}

// dispatchTerminal interprets a terminal status: ASSIGNED validates the
// registration state and, for TPM-backed providers, activates the returned
// identity key; FAILED and DISABLED are reported as HubError.
func (t *Task) dispatchTerminal(ctx context.Context, status ProvisioningStatus, op *RegistrationOperationStatus) error {
	switch status {
	case StatusAssigned:
		if op.State == nil {
			return t.fail(&AuthenticationFailureError{Reason: "assigned status carried no registration state"})
		}
		if op.State.AssignedHub == "" || op.State.DeviceID == "" {
			return t.fail(&AuthenticationFailureError{Reason: "assigned status missing hub or device id"})
		}

		if tpmc, ok := t.cfg.SecurityProvider.(TPMCapable); ok {
			if op.State.TPM == nil || op.State.TPM.AuthenticationKey == "" {
				return t.fail(&AuthenticationFailureError{Reason: "assigned status missing TPM activation key"})
			}
			key, err := base64.StdEncoding.DecodeString(op.State.TPM.AuthenticationKey)
			if err != nil {
				return t.fail(&AuthenticationFailureError{Reason: fmt.Sprintf("TPM activation key: %v", err)})
			}
			if err := tpmc.ActivateIdentityKey(key); err != nil {
				return t.fail(&SecurityProviderError{Err: err})
			}
		}

		t.observe(LifecycleAssigned)
		return t.succeed(op.State)

	case StatusFailed:
		return t.failWith(LifecycleFailed, op.State, hubErrorFromState(op.State))

	case StatusDisabled:
		return t.failWith(LifecycleDisabled, op.State, hubErrorFromState(op.State))

	default:
		return t.fail(&AuthenticationFailureError{Reason: fmt.Sprintf("unexpected terminal status %s", status)})
	}
}

func hubErrorFromState(state *RegistrationState) *HubError {
	if state == nil {
		return &HubError{Message: "no further detail provided"}
	}
	return &HubError{Message: state.ErrorMessage, Code: state.ErrorCode, HasCode: state.HasErrorCode, Substatus: state.Substatus}
}

func (t *Task) succeed(state *RegistrationState) error {
	t.invokeCallback(&RegistrationResult{Lifecycle: LifecycleAssigned, State: state}, nil)
	return nil
}

func (t *Task) fail(err error) error {
	t.observe(LifecycleError)
	t.invokeCallback(&RegistrationResult{Lifecycle: LifecycleError, Err: err}, err)
	return err
}

// failWith reports a terminal FAILED/DISABLED outcome, preserving its
// specific lifecycle and the service-reported state (registration id,
// substatus, etag, timestamps) instead of collapsing it into LifecycleError.
func (t *Task) failWith(lifecycle LifecycleStatus, state *RegistrationState, err error) error {
	t.observe(lifecycle)
	t.invokeCallback(&RegistrationResult{Lifecycle: lifecycle, State: state, Err: err}, err)
	return err
}

func (t *Task) invokeCallback(result *RegistrationResult, err error) {
	if !t.callbackFired.CompareAndSwap(false, true) {
		return
	}
	t.cfg.Callback(result, err, t.cfg.UserContext)
}

func (t *Task) observe(status LifecycleStatus) {
	if t.cfg.StatusObserver != nil {
		t.cfg.StatusObserver(status)
	}
}

func (t *Task) cleanup() {
	t.executor.shutdownNow()
	if err := t.transport.Close(); err != nil {
		t.log.Warn("transport close failed", "error", err)
	}
}

func (t *Task) logThreadName(connectionID string) {
	hostname, _ := os.Hostname()
	name := fmt.Sprintf("%s-%s-Cxn%s-azure-iot-sdk-ProvisioningTask", hostname, t.cfg.UniqueIdentifier, connectionID)
	t.log.Info("provisioning task thread", "thread", name)
}

// sleepCtx sleeps for d or returns early with ctx's error if ctx is done
// first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

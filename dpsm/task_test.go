package dpsm

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed sequence of register/status responses,
// enough to drive every terminal path without a real network call.
type scriptedTransport struct {
	registerResp *RegistrationOperationStatus
	registerErr  error
	statusResps  []*RegistrationOperationStatus
	statusErrs   []error
	retryHint    time.Duration

	openCalls  int
	closeCalls int
	statusCall int
}

func (s *scriptedTransport) Open(ctx context.Context, data RequestData) error {
	s.openCalls++
	return nil
}

func (s *scriptedTransport) Close() error {
	s.closeCalls++
	return nil
}

func (s *scriptedTransport) RetryHint() time.Duration { return s.retryHint }

func (s *scriptedTransport) Register(ctx context.Context, payload []byte, authz *AuthorizationCtx) (*RegistrationOperationStatus, error) {
	return s.registerResp, s.registerErr
}

func (s *scriptedTransport) QueryStatus(ctx context.Context, operationID string, authz *AuthorizationCtx) (*RegistrationOperationStatus, error) {
	idx := s.statusCall
	s.statusCall++
	if idx < len(s.statusErrs) && s.statusErrs[idx] != nil {
		return nil, s.statusErrs[idx]
	}
	if idx < len(s.statusResps) {
		return s.statusResps[idx], nil
	}
	return nil, errors.New("scriptedTransport: status script exhausted")
}

type fakeSecurityProvider struct {
	regID      string
	activated  []byte
	activateErr error
	isX509     bool
	hasTPM     bool
}

func (p *fakeSecurityProvider) RegistrationID() string           { return p.regID }
func (p *fakeSecurityProvider) SSLContext() (*tls.Config, error) { return &tls.Config{}, nil }
func (p *fakeSecurityProvider) IsX509() bool                     { return p.isX509 }

// tpmSecurityProvider is a distinct type so only it satisfies TPMCapable;
// fakeSecurityProvider on its own stands in for a non-TPM (e.g.
// symmetric-key) provider.
type tpmSecurityProvider struct {
	fakeSecurityProvider
}

func (p *tpmSecurityProvider) ActivateIdentityKey(key []byte) error {
	p.activated = key
	return p.activateErr
}

func newCallbackCollector() (RegistrationCallback, func() (*RegistrationResult, error, int)) {
	var result *RegistrationResult
	var callErr error
	calls := 0
	cb := func(r *RegistrationResult, err error, userCtx any) {
		result = r
		callErr = err
		calls++
	}
	return cb, func() (*RegistrationResult, error, int) { return result, callErr, calls }
}

func TestRun_SymmetricKeyAssignedOnFirstRegister(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{
			OperationID: "op-1",
			Status:      "assigned",
			State:       &RegistrationState{AssignedHub: "hub.example.com", DeviceID: "dev-1"},
		},
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{
		SecurityProvider: &fakeSecurityProvider{regID: "dev-1"},
		Callback:         cb,
		Payload:          []byte("payload"),
	}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	require.NoError(t, runErr)

	result, cbErr, calls := collect()
	require.Equal(t, 1, calls)
	require.NoError(t, cbErr)
	require.Equal(t, LifecycleAssigned, result.Lifecycle)
	require.Equal(t, "hub.example.com", result.State.AssignedHub)
	require.Equal(t, 1, transport.openCalls)
	require.Equal(t, 1, transport.closeCalls)
}

func TestRun_PollsUntilAssignedAndSleepsBetweenPolls(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{OperationID: "op-1", Status: "assigning"},
		statusResps: []*RegistrationOperationStatus{
			{OperationID: "op-1", Status: "assigning"},
			{OperationID: "op-1", Status: "assigned", State: &RegistrationState{AssignedHub: "hub.example.com", DeviceID: "dev-1"}},
		},
		retryHint: time.Millisecond,
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{
		SecurityProvider: &fakeSecurityProvider{regID: "dev-1"},
		Callback:         cb,
	}, transport)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, task.Run(context.Background()))
	// Two non-terminal statuses (register, first poll) each precede a sleep.
	require.GreaterOrEqual(t, time.Since(start), 2*transport.retryHint)
	result, _, calls := collect()
	require.Equal(t, 1, calls)
	require.Equal(t, LifecycleAssigned, result.Lifecycle)
	require.Equal(t, 2, transport.statusCall)
}

func TestRun_TPMActivationOnAssigned(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("identity-key"))
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{
			OperationID: "op-1",
			Status:      "assigned",
			State: &RegistrationState{
				AssignedHub: "hub.example.com",
				DeviceID:    "dev-1",
				TPM:         &TPMState{AuthenticationKey: key},
			},
		},
	}
	provider := &tpmSecurityProvider{fakeSecurityProvider{regID: "dev-1"}}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: provider, Callback: cb}, transport)
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))
	_, _, calls := collect()
	require.Equal(t, 1, calls)
	require.Equal(t, []byte("identity-key"), provider.activated)
}

func TestRun_AssignedWithoutTPMKeyFailsForTPMProvider(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{
			OperationID: "op-1",
			Status:      "assigned",
			State:       &RegistrationState{AssignedHub: "hub.example.com", DeviceID: "dev-1"},
		},
	}
	provider := &tpmSecurityProvider{fakeSecurityProvider{regID: "dev-1"}}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: provider, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	require.Error(t, runErr)
	var authErr *AuthenticationFailureError
	require.ErrorAs(t, runErr, &authErr)

	_, cbErr, calls := collect()
	require.Equal(t, 1, calls)
	require.Error(t, cbErr)
}

func TestRun_HubFailedStatus(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{
			OperationID: "op-1",
			Status:      "failed",
			State:       &RegistrationState{ErrorMessage: "quota exceeded", ErrorCode: 429, HasErrorCode: true},
		},
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: &fakeSecurityProvider{regID: "dev-1"}, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	require.Error(t, runErr)
	var hubErr *HubError
	require.ErrorAs(t, runErr, &hubErr)
	require.Equal(t, 429, hubErr.Code)

	result, _, calls := collect()
	require.Equal(t, 1, calls)
	require.Equal(t, LifecycleFailed, result.Lifecycle)
	require.NotNil(t, result.State)
	require.Equal(t, "quota exceeded", result.State.ErrorMessage)
}

func TestRun_DisabledStatus(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{OperationID: "op-1", Status: "disabled"},
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: &fakeSecurityProvider{regID: "dev-1"}, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	require.Error(t, runErr)
	var hubErr *HubError
	require.ErrorAs(t, runErr, &hubErr)
	result, _, calls := collect()
	require.Equal(t, 1, calls)
	require.Equal(t, LifecycleDisabled, result.Lifecycle)
}

func TestRun_UnparseableStatusIsAuthenticationFailure(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{OperationID: "op-1", Status: "bogus"},
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: &fakeSecurityProvider{regID: "dev-1"}, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	var authErr *AuthenticationFailureError
	require.ErrorAs(t, runErr, &authErr)
	_, _, calls := collect()
	require.Equal(t, 1, calls)
}

func TestRun_MissingOperationIDIsAuthenticationFailure(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{Status: "assigning"},
	}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: &fakeSecurityProvider{regID: "dev-1"}, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	var authErr *AuthenticationFailureError
	require.ErrorAs(t, runErr, &authErr)
	_, _, calls := collect()
	require.Equal(t, 1, calls)
}

func TestRun_TransportOpenErrorIsWrapped(t *testing.T) {
	transport := &openErrTransport{err: errors.New("dial tcp: timeout")}
	cb, collect := newCallbackCollector()
	task, err := New(&Config{SecurityProvider: &fakeSecurityProvider{regID: "dev-1"}, Callback: cb}, transport)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, runErr, &transportErr)
	_, _, calls := collect()
	require.Equal(t, 1, calls)
	require.Equal(t, 1, transport.closeCalls)
}

type openErrTransport struct {
	scriptedTransport
	err error
}

func (o *openErrTransport) Open(ctx context.Context, data RequestData) error {
	o.openCalls++
	return o.err
}

func TestNew_RejectsMissingCollaborators(t *testing.T) {
	cb, _ := newCallbackCollector()
	_, err := New(nil, &scriptedTransport{})
	require.Error(t, err)

	_, err = New(&Config{Callback: cb, SecurityProvider: &fakeSecurityProvider{}}, nil)
	require.Error(t, err)

	_, err = New(&Config{Callback: cb}, &scriptedTransport{})
	require.Error(t, err)

	_, err = New(&Config{SecurityProvider: &fakeSecurityProvider{}}, &scriptedTransport{})
	require.Error(t, err)
}

func TestRun_InvokesStatusObserver(t *testing.T) {
	transport := &scriptedTransport{
		registerResp: &RegistrationOperationStatus{
			OperationID: "op-1",
			Status:      "assigned",
			State:       &RegistrationState{AssignedHub: "hub.example.com", DeviceID: "dev-1"},
		},
	}
	var observed []LifecycleStatus
	cb, _ := newCallbackCollector()
	task, err := New(&Config{
		SecurityProvider: &fakeSecurityProvider{regID: "dev-1"},
		Callback:         cb,
		StatusObserver:   func(s LifecycleStatus) { observed = append(observed, s) },
	}, transport)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))
	require.Contains(t, observed, LifecycleAuthenticated)
	require.Contains(t, observed, LifecycleAssigned)
}

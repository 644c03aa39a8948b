package transport_test

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jairrab/iot-dps-client/dpsm"
	"github.com/jairrab/iot-dps-client/transport"
	"github.com/jairrab/iot-dps-client/transport/testdps"
)

type symmetricKeyProvider struct{ id string }

func (p *symmetricKeyProvider) RegistrationID() string           { return p.id }
func (p *symmetricKeyProvider) SSLContext() (*tls.Config, error) { return nil, nil }

func TestHTTPTransport_EndToEndAssigned(t *testing.T) {
	fake := testdps.New(nil, func(operationID string) testdps.Operation {
		return testdps.Operation{
			Statuses: []string{"assigning", "assigned"},
			State: map[string]any{
				"assignedHub": "hub.example.com",
				"deviceId":    "dev-1",
			},
		}
	})
	server := fake.Start()
	defer server.Close()

	ht := &transport.HTTPTransport{BaseURL: server.URL}

	var result *dpsm.RegistrationResult
	var callErr error
	cb := func(r *dpsm.RegistrationResult, err error, userCtx any) {
		result = r
		callErr = err
	}

	task, err := dpsm.New(&dpsm.Config{
		SecurityProvider: &symmetricKeyProvider{id: "dev-1"},
		Callback:         cb,
		Payload:          []byte(`{"registrationId":"dev-1"}`),
	}, ht)
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, callErr)
	require.Equal(t, dpsm.LifecycleAssigned, result.Lifecycle)
	require.Equal(t, "hub.example.com", result.State.AssignedHub)
}

func TestHTTPTransport_EndToEndFailed(t *testing.T) {
	fake := testdps.New(nil, func(operationID string) testdps.Operation {
		return testdps.Operation{
			Statuses: []string{"failed"},
			State: map[string]any{
				"errorMessage": "quota exceeded",
				"errorCode":    429,
			},
		}
	})
	server := fake.Start()
	defer server.Close()

	ht := &transport.HTTPTransport{BaseURL: server.URL}

	var callErr error
	cb := func(r *dpsm.RegistrationResult, err error, userCtx any) { callErr = err }

	task, err := dpsm.New(&dpsm.Config{
		SecurityProvider: &symmetricKeyProvider{id: "dev-1"},
		Callback:         cb,
	}, ht)
	require.NoError(t, err)

	runErr := task.Run(context.Background())
	require.Error(t, runErr)
	require.Error(t, callErr)
	var hubErr *dpsm.HubError
	require.ErrorAs(t, runErr, &hubErr)
	require.Equal(t, 429, hubErr.Code)
}

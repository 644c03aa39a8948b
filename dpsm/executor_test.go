package dpsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutor_SubmitReturnsResult(t *testing.T) {
	e := newExecutor()
	status, err := e.submit(context.Background(), "register", time.Second, func(ctx context.Context) (*RegistrationOperationStatus, error) {
		return &RegistrationOperationStatus{OperationID: "op-1"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "op-1", status.OperationID)
}

func TestExecutor_SubmitTimesOut(t *testing.T) {
	e := newExecutor()
	_, err := e.submit(context.Background(), "status", 10*time.Millisecond, func(ctx context.Context) (*RegistrationOperationStatus, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "status", timeoutErr.Step)
}

func TestExecutor_BoundsConcurrency(t *testing.T) {
	e := newExecutor()
	inFlight := make(chan struct{}, maxInFlight+1)
	release := make(chan struct{})
	done := make(chan struct{}, maxInFlight+1)

	submitOne := func() {
		_, _ = e.submit(context.Background(), "status", time.Second, func(ctx context.Context) (*RegistrationOperationStatus, error) {
			inFlight <- struct{}{}
			<-release
			<-inFlight
			return &RegistrationOperationStatus{}, nil
		})
		done <- struct{}{}
	}

	for i := 0; i < maxInFlight+1; i++ {
		go submitOne()
	}
	time.Sleep(20 * time.Millisecond)
	require.Len(t, inFlight, maxInFlight)
	close(release)
	for i := 0; i < maxInFlight+1; i++ {
		<-done
	}
}

func TestExecutor_ShutdownRejectsNewSubmissions(t *testing.T) {
	e := newExecutor()
	e.shutdownNow()
	_, err := e.submit(context.Background(), "status", time.Second, func(ctx context.Context) (*RegistrationOperationStatus, error) {
		return &RegistrationOperationStatus{}, nil
	})
	require.Error(t, err)
}

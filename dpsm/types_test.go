package dpsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProvisioningStatus(t *testing.T) {
	cases := map[string]ProvisioningStatus{
		"unassigned": StatusUnassigned,
		"Assigning":  StatusAssigning,
		" assigned ": StatusAssigned,
		"FAILED":     StatusFailed,
		"disabled":   StatusDisabled,
	}
	for raw, want := range cases {
		got, err := ParseProvisioningStatus(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseProvisioningStatus("")
	require.Error(t, err)

	_, err = ParseProvisioningStatus("assignedx")
	require.Error(t, err)
}

func TestProvisioningStatus_Terminal(t *testing.T) {
	require.False(t, StatusUnassigned.Terminal())
	require.False(t, StatusAssigning.Terminal())
	require.True(t, StatusAssigned.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusDisabled.Terminal())
}

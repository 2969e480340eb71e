// +build integration

package security

import (
	"context"
	"testing"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/require"
)

func TestGate_RunCVE2022_0492Check_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}

	gate := NewGate(cli)
	err = gate.RunCVE2022_0492Check(context.Background())
	require.NoError(t, err)
}

func TestGate_RunAll_SkipsGPUCheckInDebugMode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}

	gate := NewGate(cli)
	err = gate.RunAll(context.Background(), true, "1.17.4")
	require.NoError(t, err)
}

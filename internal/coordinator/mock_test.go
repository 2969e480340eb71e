package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

func TestMockClient_InitialMsgReturnsProgrammedRequest(t *testing.T) {
	m := NewMockClient("job-1")
	m.InitialRequest = &protocol.InitialJobRequest{JobUUID: "job-1", DockerImage: "alpine"}

	req, err := m.InitialMsg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpine", req.DockerImage)
}

func TestMockClient_InitialMsgUnprogrammedErrors(t *testing.T) {
	m := NewMockClient("job-1")
	_, err := m.InitialMsg(context.Background())
	assert.Error(t, err)
}

func TestMockClient_SendResultRecordsPayload(t *testing.T) {
	m := NewMockClient("job-1")
	result := protocol.JobResult{Stdout: "hello", Artifacts: map[string]string{"a": "b"}}

	require.NoError(t, m.SendResult(context.Background(), result))
	require.NotNil(t, m.Result)
	assert.Equal(t, "hello", m.Result.Stdout)
}

func TestMockClient_SendErrPropagates(t *testing.T) {
	m := NewMockClient("job-1")
	m.SendErr = assertError

	assert.Error(t, m.SendExecutorReady(context.Background()))
	assert.False(t, m.ExecutorReadySent)
}

func TestMockClient_OpenAndClose(t *testing.T) {
	m := NewMockClient("job-1")
	require.NoError(t, m.Open(context.Background()))
	assert.True(t, m.Opened)
	require.NoError(t, m.Close())
	assert.True(t, m.Closed)
}

var assertError = mockErr("boom")

type mockErr string

func (e mockErr) Error() string { return string(e) }

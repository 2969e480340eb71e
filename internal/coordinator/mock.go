package coordinator

import (
	"context"
	"errors"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// MockClient is an in-memory Client for driver tests: the initial and
// full payloads are pre-programmed, and every outbound Send* call is
// recorded for later assertions instead of going over the wire.
type MockClient struct {
	jobUUID string

	InitialRequest *protocol.InitialJobRequest
	InitialErr     error
	FullRequest    *protocol.FullJobRequest
	FullErr        error

	OpenErr  error
	SendErr  error

	Opened bool
	Closed bool

	ExecutorReadySent    bool
	StreamingReadyCert   string
	StreamingReadySent   bool
	VolumesReadySent     bool
	ExecutionDoneSent    bool
	Result               *protocol.JobResult
	JobFailed            *protocol.V0JobFailedRequest
	HordeFailed          *protocol.V0HordeFailedRequest

	// SentSequence records every outbound Send* call in order, by
	// message name, so tests can assert stage-transition ordering
	// rather than just presence.
	SentSequence []string
}

// NewMockClient constructs a MockClient bound to jobUUID, with no
// responses programmed yet. Set InitialRequest/FullRequest (or their
// *Err counterparts) before the driver calls InitialMsg/FullPayload.
func NewMockClient(jobUUID string) *MockClient {
	return &MockClient{jobUUID: jobUUID}
}

func (m *MockClient) JobUUID() string { return m.jobUUID }

func (m *MockClient) Open(ctx context.Context) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.Opened = true
	return nil
}

func (m *MockClient) Close() error {
	m.Closed = true
	return nil
}

func (m *MockClient) InitialMsg(ctx context.Context) (*protocol.InitialJobRequest, error) {
	if m.InitialErr != nil {
		return nil, m.InitialErr
	}
	if m.InitialRequest == nil {
		return nil, errors.New("coordinator: mock InitialRequest not programmed")
	}
	return m.InitialRequest, nil
}

func (m *MockClient) FullPayload(ctx context.Context) (*protocol.FullJobRequest, error) {
	if m.FullErr != nil {
		return nil, m.FullErr
	}
	if m.FullRequest == nil {
		return nil, errors.New("coordinator: mock FullRequest not programmed")
	}
	return m.FullRequest, nil
}

func (m *MockClient) SendExecutorReady(ctx context.Context) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.ExecutorReadySent = true
	m.SentSequence = append(m.SentSequence, "ExecutorReady")
	return nil
}

func (m *MockClient) SendStreamingJobReady(ctx context.Context, certificate string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.StreamingReadyCert = certificate
	m.StreamingReadySent = true
	m.SentSequence = append(m.SentSequence, "StreamingJobReady")
	return nil
}

func (m *MockClient) SendVolumesReady(ctx context.Context) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.VolumesReadySent = true
	m.SentSequence = append(m.SentSequence, "VolumesReady")
	return nil
}

func (m *MockClient) SendExecutionDone(ctx context.Context) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.ExecutionDoneSent = true
	m.SentSequence = append(m.SentSequence, "ExecutionDone")
	return nil
}

func (m *MockClient) SendResult(ctx context.Context, result protocol.JobResult) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Result = &result
	m.SentSequence = append(m.SentSequence, "JobFinished")
	return nil
}

func (m *MockClient) SendJobFailed(ctx context.Context, req protocol.V0JobFailedRequest) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.JobFailed = &req
	m.SentSequence = append(m.SentSequence, "JobFailed")
	return nil
}

func (m *MockClient) SendHordeFailed(ctx context.Context, req protocol.V0HordeFailedRequest) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.HordeFailed = &req
	m.SentSequence = append(m.SentSequence, "HordeFailed")
	return nil
}

var _ Client = (*MockClient)(nil)

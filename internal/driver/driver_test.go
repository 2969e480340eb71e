package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystcommunity/executor-driver/internal/coordinator"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/runner"
)

// alwaysPassGate satisfies SecurityGate without touching Docker.
type alwaysPassGate struct {
	err          error
	sawSkipValue bool
	skipArg      bool
}

func (g *alwaysPassGate) RunAll(ctx context.Context, skipGPUCheck bool, minToolkitVersion string) error {
	g.sawSkipValue = true
	g.skipArg = skipGPUCheck
	return g.err
}

func timeoutSeconds(n int) *int { return &n }

func basicInitialRequest() *protocol.InitialJobRequest {
	return &protocol.InitialJobRequest{
		MessageType:    "V0InitialJobRequest",
		DockerImage:    "alpine:latest",
		JobUUID:        "job-1",
		TimeoutSeconds: timeoutSeconds(60),
	}
}

func basicFullRequest() *protocol.FullJobRequest {
	return &protocol.FullJobRequest{
		MessageType:  "V0JobRequest",
		DockerImage:  "alpine:latest",
		DockerRunCmd: []string{"echo", "hi"},
		JobUUID:      "job-1",
	}
}

func TestDriver_HappyPathSingleTimeout(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{ReturnCode: 0}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.NoError(t, err)
	assert.True(t, coord.Opened)
	assert.True(t, coord.Closed)
	assert.True(t, coord.ExecutorReadySent)
	assert.True(t, coord.VolumesReadySent)
	assert.True(t, coord.ExecutionDoneSent)
	assert.NotNil(t, coord.Result)
	assert.Nil(t, coord.JobFailed)
	assert.Nil(t, coord.HordeFailed)
	assert.Equal(t, 1, fake.CleanCallCount)
	assert.True(t, fake.Closed)
	assert.True(t, gate.sawSkipValue)
	assert.False(t, gate.skipArg)
}

func TestDriver_HappyPathMessageOrderIsExecutorReadyVolumesReadyExecutionDoneJobFinished(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{ReturnCode: 0}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"ExecutorReady", "VolumesReady", "ExecutionDone", "JobFinished"}, coord.SentSequence)
}

func TestDriver_StreamingMessageOrderInsertsStreamingJobReadyAfterVolumesReady(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	initial := basicInitialRequest()
	initial.StreamingDetails = &protocol.StreamingDetails{ExecutorIP: "10.0.0.5", PublicKey: "pubkey"}
	coord.InitialRequest = initial
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{
		Streaming:   true,
		Certificate: "-----BEGIN CERTIFICATE-----fake-----END CERTIFICATE-----",
		Result:      &protocol.ExecutionResult{ReturnCode: 0},
	}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t,
		[]string{"ExecutorReady", "VolumesReady", "StreamingJobReady", "ExecutionDone", "JobFinished"},
		coord.SentSequence,
	)
}

// A failure mid-pipeline still leaves the sent sequence a strict
// prefix of the full happy-path ordering, terminated by exactly one
// of JobFinished/JobFailed/HordeFailed.
func TestDriver_DownloadFailureMessageOrderIsPrefixTerminatedByJobFailed(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{DownloadErr: errors.New("zip url: 404 not found")}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"ExecutorReady", "JobFailed"}, coord.SentSequence)
	assert.Nil(t, coord.Result)
	assert.Nil(t, coord.HordeFailed)
}

func TestDriver_StreamingJobSendsCertificateBeforeWait(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	initial := basicInitialRequest()
	initial.StreamingDetails = &protocol.StreamingDetails{ExecutorIP: "10.0.0.5", PublicKey: "pubkey"}
	coord.InitialRequest = initial
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{
		Streaming:   true,
		Certificate: "-----BEGIN CERTIFICATE-----fake-----END CERTIFICATE-----",
		Result:      &protocol.ExecutionResult{ReturnCode: 0},
	}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.NoError(t, err)
	assert.True(t, coord.StreamingReadySent)
	assert.Equal(t, fake.Certificate, coord.StreamingReadyCert)
}

func TestDriver_NoTimingInformationIsHordeError(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	initial := basicInitialRequest()
	initial.TimeoutSeconds = nil
	coord.InitialRequest = initial
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{ReturnCode: 0}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var hordeErr *HordeError
	require.True(t, errors.As(err, &hordeErr))
	assert.Equal(t, protocol.HordeFailureUnexpected, hordeErr.Reason)
	assert.NotNil(t, coord.HordeFailed)
	assert.Nil(t, coord.JobFailed)
}

func TestDriver_SecurityGateFailureIsHordeError(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()

	fake := &runner.FakeRunner{}
	gate := &alwaysPassGate{err: errors.New("CVE-2022-0492 check failed")}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var hordeErr *HordeError
	require.True(t, errors.As(err, &hordeErr))
	assert.Equal(t, protocol.HordeFailureSecurityCheckFailed, hordeErr.Reason)
	require.NotNil(t, coord.HordeFailed)
	assert.Equal(t, protocol.HordeFailureSecurityCheckFailed, coord.HordeFailed.Reason)
	assert.Equal(t, 1, fake.CleanCallCount)
}

func TestDriver_NonzeroReturnCodeIsJobError(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{ReturnCode: 17}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, protocol.JobFailureNonzeroReturnCode, jobErr.Reason)
	assert.Equal(t, protocol.StageExecution, jobErr.Stage)
	require.NotNil(t, coord.JobFailed)
	require.NotNil(t, coord.JobFailed.DockerProcessExitStatus)
	assert.Equal(t, 17, *coord.JobFailed.DockerProcessExitStatus)
}

func TestDriver_ExecutionTimedOutResultIsJobError(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{TimedOut: true}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, protocol.JobFailureTimeout, jobErr.Reason)
	assert.Equal(t, protocol.StageExecution, jobErr.Stage)
}

func TestDriver_DownloadFailureIsJobErrorWithDownloadFailedReason(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{DownloadErr: errors.New("zip url: 404 not found")}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, protocol.JobFailureDownloadFailed, jobErr.Reason)
	assert.Equal(t, protocol.StageVolumeDownload, jobErr.Stage)
}

func TestDriver_UploadFailureIsJobErrorWithUploadFailedReason(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{
		Result:    &protocol.ExecutionResult{ReturnCode: 0},
		UploadErr: errors.New("put: connection refused"),
	}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, protocol.JobFailureUploadFailed, jobErr.Reason)
	assert.Equal(t, protocol.StageResultUpload, jobErr.Stage)
}

func TestDriver_UnexpectedErrorIsWrappedAndReported(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialErr = errors.New("websocket: connection reset")

	fake := &runner.FakeRunner{}
	gate := &alwaysPassGate{}

	reported := false
	reporter := reporterFunc(func(err error, stage string) { reported = true })

	d := New(coord, fake, gate, 30, "1.17.4", WithErrorReporter(reporter))
	err := d.Execute(context.Background())

	require.Error(t, err)
	var hordeErr *HordeError
	require.True(t, errors.As(err, &hordeErr))
	assert.Equal(t, protocol.HordeFailureUnexpected, hordeErr.Reason)
	assert.True(t, reported)
	assert.Equal(t, 1, fake.CleanCallCount)
}

func TestDriver_CleanNotCalledWhenCoordinatorNeverOpens(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.OpenErr = errors.New("dial tcp: refused")

	fake := &runner.FakeRunner{}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4")
	err := d.Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, 0, fake.CleanCallCount, "Clean is only reachable once the coordinator link is open, matching the scope the original's async-with-miner_client wraps")
}

func TestDriver_SkipGPUCheckOptionPropagatesToGate(t *testing.T) {
	coord := coordinator.NewMockClient("job-1")
	coord.InitialRequest = basicInitialRequest()
	coord.FullRequest = basicFullRequest()

	fake := &runner.FakeRunner{Result: &protocol.ExecutionResult{ReturnCode: 0}}
	gate := &alwaysPassGate{}

	d := New(coord, fake, gate, 30, "1.17.4", WithSkipGPUCheck(true))
	err := d.Execute(context.Background())

	require.NoError(t, err)
	assert.True(t, gate.skipArg)
}

// reporterFunc adapts a plain function to the ErrorReporter interface.
type reporterFunc func(err error, stage string)

func (f reporterFunc) ReportError(err error, stage string) { f(err, stage) }

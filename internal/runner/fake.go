package runner

import (
	"context"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// FakeRunner is a programmable JobRunner test double for driver tests,
// avoiding a live Docker daemon the way the teacher's
// worker.JobProcessorInterface tests stub dependencies behind an
// interface rather than hitting real infrastructure.
type FakeRunner struct {
	PrepareInitialErr error
	PrepareFullErr    error
	DownloadErr       error
	StartJobErr       error
	WaitErr           error
	UploadErr         error
	CertErr           error
	CleanErr          error

	Streaming   bool
	Certificate string

	Result *protocol.ExecutionResult
	Artifacts map[string]string
	UploadMap map[string]string

	InitialReceived *protocol.InitialJobRequest
	FullReceived    *protocol.FullJobRequest

	CleanCallCount int
	Closed         bool
}

func (f *FakeRunner) PrepareInitial(ctx context.Context, req *protocol.InitialJobRequest) error {
	f.InitialReceived = req
	return f.PrepareInitialErr
}

func (f *FakeRunner) PrepareFull(ctx context.Context, req *protocol.FullJobRequest) error {
	f.FullReceived = req
	return f.PrepareFullErr
}

func (f *FakeRunner) DownloadVolume(ctx context.Context) error {
	return f.DownloadErr
}

func (f *FakeRunner) StartJob(ctx context.Context) (RunningJob, error) {
	if f.StartJobErr != nil {
		return nil, f.StartJobErr
	}
	return &fakeRunningJob{fake: f}, nil
}

func (f *FakeRunner) HarvestArtifacts(ctx context.Context) (map[string]string, error) {
	if f.Artifacts == nil {
		return map[string]string{}, nil
	}
	return f.Artifacts, nil
}

func (f *FakeRunner) UploadResults(ctx context.Context) (map[string]string, error) {
	if f.UploadErr != nil {
		return nil, f.UploadErr
	}
	if f.UploadMap == nil {
		return map[string]string{}, nil
	}
	return f.UploadMap, nil
}

func (f *FakeRunner) GenerateStreamingCertificate(ctx context.Context) (string, error) {
	if f.CertErr != nil {
		return "", f.CertErr
	}
	return f.Certificate, nil
}

func (f *FakeRunner) Clean(ctx context.Context) error {
	f.CleanCallCount++
	return f.CleanErr
}

func (f *FakeRunner) IsStreamingJob() bool { return f.Streaming }

func (f *FakeRunner) ExecutionResult() *protocol.ExecutionResult { return f.Result }

type fakeRunningJob struct {
	fake *FakeRunner
}

func (j *fakeRunningJob) Wait(ctx context.Context) (*protocol.ExecutionResult, error) {
	if j.fake.WaitErr != nil {
		return nil, j.fake.WaitErr
	}
	if j.fake.Result == nil {
		j.fake.Result = &protocol.ExecutionResult{ReturnCode: 0}
	}
	return j.fake.Result, nil
}

func (j *fakeRunningJob) Close(ctx context.Context) error {
	j.fake.Closed = true
	return nil
}

var _ JobRunner = (*FakeRunner)(nil)

// Package runner implements the Job Runner contract (spec §4.5): the
// pluggable collaborator that materializes volumes, runs the job
// container, harvests artifacts, and uploads results. DockerJobRunner
// is the reference implementation; the interface exists so the driver
// can be tested against a fake.
package runner

import (
	"context"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// RunningJob is the handle returned by StartJob's scoped acquisition:
// the job container is live only between StartJob returning and
// Close being called (spec §4.5 "scoped acquisition").
type RunningJob interface {
	// Wait blocks until the container exits (or ctx is cancelled) and
	// returns the populated execution result.
	Wait(ctx context.Context) (*protocol.ExecutionResult, error)

	// Close tears down the container. Safe to call multiple times.
	Close(ctx context.Context) error
}

// JobRunner is the collaborator the driver drives through each stage.
// Every method except Clean is called at most once per job; Clean must
// be idempotent since the driver calls it unconditionally on the way
// out, success or failure.
type JobRunner interface {
	// PrepareInitial handles the first inbound message (executor class,
	// image pull hints, streaming details).
	PrepareInitial(ctx context.Context, req *protocol.InitialJobRequest) error

	// PrepareFull handles the second inbound message (the run command,
	// volume, and output-upload specifications).
	PrepareFull(ctx context.Context, req *protocol.FullJobRequest) error

	// DownloadVolume materializes the job's input volume into the
	// workspace the job container will see at /job.
	DownloadVolume(ctx context.Context) error

	// StartJob starts the job container and returns a scoped handle.
	// If IsStreamingJob is true, the driver sends the streaming-ready
	// message before calling Wait so the miner can connect while the
	// job still runs.
	StartJob(ctx context.Context) (RunningJob, error)

	// HarvestArtifacts collects the job's declared artifacts directory
	// into a map from each file's absolute in-container path to its
	// base64 content, dropping any file over the configured size cap.
	HarvestArtifacts(ctx context.Context) (map[string]string, error)

	// UploadResults delivers artifacts per the job's OutputUpload
	// specification, returning the per-destination upload report.
	UploadResults(ctx context.Context) (map[string]string, error)

	// GenerateStreamingCertificate produces the TLS material the
	// executor will present to the miner's streaming client. Only
	// called when the job requested streaming.
	GenerateStreamingCertificate(ctx context.Context) (string, error)

	// Clean releases every resource the runner acquired (containers,
	// temp directories). Must not fail on a partially-prepared runner
	// and must be safe to call more than once.
	Clean(ctx context.Context) error

	// IsStreamingJob reports whether streaming was requested in the
	// initial message.
	IsStreamingJob() bool

	// ExecutionResult returns the result captured by the last
	// RunningJob.Wait call, or nil if execution hasn't finished.
	ExecutionResult() *protocol.ExecutionResult
}

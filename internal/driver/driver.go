// Package driver implements the Driver State Machine (spec §4.4): the
// linear startup -> volume_download -> execution -> result_upload
// pipeline, deadline-managed end to end, translating timeouts and
// runner failures into the two-tier JobError/HordeError wire
// vocabulary.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/catalystcommunity/executor-driver/internal/coordinator"
	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/runner"
	"github.com/catalystcommunity/executor-driver/internal/timer"
)

// SecurityGate is the subset of security.Gate the driver depends on,
// narrowed to an interface so the driver can be tested without a live
// Docker daemon.
type SecurityGate interface {
	RunAll(ctx context.Context, skipGPUCheck bool, minToolkitVersion string) error
}

// Driver owns one job end to end. It is not reusable across jobs.
type Driver struct {
	coordClient coordinator.Client
	runner      runner.JobRunner
	gate        SecurityGate
	reporter    ErrorReporter

	startupTimeLimitSeconds float64
	skipGPUCheck            bool
	nvidiaMinVersion        string

	deadline     *timer.Timer
	currentStage protocol.JobStage

	specs       protocol.MachineSpecs
	certificate string
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithErrorReporter overrides the default no-op ErrorReporter.
func WithErrorReporter(r ErrorReporter) Option {
	return func(d *Driver) { d.reporter = r }
}

// WithSkipGPUCheck skips the NVIDIA Container Toolkit probe (but never
// the CVE-2022-0492 probe), mirroring DEBUG_NO_GPU_MODE.
func WithSkipGPUCheck(skip bool) Option {
	return func(d *Driver) { d.skipGPUCheck = skip }
}

// New constructs a Driver for a single job.
func New(coordClient coordinator.Client, jobRunner runner.JobRunner, gate SecurityGate, startupTimeLimitSeconds float64, nvidiaMinVersion string, opts ...Option) *Driver {
	d := &Driver{
		coordClient:             coordClient,
		runner:                  jobRunner,
		gate:                    gate,
		reporter:                NoopReporter,
		startupTimeLimitSeconds: startupTimeLimitSeconds,
		nvidiaMinVersion:        nvidiaMinVersion,
		deadline:                timer.New(),
		currentStage:            protocol.StageUnknown,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs the whole job end to end: it opens the coordinator
// link, drives every stage, reports any failure back over that link,
// and, once the link is open, unconditionally cleans up the runner on
// the way out. If the link cannot be opened, Execute returns that error
// at once and the runner is not cleaned. The returned error is the same
// one reported to the miner, for the caller's own logs.
func (d *Driver) Execute(ctx context.Context) error {
	if err := d.coordClient.Open(ctx); err != nil {
		return fmt.Errorf("opening coordinator connection: %w", err)
	}
	defer func() {
		if err := d.coordClient.Close(); err != nil {
			logging.Log.WithError(err).Warn("closing coordinator connection")
		}
	}()

	defer func() {
		if err := d.runner.Clean(context.Background()); err != nil {
			logging.Log.WithError(err).Error("job cleanup failed")
		}
	}()

	err := d.runStages(ctx)
	if err == nil {
		return nil
	}

	return d.reportFailure(ctx, err)
}

func (d *Driver) reportFailure(ctx context.Context, err error) error {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		logging.Log.WithError(err).Error("job failed")
		d.sendJobFailed(ctx, jobErr)
		return err
	}

	var hordeErr *HordeError
	if errors.As(err, &hordeErr) {
		logging.Log.WithError(err).Error("horde failure")
		d.sendHordeFailed(ctx, hordeErr)
		return err
	}

	wrapped := wrapUnexpected(err)
	wrapped.Context = protocol.FailureContext{"stage": string(d.currentStage)}
	d.reporter.ReportError(err, string(d.currentStage))
	logging.Log.WithError(err).Error("unexpected error, reporting as horde failure")
	d.sendHordeFailed(ctx, wrapped)
	return wrapped
}

// runStages is the Go translation of job_driver.py's _execute: a
// strictly ordered sequence of deadline-bounded stages, each one's
// timeout mapped to the stage-appropriate failure.
func (d *Driver) runStages(ctx context.Context) error {
	d.deadline.Set(d.startupTimeLimitSeconds)

	initial, err := d.runWithDeadline(ctx, d.startupStage)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newHordeError(protocol.HordeFailureUnexpected, "Timed out waiting for initial job details from miner")
		}
		return err
	}

	timingDetails := initial.ExecutorTiming
	switch {
	case timingDetails != nil:
		d.deadline.Set(timingDetails.AllowedLeeway)
	case initial.TimeoutSeconds != nil:
		d.deadline.Set(float64(*initial.TimeoutSeconds))
	default:
		return newHordeError(protocol.HordeFailureUnexpected, "No timing received: either timeout_seconds or timing_details must be set")
	}

	if timingDetails != nil {
		d.deadline.Extend(timingDetails.DownloadTimeLimit)
	}
	if _, err := d.runWithDeadline(ctx, d.downloadStageWrapper); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newJobError(protocol.StageVolumeDownload, protocol.JobFailureTimeout, "Download time exceeded")
		}
		return err
	}

	if timingDetails != nil {
		d.deadline.Extend(timingDetails.ExecutionTimeLimit)
		if d.runner.IsStreamingJob() {
			d.deadline.Extend(timingDetails.StreamingStartTimeLimit)
		}
	}
	if _, err := d.runWithDeadline(ctx, d.executionStageWrapper); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newJobError(protocol.StageExecution, protocol.JobFailureTimeout, "Execution time exceeded")
		}
		return err
	}

	if timingDetails != nil {
		d.deadline.Extend(timingDetails.UploadTimeLimit)
	}
	if _, err := d.runWithDeadline(ctx, d.uploadStageWrapper); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newJobError(protocol.StageResultUpload, protocol.JobFailureTimeout, "Upload time exceeded")
		}
		return err
	}

	logging.Log.WithField("time_left_seconds", d.deadline.TimeLeft().Seconds()).Debug("job finished")
	return nil
}

// runWithDeadline runs fn under a context bounded by the driver's
// current deadline, surfacing context.DeadlineExceeded distinctly from
// any other error fn returns so the caller can pick the
// stage-appropriate failure kind.
func (d *Driver) runWithDeadline(ctx context.Context, fn func(ctx context.Context) (*protocol.InitialJobRequest, error)) (*protocol.InitialJobRequest, error) {
	childCtx, cancel := context.WithTimeout(ctx, d.deadline.TimeLeft())
	defer cancel()

	result, err := fn(childCtx)
	if err != nil && errors.Is(childCtx.Err(), context.DeadlineExceeded) {
		return nil, context.DeadlineExceeded
	}
	return result, err
}

func (d *Driver) startupStage(ctx context.Context) (*protocol.InitialJobRequest, error) {
	d.enterStage(protocol.StageExecutorStartup)

	// Machine fingerprinting is skipped entirely in debug-no-GPU mode,
	// not just the NVIDIA-specific probe below.
	if !d.skipGPUCheck {
		d.specs = captureMachineSpecs(ctx)
	}

	if err := d.gate.RunAll(ctx, d.skipGPUCheck, d.nvidiaMinVersion); err != nil {
		return nil, newHordeError(protocol.HordeFailureSecurityCheckFailed, err.Error())
	}

	initial, err := d.coordClient.InitialMsg(ctx)
	if err != nil {
		return nil, fmt.Errorf("awaiting initial job request: %w", err)
	}

	if err := d.runner.PrepareInitial(ctx, initial); err != nil {
		return nil, fmt.Errorf("preparing runner for initial job request: %w", err)
	}

	if err := d.coordClient.SendExecutorReady(ctx); err != nil {
		return nil, fmt.Errorf("sending executor_ready: %w", err)
	}

	if initial.StreamingDetails != nil {
		cert, err := d.runner.GenerateStreamingCertificate(ctx)
		if err != nil {
			return nil, fmt.Errorf("generating streaming certificate: %w", err)
		}
		d.certificate = cert
	}

	return initial, nil
}

func (d *Driver) downloadStageWrapper(ctx context.Context) (*protocol.InitialJobRequest, error) {
	return nil, d.downloadStage(ctx)
}

func (d *Driver) downloadStage(ctx context.Context) error {
	d.enterStage(protocol.StageVolumeDownload)

	full, err := d.coordClient.FullPayload(ctx)
	if err != nil {
		return fmt.Errorf("awaiting full job request: %w", err)
	}

	if err := d.runner.PrepareFull(ctx, full); err != nil {
		return fmt.Errorf("preparing runner for full job request: %w", err)
	}

	if err := d.runner.DownloadVolume(ctx); err != nil {
		return newJobError(protocol.StageVolumeDownload, protocol.JobFailureDownloadFailed, err.Error())
	}

	if err := d.coordClient.SendVolumesReady(ctx); err != nil {
		return fmt.Errorf("sending volumes_ready: %w", err)
	}
	return nil
}

func (d *Driver) executionStageWrapper(ctx context.Context) (*protocol.InitialJobRequest, error) {
	return nil, d.executionStage(ctx)
}

func (d *Driver) executionStage(ctx context.Context) error {
	d.enterStage(protocol.StageExecution)

	job, err := d.runner.StartJob(ctx)
	if err != nil {
		return fmt.Errorf("starting job container: %w", err)
	}
	defer func() {
		if err := job.Close(context.Background()); err != nil {
			logging.Log.WithError(err).Warn("closing job container")
		}
	}()

	if d.runner.IsStreamingJob() {
		if d.certificate == "" {
			return fmt.Errorf("streaming job requested but no certificate was generated")
		}
		if err := d.coordClient.SendStreamingJobReady(ctx, d.certificate); err != nil {
			return fmt.Errorf("sending streaming_job_ready: %w", err)
		}
	}

	if _, err := job.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for job container: %w", err)
	}

	if err := d.failIfExecutionUnsuccessful(); err != nil {
		return err
	}

	if err := d.coordClient.SendExecutionDone(ctx); err != nil {
		return fmt.Errorf("sending execution_done: %w", err)
	}
	return nil
}

func (d *Driver) failIfExecutionUnsuccessful() error {
	result := d.runner.ExecutionResult()
	if result == nil {
		return fmt.Errorf("no execution result available after job container exited")
	}
	if result.TimedOut {
		return newJobError(protocol.StageExecution, protocol.JobFailureTimeout, "Job container timed out during execution")
	}
	if result.ReturnCode != 0 {
		return newJobError(protocol.StageExecution, protocol.JobFailureNonzeroReturnCode,
			fmt.Sprintf("Job container exited with non-zero exit code: %d", result.ReturnCode))
	}
	return nil
}

func (d *Driver) uploadStageWrapper(ctx context.Context) (*protocol.InitialJobRequest, error) {
	return nil, d.uploadStage(ctx)
}

func (d *Driver) uploadStage(ctx context.Context) error {
	d.enterStage(protocol.StageResultUpload)

	artifacts, err := d.runner.HarvestArtifacts(ctx)
	if err != nil {
		return newJobError(protocol.StageResultUpload, protocol.JobFailureUploadFailed, err.Error())
	}

	uploadResults, err := d.runner.UploadResults(ctx)
	if err != nil {
		return newJobError(protocol.StageResultUpload, protocol.JobFailureUploadFailed, err.Error())
	}

	result := d.runner.ExecutionResult()
	jobResult := protocol.JobResult{
		Artifacts:     artifacts,
		UploadResults: uploadResults,
		Specs:         d.specs,
	}
	if result != nil {
		jobResult.Stdout = string(result.Stdout)
		jobResult.Stderr = string(result.Stderr)
	}

	if err := d.coordClient.SendResult(ctx, jobResult); err != nil {
		return fmt.Errorf("sending result: %w", err)
	}
	return nil
}

func (d *Driver) enterStage(stage protocol.JobStage) {
	d.currentStage = stage
	logging.Log.WithField("stage", stage).WithField("time_left_seconds", d.deadline.TimeLeft().Seconds()).
		Debug("entering stage")
}

func (d *Driver) sendJobFailed(ctx context.Context, e *JobError) {
	result := d.runner.ExecutionResult()
	req := protocol.V0JobFailedRequest{
		Stage:   e.Stage,
		Reason:  e.Reason,
		Message: e.Message,
		Context: e.Context,
	}
	if result != nil {
		exitStatus := result.ReturnCode
		stdout := string(result.Stdout)
		stderr := string(result.Stderr)
		req.DockerProcessExitStatus = &exitStatus
		req.DockerProcessStdout = &stdout
		req.DockerProcessStderr = &stderr
	}
	if err := d.coordClient.SendJobFailed(ctx, req); err != nil {
		logging.Log.WithError(err).Error("failed to report job failure to coordinator")
	}
}

func (d *Driver) sendHordeFailed(ctx context.Context, e *HordeError) {
	req := protocol.V0HordeFailedRequest{
		ReportedBy: protocol.ParticipantExecutor,
		Reason:     e.Reason,
		Message:    e.Message,
		Context:    e.Context,
	}
	if err := d.coordClient.SendHordeFailed(ctx, req); err != nil {
		logging.Log.WithError(err).Error("failed to report horde failure to coordinator")
	}
}

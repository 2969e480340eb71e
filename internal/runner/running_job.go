package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// dockerRunningJob is the scoped handle StartJob returns: the
// container is considered live from construction until Close.
type dockerRunningJob struct {
	runner      *DockerJobRunner
	containerID string
	waited      bool
}

func (j *dockerRunningJob) Wait(ctx context.Context) (*protocol.ExecutionResult, error) {
	statusCh, errCh := j.runner.client.ContainerWait(ctx, j.containerID, container.WaitConditionNotRunning)

	var exitCode int
	var timedOut bool

	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("waiting for job container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		timedOut = true
	}

	stdout, stderr, err := j.fetchLogs(context.Background())
	if err != nil {
		return nil, err
	}

	result := &protocol.ExecutionResult{
		ReturnCode: exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		TimedOut:   timedOut,
	}
	j.waited = true
	j.runner.execResult = result

	if timedOut {
		return result, ctx.Err()
	}
	return result, nil
}

func (j *dockerRunningJob) fetchLogs(ctx context.Context) (stdout, stderr []byte, err error) {
	logs, err := j.runner.client.ContainerLogs(ctx, j.containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching job container logs: %w", err)
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("demultiplexing job container logs: %w", err)
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
}

func (j *dockerRunningJob) Close(ctx context.Context) error {
	return j.runner.client.ContainerRemove(ctx, j.containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

var _ RunningJob = (*dockerRunningJob)(nil)

package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// DockerJobRunner is the reference JobRunner implementation, adapted
// from the teacher's DockerRunner (worker/docker_runner.go): same
// ContainerCreate/Start/Wait/Remove sequence, generalized from a
// long-running worker job to the driver's single-job scope and
// extended with volume materialization, artifact harvesting, and
// result upload.
type DockerJobRunner struct {
	client  *client.Client
	jobUUID string

	workDir               string
	inputDir              string
	artifactsDir          string
	containerArtifactsDir string

	maxArtifactBytes int64

	materializer *volumeMaterializer
	uploader     *uploader

	initial *protocol.InitialJobRequest
	full    *protocol.FullJobRequest

	containerID string
	execResult  *protocol.ExecutionResult

	certPEM []byte
}

// NewDockerJobRunner constructs a runner rooted at workDir (a
// per-job scratch directory that Clean removes along with its contents).
func NewDockerJobRunner(cli *client.Client, jobUUID, workDir string, maxVolumeBytes, maxArtifactBytes int64) *DockerJobRunner {
	return &DockerJobRunner{
		client:           cli,
		jobUUID:          jobUUID,
		workDir:          workDir,
		inputDir:         filepath.Join(workDir, "job"),
		maxArtifactBytes: maxArtifactBytes,
		materializer:     newVolumeMaterializer(maxVolumeBytes),
		uploader:         newUploader(),
	}
}

func (r *DockerJobRunner) PrepareInitial(ctx context.Context, req *protocol.InitialJobRequest) error {
	r.initial = req
	if err := os.MkdirAll(r.inputDir, 0o755); err != nil {
		return fmt.Errorf("preparing job workspace: %w", err)
	}
	if err := r.ensureImage(ctx, req.DockerImage); err != nil {
		return fmt.Errorf("pulling executor image ahead of job details: %w", err)
	}
	return nil
}

func (r *DockerJobRunner) PrepareFull(ctx context.Context, req *protocol.FullJobRequest) error {
	r.full = req
	r.containerArtifactsDir = artifactsDirOrDefault(req.ArtifactsDir)
	r.artifactsDir = filepath.Join(r.inputDir, r.containerArtifactsDir)
	if err := os.MkdirAll(r.artifactsDir, 0o755); err != nil {
		return fmt.Errorf("preparing artifacts directory: %w", err)
	}
	return nil
}

// artifactsDirOrDefault returns dir, or the spec's default in-container
// artifacts path ("/artifacts") if dir is unset.
func artifactsDirOrDefault(dir string) string {
	if dir == "" {
		return "/artifacts"
	}
	return dir
}

func (r *DockerJobRunner) DownloadVolume(ctx context.Context) error {
	if r.full == nil || r.full.Volume == nil {
		return fmt.Errorf("no volume to download: full job request not prepared")
	}
	return r.materializer.materialize(ctx, r.full.Volume, r.inputDir)
}

func (r *DockerJobRunner) IsStreamingJob() bool {
	return r.initial != nil && r.initial.StreamingDetails != nil
}

func (r *DockerJobRunner) GenerateStreamingCertificate(ctx context.Context) (string, error) {
	if r.initial == nil || r.initial.StreamingDetails == nil {
		return "", fmt.Errorf("streaming was not requested")
	}
	certPEM, _, err := generateSelfSignedCertificate(r.initial.StreamingDetails.ExecutorIP)
	if err != nil {
		return "", err
	}
	r.certPEM = certPEM
	return string(certPEM), nil
}

func (r *DockerJobRunner) StartJob(ctx context.Context) (RunningJob, error) {
	if r.full == nil {
		return nil, fmt.Errorf("cannot start job: full job request not prepared")
	}

	containerConfig := &container.Config{
		Image:        r.full.DockerImage,
		Cmd:          r.full.DockerRunCmd,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			"executor-driver.job_uuid":  r.jobUUID,
			"executor-driver.component": "job-container",
		},
	}
	containerConfig.Entrypoint = []string{}

	hostConfig := &container.HostConfig{
		Binds: []string{
			fmt.Sprintf("%s:/job", r.inputDir),
			fmt.Sprintf("%s:%s", r.artifactsDir, r.containerArtifactsDir),
		},
		AutoRemove: false,
	}

	name := fmt.Sprintf("executor-driver-job-%s", r.jobUUID)
	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("creating job container: %w", err)
	}
	r.containerID = resp.ID

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("starting job container: %w", err)
	}

	logging.Log.WithField("container_id", resp.ID).WithField("job_uuid", r.jobUUID).
		Info("job container started")

	return &dockerRunningJob{runner: r, containerID: resp.ID}, nil
}

func (r *DockerJobRunner) HarvestArtifacts(ctx context.Context) (map[string]string, error) {
	return harvestArtifacts(r.artifactsDir, r.containerArtifactsDir, r.maxArtifactBytes)
}

func (r *DockerJobRunner) UploadResults(ctx context.Context) (map[string]string, error) {
	if r.full == nil || r.full.OutputUpload == nil {
		return map[string]string{}, nil
	}
	return r.uploader.upload(ctx, r.full.OutputUpload, r.inputDir)
}

func (r *DockerJobRunner) ExecutionResult() *protocol.ExecutionResult {
	return r.execResult
}

// Clean is idempotent: it's safe to call before a container ever
// started, and safe to call twice.
func (r *DockerJobRunner) Clean(ctx context.Context) error {
	if r.containerID != "" {
		if err := r.client.ContainerRemove(ctx, r.containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			logging.Log.WithError(err).WithField("container_id", r.containerID).
				Warn("failed to remove job container during cleanup")
		}
		r.containerID = ""
	}
	if r.workDir != "" {
		if err := os.RemoveAll(r.workDir); err != nil {
			return fmt.Errorf("removing job workspace %s: %w", r.workDir, err)
		}
	}
	return nil
}

func (r *DockerJobRunner) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := r.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	pullResp, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	defer pullResp.Close()

	if _, err := io.Copy(io.Discard, pullResp); err != nil {
		return fmt.Errorf("reading pull response for %s: %w", imageName, err)
	}
	return nil
}

var _ JobRunner = (*DockerJobRunner)(nil)

// Package security implements the Security Gate (spec §4.3): two
// sequential container-based pre-flight probes that must pass before
// any job work begins. A failure here is always an infrastructure
// fault (HordeError), never attributable to the workload.
package security

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/catalystcommunity/executor-driver/internal/logging"
)

// CVE2022_0492ProbeImage is the fixed probe image used to check
// whether the container runtime is vulnerable to CVE-2022-0492.
const CVE2022_0492ProbeImage = "us-central1-docker.pkg.dev/twistlock-secresearch/public/can-ctr-escape-cve-2022-0492:latest"

const cve2022_0492ContainedSubstring = "Contained: cannot escape via CVE-2022-0492"

// Gate runs the pre-flight probes against a Docker daemon.
type Gate struct {
	client *client.Client
}

// NewGate wraps an existing Docker client. Callers own the client's
// lifecycle.
func NewGate(cli *client.Client) *Gate {
	return &Gate{client: cli}
}

// RunAll runs the CVE-2022-0492 probe unconditionally and the NVIDIA
// Container Toolkit probe unless skipGPUCheck is set (spec §4.3,
// DEBUG_NO_GPU_MODE applies only to the GPU probe).
func (g *Gate) RunAll(ctx context.Context, skipGPUCheck bool, minToolkitVersion string) error {
	if err := g.RunCVE2022_0492Check(ctx); err != nil {
		return err
	}
	if skipGPUCheck {
		logging.Log.Info("security gate: skipping NVIDIA toolkit check (DEBUG_NO_GPU_MODE)")
		return nil
	}
	return g.RunNvidiaToolkitVersionCheck(ctx, minToolkitVersion)
}

// RunCVE2022_0492Check runs the fixed probe image and requires its
// stdout to contain the exact sentinel substring the image prints when
// the container escape fails as expected.
func (g *Gate) RunCVE2022_0492Check(ctx context.Context) error {
	stdout, _, exitCode, err := g.runProbeContainer(ctx, CVE2022_0492ProbeImage, nil, &container.HostConfig{})
	if err != nil {
		return fmt.Errorf("running CVE-2022-0492 probe: %w", err)
	}
	if exitCode != 0 || !strings.Contains(stdout, cve2022_0492ContainedSubstring) {
		return fmt.Errorf("CVE-2022-0492 container escape check failed: exit_code=%d stdout=%q", exitCode, stdout)
	}
	logging.Log.Info("security gate: CVE-2022-0492 check passed")
	return nil
}

// RunNvidiaToolkitVersionCheck runs a privileged container with the
// host filesystem bind-mounted read-only and parses the installed
// nvidia-container-toolkit version from its stdout, comparing it
// against minVersion.
func (g *Gate) RunNvidiaToolkitVersionCheck(ctx context.Context, minVersion string) error {
	hostConfig := &container.HostConfig{
		Privileged: true,
		Binds: []string{
			"/:/host:ro",
			"/usr/bin:/usr/bin",
			"/usr/lib:/usr/lib",
		},
	}
	cmd := []string{"nvidia-container-toolkit", "--version"}
	stdout, stderr, exitCode, err := g.runProbeContainer(ctx, "ubuntu:latest", cmd, hostConfig)
	if err != nil {
		return fmt.Errorf("running nvidia-container-toolkit version probe: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("nvidia-container-toolkit --version exited %d: stderr=%q", exitCode, stderr)
	}

	version, err := parseToolkitVersion(stdout)
	if err != nil {
		return fmt.Errorf("parsing nvidia-container-toolkit version: %w", err)
	}

	if compareVersions(version, minVersion) < 0 {
		return fmt.Errorf("nvidia-container-toolkit version %s is older than required minimum %s", version, minVersion)
	}

	logging.Log.WithField("nvidia_toolkit_version", version).Info("security gate: NVIDIA toolkit version check passed")
	return nil
}

// parseToolkitVersion extracts the version token from the first line
// of `nvidia-container-toolkit --version` output, e.g.
// "NVIDIA Container Runtime Hook version 1.17.4\ncommit: ...", mirroring
// the original's rpartition(" ")[2] on the first line.
func parseToolkitVersion(stdout string) (string, error) {
	firstLine := stdout
	if idx := strings.IndexByte(stdout, '\n'); idx >= 0 {
		firstLine = stdout[:idx]
	}
	firstLine = strings.TrimRight(firstLine, "\r")
	idx := strings.LastIndexByte(firstLine, ' ')
	if idx < 0 || idx == len(firstLine)-1 {
		return "", fmt.Errorf("unrecognized version output: %q", stdout)
	}
	return firstLine[idx+1:], nil
}

// compareVersions compares two dotted numeric version strings,
// returning -1, 0, or 1 as a < b, a == b, a > b. Missing trailing
// components compare as 0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// runProbeContainer creates, starts, waits on, and tears down a
// short-lived probe container, returning its demultiplexed stdout and
// stderr plus its exit code. Grounded on DockerRunner.SpawnJob /
// StreamLogs / WaitForCompletion / Cleanup, collapsed into a single
// call for one-shot probes instead of a long-lived job container.
func (g *Gate) runProbeContainer(ctx context.Context, imageName string, cmd []string, hostConfig *container.HostConfig) (stdout, stderr string, exitCode int, err error) {
	if err := g.ensureImage(ctx, imageName); err != nil {
		return "", "", -1, err
	}

	containerConfig := &container.Config{
		Image:        imageName,
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			"executor-driver.component": "security-probe",
		},
	}

	resp, err := g.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", "", -1, fmt.Errorf("creating probe container: %w", err)
	}
	defer func() {
		_ = g.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if err := g.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", "", -1, fmt.Errorf("starting probe container: %w", err)
	}

	statusCh, errCh := g.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			return "", "", -1, fmt.Errorf("waiting for probe container: %w", waitErr)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	logs, err := g.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", exitCode, fmt.Errorf("fetching probe container logs: %w", err)
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs); err != nil && err != io.EOF {
		return "", "", exitCode, fmt.Errorf("demultiplexing probe container logs: %w", err)
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

func (g *Gate) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := g.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	pullResp, err := g.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling probe image %s: %w", imageName, err)
	}
	defer pullResp.Close()

	if _, err := io.Copy(io.Discard, pullResp); err != nil {
		return fmt.Errorf("reading pull response for %s: %w", imageName, err)
	}
	return nil
}

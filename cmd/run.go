package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/catalystcommunity/executor-driver/internal/config"
	"github.com/catalystcommunity/executor-driver/internal/coordinator"
	"github.com/catalystcommunity/executor-driver/internal/driver"
	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/runner"
	"github.com/catalystcommunity/executor-driver/internal/security"
)

// RunCommand drives a single job to completion against one coordinator
// connection, then exits. One invocation, one job: there is no
// queue-polling loop here, unlike the teacher's WorkerCommand, since a
// driver instance never multiplexes jobs (spec §1 non-goals).
var RunCommand = &cli.Command{
	Name:  "run",
	Usage: "Drive a single job to completion against a coordinator connection",
	Flags: runFlags,
	Action: func(ctx *cli.Context) error {
		return Run(ctx)
	},
}

var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "coordinator-url",
		Aliases:  []string{"u"},
		Usage:    "WebSocket URL of the miner coordinator to connect to",
		EnvVars:  []string{"EXECUTOR_COORDINATOR_URL", "COORDINATOR_URL"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "job-uuid",
		Aliases: []string{"j"},
		Usage:   "Job correlation UUID; generated if not supplied",
		EnvVars: []string{"EXECUTOR_JOB_UUID", "JOB_UUID"},
	},
	&cli.StringFlag{
		Name:    "work-dir",
		Usage:   "Scratch directory for volume staging and artifacts; a temp dir is used if empty",
		EnvVars: []string{"EXECUTOR_WORK_DIR", "WORK_DIR"},
	},
	&cli.BoolFlag{
		Name:    "debug-no-gpu",
		Usage:   "Skip the NVIDIA Container Toolkit probe and machine specs capture",
		Value:   config.DebugNoGPUMode,
		EnvVars: []string{"DEBUG_NO_GPU_MODE"},
	},
}

// Run wires the coordinator connection, the security gate, a
// Docker-backed JobRunner, and the Driver state machine together, then
// executes one job end to end.
func Run(ctx *cli.Context) error {
	coordinatorURL := ctx.String("coordinator-url")
	jobUUID := ctx.String("job-uuid")
	if jobUUID == "" {
		jobUUID = uuid.NewString()
	}
	workDir := ctx.String("work-dir")
	if workDir == "" {
		dir, err := os.MkdirTemp("", "executor-driver-"+jobUUID+"-")
		if err != nil {
			return fmt.Errorf("creating work directory: %w", err)
		}
		workDir = dir
	}
	skipGPU := ctx.Bool("debug-no-gpu")

	logging.Log.WithField("job_uuid", jobUUID).WithField("coordinator_url", coordinatorURL).
		Info("starting job driver")

	dockerClient, err := newDockerClient()
	if err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}
	defer dockerClient.Close()

	gate := security.NewGate(dockerClient)
	jobRunner := runner.NewDockerJobRunner(dockerClient, jobUUID, workDir, config.VolumeMaxSizeBytes, config.ArtifactMaxFileSizeBytes)
	coordClient := coordinator.NewWebSocketClient(coordinatorURL, jobUUID)

	d := driver.New(
		coordClient,
		jobRunner,
		gate,
		float64(config.StartupTimeLimitSeconds),
		config.NvidiaToolkitMinimumVersion,
		driver.WithSkipGPUCheck(skipGPU),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Log.WithField("signal", sig).Warn("received signal, cancelling job")
		cancel()
	}()

	if err := d.Execute(runCtx); err != nil {
		logging.Log.WithError(err).Error("job did not complete successfully")
		return err
	}

	logging.Log.WithField("job_uuid", jobUUID).Info("job completed successfully")
	return nil
}

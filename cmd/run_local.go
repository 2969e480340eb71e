package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/catalystcommunity/executor-driver/internal/config"
	"github.com/catalystcommunity/executor-driver/internal/coordinator"
	"github.com/catalystcommunity/executor-driver/internal/driver"
	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/runner"
	"github.com/catalystcommunity/executor-driver/internal/security"
)

// RunLocalCommand drives a job described by a local YAML file through
// the full state machine without a live coordinator connection, using
// an in-memory coordinator.MockClient pre-loaded with the file's
// initial/full job requests. Adapted from the teacher's RunLocalCommand
// ("emulates worker behavior" for local development), generalized from
// job_spec.go's job-directory format to this driver's wire-message
// shape.
var RunLocalCommand = &cli.Command{
	Name:      "run-local",
	Usage:     "Drive a job described by a local YAML file, without a coordinator connection",
	ArgsUsage: "<job-file.yaml>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "work-dir",
			Usage: "Scratch directory for volume staging and artifacts; a temp dir is used if empty",
		},
		&cli.BoolFlag{
			Name:  "debug-no-gpu",
			Usage: "Skip the NVIDIA Container Toolkit probe and machine specs capture",
			Value: config.DebugNoGPUMode,
		},
	},
	Action: runLocalAction,
}

// localJobSpec is the YAML shape of a run-local job file: the same
// two wire messages the driver would otherwise receive from a
// coordinator, expressed as one document for convenience.
type localJobSpec struct {
	Initial map[string]any `yaml:"initial"`
	Full    map[string]any `yaml:"full"`
}

func runLocalAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: executor-driver run-local <job-file.yaml>")
	}

	raw, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("reading job file: %w", err)
	}

	var spec localJobSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("parsing job file as YAML: %w", err)
	}

	initial, err := decodeAsJSON[protocol.InitialJobRequest](spec.Initial)
	if err != nil {
		return fmt.Errorf("decoding 'initial' section: %w", err)
	}
	full, err := decodeAsJSON[protocol.FullJobRequest](spec.Full)
	if err != nil {
		return fmt.Errorf("decoding 'full' section: %w", err)
	}

	jobUUID := initial.JobUUID
	if jobUUID == "" {
		jobUUID = uuid.NewString()
	}
	full.JobUUID = jobUUID

	workDir := ctx.String("work-dir")
	if workDir == "" {
		dir, err := os.MkdirTemp("", "executor-driver-local-"+jobUUID+"-")
		if err != nil {
			return fmt.Errorf("creating work directory: %w", err)
		}
		workDir = dir
	}

	dockerClient, err := newDockerClient()
	if err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}
	defer dockerClient.Close()

	mock := coordinator.NewMockClient(jobUUID)
	mock.InitialRequest = initial
	mock.FullRequest = full

	gate := security.NewGate(dockerClient)
	jobRunner := runner.NewDockerJobRunner(dockerClient, jobUUID, workDir, config.VolumeMaxSizeBytes, config.ArtifactMaxFileSizeBytes)

	d := driver.New(
		mock,
		jobRunner,
		gate,
		float64(config.StartupTimeLimitSeconds),
		config.NvidiaToolkitMinimumVersion,
		driver.WithSkipGPUCheck(ctx.Bool("debug-no-gpu")),
	)

	runErr := d.Execute(context.Background())

	switch {
	case mock.Result != nil:
		logging.Log.WithField("job_uuid", jobUUID).Info("job completed successfully")
		return printJSON(mock.Result)
	case mock.JobFailed != nil:
		logging.Log.WithField("job_uuid", jobUUID).Warn("job failed")
		if err := printJSON(mock.JobFailed); err != nil {
			return err
		}
	case mock.HordeFailed != nil:
		logging.Log.WithField("job_uuid", jobUUID).Error("horde failure")
		if err := printJSON(mock.HordeFailed); err != nil {
			return err
		}
	}
	return runErr
}

// decodeAsJSON bridges a YAML-decoded map[string]any into T via its
// JSON unmarshaler, so the tagged-union Volume/OutputUpload decoding
// logic in internal/protocol is exercised instead of duplicated here.
func decodeAsJSON[T any](m map[string]any) (*T, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-encoding yaml section as json: %w", err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

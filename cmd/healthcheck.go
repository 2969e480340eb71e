package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// HealthCheckCommand is the container health-check probe: unlike the
// teacher's HTTP-endpoint check (this process exposes no server), it
// pings the Docker Engine API the Security Gate and DockerJobRunner
// both depend on.
var HealthCheckCommand = &cli.Command{
	Name:  "healthcheck",
	Usage: "Check that the Docker Engine API is reachable (for container health checks)",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   5,
			Usage:   "Timeout in seconds",
			EnvVars: []string{"EXECUTOR_HEALTH_TIMEOUT"},
		},
	},
	Action: func(ctx *cli.Context) error {
		timeout := time.Duration(ctx.Int("timeout")) * time.Second

		dockerClient, err := newDockerClient()
		if err != nil {
			return fmt.Errorf("health check failed: connecting to docker daemon: %w", err)
		}
		defer dockerClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := dockerClient.Ping(pingCtx); err != nil {
			return fmt.Errorf("health check failed: docker daemon unreachable: %w", err)
		}
		return nil
	},
}

package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/catalystcommunity/executor-driver/cmd"
	"github.com/catalystcommunity/executor-driver/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "executor-driver",
		Usage: "Runs a single untrusted compute job on behalf of a miner coordinator",
		Commands: []*cli.Command{
			cmd.RunCommand,
			cmd.RunLocalCommand,
			cmd.HealthCheckCommand,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		// log fatal so we exit with the proper exit code, this matters for containerized deployment health checks
		logging.Log.WithError(err).Fatal("runtime error")
	}
}

package cmd

import (
	"github.com/docker/docker/client"

	"github.com/catalystcommunity/executor-driver/internal/config"
)

// newDockerClient builds the Docker Engine API client shared by every
// subcommand that talks to Docker. config.DockerHost overrides the
// engine endpoint when set; otherwise client.FromEnv picks it up the
// usual way (DOCKER_HOST, DOCKER_CERT_PATH, etc.).
func newDockerClient() (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if config.DockerHost != "" {
		opts = append(opts, client.WithHost(config.DockerHost))
	}
	return client.NewClientWithOpts(opts...)
}

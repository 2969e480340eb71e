// Package config holds the driver's package-level configuration
// surface, populated from the environment the way the teacher's
// internal/config does it (a var block of env.GetEnv* calls), adapted
// to envutil.
package config

import (
	"github.com/catalystcommunity/executor-driver/internal/envutil"
)

var (
	// DebugNoGPUMode skips machine-specs capture and the NVIDIA
	// toolkit probe, for running the driver on hosts without a GPU.
	DebugNoGPUMode = envutil.GetBoolOrDefault("DEBUG_NO_GPU_MODE", false)

	// VolumeMaxSizeBytes bounds the size of a materialized input volume.
	// Runners exceeding this surface a DOWNLOAD_FAILED JobError whose
	// message contains "Input volume too large".
	VolumeMaxSizeBytes = envutil.GetInt64OrDefault("VOLUME_MAX_SIZE_BYTES", 10*1024*1024*1024)

	// ArtifactMaxFileSizeBytes bounds the size of a single artifact file
	// collected from the job's artifacts directory. Files above the cap
	// are silently dropped from the artifact map.
	ArtifactMaxFileSizeBytes = envutil.GetInt64OrDefault("ARTIFACT_MAX_FILE_SIZE_BYTES", 1_000_000)

	// StartupTimeLimitSeconds is the default deadline for the startup
	// stage (machine specs, security gate, initial job request),
	// overridable per-driver-instance via the constructor argument.
	StartupTimeLimitSeconds = envutil.GetIntOrDefault("STARTUP_TIME_LIMIT_SECONDS", 300)

	// NvidiaToolkitMinimumVersion is the minimum safe
	// nvidia-container-toolkit version accepted by the security gate.
	NvidiaToolkitMinimumVersion = envutil.GetOrDefault("NVIDIA_TOOLKIT_MINIMUM_VERSION", "1.17.4")

	// DockerHost overrides the Docker Engine API endpoint used for the
	// security gate probes and the reference DockerJobRunner. Empty
	// means "use the environment default" (DOCKER_HOST / the socket).
	DockerHost = envutil.GetOrDefault("DOCKER_HOST", "")
)

package protocol

// JobStage identifies which phase of the staged pipeline the driver is
// currently executing. Stages advance monotonically; there are no
// reverse transitions (spec §4.4).
type JobStage string

const (
	StageUnknown         JobStage = "unknown"
	StageExecutorStartup JobStage = "executor_startup"
	StageVolumeDownload  JobStage = "volume_download"
	StageExecution       JobStage = "execution"
	StageResultUpload    JobStage = "result_upload"
)

// JobParticipantType identifies who is reporting a horde failure.
type JobParticipantType string

// ParticipantExecutor is always the reporter for this driver; it never
// runs as the miner side of the protocol.
const ParticipantExecutor JobParticipantType = "executor"

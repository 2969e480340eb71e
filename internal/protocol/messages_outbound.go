package protocol

// MachineSpecs is a host hardware fingerprint, captured once at
// startup. It is intentionally an open document (spec §3: "opaque
// structured document") rather than a closed struct, since the set of
// reported fields is expected to grow with hardware support.
type MachineSpecs map[string]any

// ExecutionResult is produced by the runner after the job container
// exits (spec §3).
type ExecutionResult struct {
	ReturnCode int    `json:"return_code"`
	Stdout     []byte `json:"stdout"`
	Stderr     []byte `json:"stderr"`
	TimedOut   bool   `json:"timed_out"`
}

// JobResult is the final success payload sent to the coordinator
// (spec §3, §6).
type JobResult struct {
	Stdout        string            `json:"docker_process_stdout"`
	Stderr        string            `json:"docker_process_stderr"`
	Artifacts     map[string]string `json:"artifacts"`
	UploadResults map[string]string `json:"upload_results"`
	Specs         MachineSpecs      `json:"specs,omitempty"`
}

// V0ExecutorReadyRequest is sent once startup completes successfully.
type V0ExecutorReadyRequest struct {
	MessageType   string `json:"message_type"`
	JobUUID       string `json:"job_uuid"`
	ExecutorToken string `json:"executor_token,omitempty"`
}

// V0StreamingJobReadyRequest is sent from inside the execution stage
// for streaming jobs, once the executor's TLS certificate is ready.
type V0StreamingJobReadyRequest struct {
	MessageType    string `json:"message_type"`
	JobUUID        string `json:"job_uuid"`
	ExecutorToken  string `json:"executor_token,omitempty"`
	PublicKey      string `json:"public_key"`
	IP             string `json:"ip"`
	Port           int    `json:"port"`
	MinerSignature string `json:"miner_signature,omitempty"`
}

// V0VolumesReadyRequest is sent once input volumes are materialized.
type V0VolumesReadyRequest struct {
	MessageType string `json:"message_type"`
	JobUUID     string `json:"job_uuid"`
}

// V0ExecutionDoneRequest is sent once the job container has exited
// successfully.
type V0ExecutionDoneRequest struct {
	MessageType string `json:"message_type"`
	JobUUID     string `json:"job_uuid"`
}

// V0JobFinishedRequest is the terminal success message.
type V0JobFinishedRequest struct {
	MessageType        string            `json:"message_type"`
	JobUUID            string            `json:"job_uuid"`
	DockerProcessStdout string           `json:"docker_process_stdout"`
	DockerProcessStderr string           `json:"docker_process_stderr"`
	Artifacts          map[string]string `json:"artifacts"`
	UploadResults      map[string]string `json:"upload_results"`
	Specs              MachineSpecs      `json:"specs,omitempty"`
}

// V0JobFailedRequest is the terminal workload-fault failure message.
type V0JobFailedRequest struct {
	MessageType             string             `json:"message_type"`
	JobUUID                 string             `json:"job_uuid"`
	Stage                   JobStage           `json:"stage"`
	Reason                  JobFailureReason   `json:"reason"`
	Message                 string             `json:"message"`
	DockerProcessExitStatus *int               `json:"docker_process_exit_status,omitempty"`
	DockerProcessStdout     *string            `json:"docker_process_stdout,omitempty"`
	DockerProcessStderr     *string            `json:"docker_process_stderr,omitempty"`
	Context                 FailureContext     `json:"context,omitempty"`
}

// V0HordeFailedRequest is the terminal infrastructure-fault failure
// message.
type V0HordeFailedRequest struct {
	MessageType string             `json:"message_type"`
	JobUUID     string             `json:"job_uuid"`
	ReportedBy  JobParticipantType `json:"reported_by"`
	Reason      HordeFailureReason `json:"reason"`
	Message     string             `json:"message"`
	Context     FailureContext     `json:"context,omitempty"`
}

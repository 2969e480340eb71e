package protocol

import (
	"encoding/json"
	"fmt"
)

// StreamingDetails requests that the job expose an inbound TLS
// endpoint. Both fields are required together (spec §4.4 startup
// stage).
type StreamingDetails struct {
	ExecutorIP string `json:"executor_ip"`
	PublicKey  string `json:"public_key"`
}

// TimingDetails gives the per-stage budgets (spec §3). All fields are
// non-negative seconds.
type TimingDetails struct {
	AllowedLeeway           float64 `json:"allowed_leeway"`
	DownloadTimeLimit       float64 `json:"download_time_limit"`
	ExecutionTimeLimit      float64 `json:"execution_time_limit"`
	StreamingStartTimeLimit float64 `json:"streaming_start_time_limit"`
	UploadTimeLimit         float64 `json:"upload_time_limit"`
}

// InitialJobRequest is the first inbound message (spec §3, §6).
// TimeoutSeconds and ExecutorTiming are mutually exclusive on the
// wire; at most one is populated.
type InitialJobRequest struct {
	MessageType                string            `json:"message_type"`
	ExecutorClass              string            `json:"executor_class"`
	DockerImage                string            `json:"docker_image"`
	JobUUID                    string            `json:"job_uuid"`
	JobStartedReceiptPayload   string            `json:"job_started_receipt_payload"`
	JobStartedReceiptSignature string            `json:"job_started_receipt_signature"`
	TimeoutSeconds             *int              `json:"timeout_seconds,omitempty"`
	ExecutorTiming             *TimingDetails    `json:"executor_timing,omitempty"`
	StreamingDetails           *StreamingDetails `json:"streaming_details,omitempty"`
	VolumeType                 string            `json:"volume_type,omitempty"`
}

// FullJobRequest is the second inbound message (spec §3, §6). Volume
// and OutputUpload are tagged unions decoded via UnmarshalJSON.
type FullJobRequest struct {
	MessageType            string       `json:"message_type"`
	DockerImage             string       `json:"docker_image"`
	DockerRunCmd            []string     `json:"docker_run_cmd"`
	DockerRunOptionsPreset  string       `json:"docker_run_options_preset,omitempty"`
	Volume                  Volume       `json:"-"`
	OutputUpload            OutputUpload `json:"-"`
	RawScript               *string      `json:"raw_script,omitempty"`
	ArtifactsDir            string       `json:"artifacts_dir,omitempty"`
	JobUUID                 string       `json:"job_uuid"`
}

// UnmarshalJSON decodes FullJobRequest, routing the tagged-union
// volume/output_upload fields through DecodeVolume/DecodeOutputUpload.
// Unknown tags are surfaced as an error rather than silently ignored
// (Design Notes: "Tagged unions on the wire").
func (f *FullJobRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		MessageType            string          `json:"message_type"`
		DockerImage             string          `json:"docker_image"`
		DockerRunCmd            []string        `json:"docker_run_cmd"`
		DockerRunOptionsPreset  string          `json:"docker_run_options_preset,omitempty"`
		Volume                  json.RawMessage `json:"volume"`
		OutputUpload            json.RawMessage `json:"output_upload,omitempty"`
		RawScript               *string         `json:"raw_script,omitempty"`
		ArtifactsDir            string          `json:"artifacts_dir,omitempty"`
		JobUUID                 string          `json:"job_uuid"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding full job request: %w", err)
	}

	f.MessageType = raw.MessageType
	f.DockerImage = raw.DockerImage
	f.DockerRunCmd = raw.DockerRunCmd
	f.DockerRunOptionsPreset = raw.DockerRunOptionsPreset
	f.RawScript = raw.RawScript
	f.ArtifactsDir = raw.ArtifactsDir
	f.JobUUID = raw.JobUUID

	if len(raw.Volume) > 0 {
		vol, err := DecodeVolume(raw.Volume)
		if err != nil {
			return err
		}
		f.Volume = vol
	}
	if len(raw.OutputUpload) > 0 {
		up, err := DecodeOutputUpload(raw.OutputUpload)
		if err != nil {
			return err
		}
		f.OutputUpload = up
	}
	return nil
}

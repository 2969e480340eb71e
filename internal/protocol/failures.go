package protocol

// JobFailureReason classifies a workload-at-fault failure (spec §7).
type JobFailureReason string

const (
	JobFailureTimeout            JobFailureReason = "timeout"
	JobFailureNonzeroReturnCode  JobFailureReason = "nonzero_return_code"
	JobFailureDownloadFailed     JobFailureReason = "download_failed"
	JobFailureUploadFailed       JobFailureReason = "upload_failed"
)

// HordeFailureReason classifies an infrastructure-at-fault failure
// (spec §7).
type HordeFailureReason string

const (
	HordeFailureSecurityCheckFailed HordeFailureReason = "security_check_failed"
	// HordeFailureUnexpected is the catch-all bucket for any exception
	// the driver did not anticipate and had to wrap.
	HordeFailureUnexpected HordeFailureReason = "unexpected_error"
)

// FailureContext carries structured debugging annotations attached to
// a failure along its propagation path (spec §3).
type FailureContext map[string]any

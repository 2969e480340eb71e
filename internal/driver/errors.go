package driver

import (
	"fmt"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// JobError is a workload-at-fault failure: the job itself timed out,
// exited non-zero, or its volume/upload step failed for reasons
// outside the executor's own infrastructure. It maps to
// V0JobFailedRequest (spec §7).
type JobError struct {
	Stage   protocol.JobStage
	Reason  protocol.JobFailureReason
	Message string
	Context protocol.FailureContext
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job error at stage %s: %s: %s", e.Stage, e.Reason, e.Message)
}

func newJobError(stage protocol.JobStage, reason protocol.JobFailureReason, message string) *JobError {
	return &JobError{Stage: stage, Reason: reason, Message: message}
}

// HordeError is an infrastructure-at-fault failure: the executor's own
// environment, or its link to the miner, is at fault rather than the
// workload. It maps to V0HordeFailedRequest (spec §7).
type HordeError struct {
	Reason  protocol.HordeFailureReason
	Message string
	Context protocol.FailureContext
	Wrapped error
}

func (e *HordeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("horde error: %s: %s: %v", e.Reason, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("horde error: %s: %s", e.Reason, e.Message)
}

func (e *HordeError) Unwrap() error { return e.Wrapped }

func newHordeError(reason protocol.HordeFailureReason, message string) *HordeError {
	return &HordeError{Reason: reason, Message: message}
}

// wrapUnexpected turns any error the driver did not anticipate into
// the catch-all HordeError bucket (spec §7: "catch-all
// wrapped-unexpected"), preserving the original error for logging.
func wrapUnexpected(err error) *HordeError {
	return &HordeError{
		Reason:  protocol.HordeFailureUnexpected,
		Message: err.Error(),
		Wrapped: err,
	}
}

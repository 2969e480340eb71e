// Package coordinator implements the Coordinator Client adapter: the
// bidirectional message channel to the miner (spec §4.2). This allows
// for easy mocking in tests, the way the teacher's corndogs package
// separates ClientInterface from Client.
package coordinator

import (
	"context"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// Client defines the operations the driver consumes from the
// coordinator link: three inbound awaitables (one of which, JobUUID,
// is synchronous and known at construction) and the outbound status
// messages, in strict stage order.
type Client interface {
	// JobUUID is known at construction; it never blocks.
	JobUUID() string

	// InitialMsg resolves exactly once with the first inbound message.
	// Calling it more than once returns the cached result.
	InitialMsg(ctx context.Context) (*protocol.InitialJobRequest, error)

	// FullPayload resolves exactly once with the second inbound
	// message.
	FullPayload(ctx context.Context) (*protocol.FullJobRequest, error)

	SendExecutorReady(ctx context.Context) error
	SendStreamingJobReady(ctx context.Context, certificate string) error
	SendVolumesReady(ctx context.Context) error
	SendExecutionDone(ctx context.Context) error
	SendResult(ctx context.Context, result protocol.JobResult) error
	SendJobFailed(ctx context.Context, req protocol.V0JobFailedRequest) error
	SendHordeFailed(ctx context.Context, req protocol.V0HordeFailedRequest) error

	// Open establishes the connection. Close flushes outbound messages
	// best-effort and tears the connection down. The driver's top-level
	// scope must encompass every awaited inbound value between Open and
	// Close (spec §4.2 "Lifecycle").
	Open(ctx context.Context) error
	Close() error
}

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

const (
	messageTypeInitialJobRequest = "V0InitialJobRequest"
	messageTypeJobRequest        = "V0JobRequest"

	messageTypeExecutorReady    = "V0ExecutorReadyRequest"
	messageTypeStreamingReady   = "V0StreamingJobReadyRequest"
	messageTypeVolumesReady     = "V0VolumesReadyRequest"
	messageTypeExecutionDone    = "V0ExecutionDoneRequest"
	messageTypeJobFinished      = "V0JobFinishedRequest"
	messageTypeJobFailed        = "V0JobFailedRequest"
	messageTypeHordeFailed      = "V0HordeFailedRequest"
)

// WebSocketClient implements Client over a gorilla/websocket connection
// to the miner. Outbound messages are written as they're produced
// (transport preserves order per spec §5); inbound frames are demuxed
// by message_type into the initial-request and full-payload futures.
type WebSocketClient struct {
	url     string
	jobUUID string

	dialer *websocket.Dialer
	conn   *websocket.Conn

	writeMu sync.Mutex

	initialOnce sync.Once
	initialCh   chan initialResult

	fullOnce sync.Once
	fullCh   chan fullResult

	readErrCh chan error
	closeOnce sync.Once
}

type initialResult struct {
	req *protocol.InitialJobRequest
	err error
}

type fullResult struct {
	req *protocol.FullJobRequest
	err error
}

// NewWebSocketClient constructs a client bound to a single job UUID,
// known at construction per spec §4.2.
func NewWebSocketClient(url, jobUUID string) *WebSocketClient {
	return &WebSocketClient{
		url:       url,
		jobUUID:   jobUUID,
		dialer:    websocket.DefaultDialer,
		initialCh: make(chan initialResult, 1),
		fullCh:    make(chan fullResult, 1),
		readErrCh: make(chan error, 1),
	}
}

func (c *WebSocketClient) JobUUID() string { return c.jobUUID }

// Open dials the coordinator and starts the background read loop that
// demultiplexes inbound frames.
func (c *WebSocketClient) Open(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing coordinator at %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

// Close flushes nothing explicit (writes are synchronous) and tears
// down the connection best-effort.
func (c *WebSocketClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = c.conn.Close()
		}
	})
	return err
}

func (c *WebSocketClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErrCh <- err
			c.initialOnce.Do(func() { c.initialCh <- initialResult{err: err} })
			c.fullOnce.Do(func() { c.fullCh <- fullResult{err: err} })
			return
		}

		var envelope struct {
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			logging.Log.WithError(err).Warn("coordinator: dropping malformed inbound frame")
			continue
		}

		switch envelope.MessageType {
		case messageTypeInitialJobRequest:
			var req protocol.InitialJobRequest
			err := json.Unmarshal(data, &req)
			c.initialOnce.Do(func() { c.initialCh <- initialResult{req: &req, err: err} })
		case messageTypeJobRequest:
			var req protocol.FullJobRequest
			err := json.Unmarshal(data, &req)
			c.fullOnce.Do(func() { c.fullCh <- fullResult{req: &req, err: err} })
		default:
			logging.Log.WithField("message_type", envelope.MessageType).
				Debug("coordinator: ignoring unrecognized inbound message type")
		}
	}
}

func (c *WebSocketClient) InitialMsg(ctx context.Context) (*protocol.InitialJobRequest, error) {
	select {
	case res := <-c.initialCh:
		c.initialCh <- res // allow repeat reads to observe the cached result
		return res.req, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WebSocketClient) FullPayload(ctx context.Context) (*protocol.FullJobRequest, error) {
	select {
	case res := <-c.fullCh:
		c.fullCh <- res
		return res.req, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WebSocketClient) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *WebSocketClient) SendExecutorReady(ctx context.Context) error {
	return c.send(protocol.V0ExecutorReadyRequest{
		MessageType: messageTypeExecutorReady,
		JobUUID:     c.jobUUID,
	})
}

func (c *WebSocketClient) SendStreamingJobReady(ctx context.Context, certificate string) error {
	return c.send(protocol.V0StreamingJobReadyRequest{
		MessageType: messageTypeStreamingReady,
		JobUUID:     c.jobUUID,
		PublicKey:   certificate,
	})
}

func (c *WebSocketClient) SendVolumesReady(ctx context.Context) error {
	return c.send(protocol.V0VolumesReadyRequest{
		MessageType: messageTypeVolumesReady,
		JobUUID:     c.jobUUID,
	})
}

func (c *WebSocketClient) SendExecutionDone(ctx context.Context) error {
	return c.send(protocol.V0ExecutionDoneRequest{
		MessageType: messageTypeExecutionDone,
		JobUUID:     c.jobUUID,
	})
}

func (c *WebSocketClient) SendResult(ctx context.Context, result protocol.JobResult) error {
	return c.send(protocol.V0JobFinishedRequest{
		MessageType:         messageTypeJobFinished,
		JobUUID:             c.jobUUID,
		DockerProcessStdout: result.Stdout,
		DockerProcessStderr: result.Stderr,
		Artifacts:           result.Artifacts,
		UploadResults:       result.UploadResults,
		Specs:               result.Specs,
	})
}

func (c *WebSocketClient) SendJobFailed(ctx context.Context, req protocol.V0JobFailedRequest) error {
	req.MessageType = messageTypeJobFailed
	req.JobUUID = c.jobUUID
	return c.send(req)
}

func (c *WebSocketClient) SendHordeFailed(ctx context.Context, req protocol.V0HordeFailedRequest) error {
	req.MessageType = messageTypeHordeFailed
	req.JobUUID = c.jobUUID
	return c.send(req)
}

var _ Client = (*WebSocketClient)(nil)

package zeromq

import (
	"encoding/json"
	"fmt"

	customlog "github.com/open-teleop/airscan/pkg/log"
)

// SnapshotHandler answers one request type with the current value of some
// state, e.g. the active mission or the latest telemetry sample.
type SnapshotHandler struct {
	requestType  string
	responseType string
	snapshot     func() (interface{}, error)
	logger       customlog.Logger
}

// NewSnapshotHandler creates a handler replying responseType with snapshot().
func NewSnapshotHandler(requestType, responseType string, snapshot func() (interface{}, error), logger customlog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		requestType:  requestType,
		responseType: responseType,
		snapshot:     snapshot,
		logger:       logger,
	}
}

// HandleMessage validates the request and serializes the snapshot
func (h *SnapshotHandler) HandleMessage(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type != h.requestType {
		return nil, fmt.Errorf("unexpected message type: %s", msg.Type)
	}

	value, err := h.snapshot()
	if err != nil {
		return nil, err
	}

	responseData, err := json.Marshal(ZeroMQMessage{
		Type:      h.responseType,
		Timestamp: nowSeconds(),
		Data:      value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	h.logger.Debugf("Sending %s (%d bytes)", h.responseType, len(responseData))
	return responseData, nil
}

package processing

import (
	"encoding/json"
	"path/filepath"

	customlog "github.com/open-teleop/airscan/pkg/log"
)

// MessagePublisher defines the interface for publishing messages
type MessagePublisher interface {
	PublishMessage(topic string, data []byte) error
}

// LoggingResultHandler logs processing results and publishes a JSON summary
type LoggingResultHandler struct {
	logger    customlog.Logger
	publisher MessagePublisher
}

// NewLoggingResultHandler creates a new logging result handler. publisher may be nil.
func NewLoggingResultHandler(logger customlog.Logger, publisher MessagePublisher) *LoggingResultHandler {
	return &LoggingResultHandler{
		logger:    logger,
		publisher: publisher,
	}
}

// HandleResult handles a processed frame
func (h *LoggingResultHandler) HandleResult(result *ProcessResult) {
	if result.Error != nil {
		h.logger.Errorf("Failed to persist frame %d: %v", result.Frame, result.Error)
		return
	}

	if result.ScanPath != "" {
		h.logger.Infof("Saved scan %s (%d points)", filepath.Base(result.ScanPath), result.Points)
	}
	if result.ImagePath != "" {
		h.logger.Debugf("Saved image %s", filepath.Base(result.ImagePath))
	}

	if h.publisher == nil || result.Topic == "" {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"session":    result.Session,
		"frame":      result.Frame,
		"scan_path":  result.ScanPath,
		"image_path": result.ImagePath,
		"points":     result.Points,
		"timestamp":  result.Timestamp,
	})
	if err != nil {
		h.logger.Errorf("Failed to encode result for frame %d: %v", result.Frame, err)
		return
	}
	if err := h.publisher.PublishMessage(result.Topic, data); err != nil {
		h.logger.Errorf("Failed to publish message for topic '%s': %v", result.Topic, err)
	} else {
		h.logger.Debugf("Published message for topic '%s'", result.Topic)
	}
}

// CreateHandlerFunc creates a ResultHandler function for the FramePool
func (h *LoggingResultHandler) CreateHandlerFunc() ResultHandler {
	return func(processResult *ProcessResult) {
		if processResult == nil {
			h.logger.Errorf("Received nil ProcessResult")
			return
		}
		h.HandleResult(processResult)
	}
}

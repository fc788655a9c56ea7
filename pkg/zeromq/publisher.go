package zeromq

import (
	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/config"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// Publisher is the typed face of ZeroMQService used by the flight tools.
type Publisher struct {
	service *ZeroMQService
	logger  customlog.Logger
}

// NewPublisher wraps service.
func NewPublisher(service *ZeroMQService, logger customlog.Logger) *Publisher {
	return &Publisher{service: service, logger: logger}
}

// PublishMessage forwards raw bytes on topic.
func (p *Publisher) PublishMessage(topic string, data []byte) error {
	return p.service.PublishMessage(topic, data)
}

// PublishScan sends one scan as a ScanFrame flatbuffer on TopicScan.
func (p *Publisher) PublishScan(session string, frame int, timestampNs int64, position r3.Vector, cloud *pointcloud.Cloud) error {
	return p.service.PublishMessage(TopicScan, EncodeScanFrame(&ScanMessage{
		Session:     session,
		Frame:       frame,
		TimestampNs: timestampNs,
		Position:    position,
		Cloud:       cloud,
	}))
}

// PublishTelemetry sends a telemetry sample as JSON on TopicTelemetry.
func (p *Publisher) PublishTelemetry(sample interface{}) error {
	return p.service.PublishJSON(TopicTelemetry, MsgTypeTelemetry, sample)
}

// PublishMissionUpdate publishes the full mission to subscribers
func (p *Publisher) PublishMissionUpdate(m *config.Mission) error {
	p.logger.Infof("Publishing mission update (%s)", m.Name)
	return p.service.PublishJSON(TopicMissionUpdate, MsgTypeMissionResponse, m)
}

// PublishMissionUpdatedNotification publishes a short notice that the mission changed
func (p *Publisher) PublishMissionUpdatedNotification(m *config.Mission) error {
	notification := map[string]interface{}{
		"name":      m.Name,
		"waypoints": len(m.Waypoints),
		"altitude":  m.Altitude,
	}
	return p.service.PublishJSON(TopicMissionNotification, MsgTypeMissionUpdated, notification)
}

// RegisterSnapshotHandlers wires the mission and telemetry request handlers.
func RegisterSnapshotHandlers(service *ZeroMQService, mission func() (interface{}, error), telemetry func() (interface{}, error), logger customlog.Logger) {
	if mission != nil {
		service.RegisterHandler(MsgTypeMissionRequest,
			NewSnapshotHandler(MsgTypeMissionRequest, MsgTypeMissionResponse, mission, logger))
	}
	if telemetry != nil {
		service.RegisterHandler(MsgTypeTelemetryRequest,
			NewSnapshotHandler(MsgTypeTelemetryRequest, MsgTypeTelemetryResponse, telemetry, logger))
	}
}

package zeromq

import (
	"fmt"

	"github.com/golang/geo/r3"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/open-teleop/airscan/pkg/flatbuffers/airscan/scan"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// ScanMessage is the decoded form of a ScanFrame.
type ScanMessage struct {
	Session     string
	Frame       int
	TimestampNs int64
	Position    r3.Vector
	Cloud       *pointcloud.Cloud
}

// EncodeScanFrame serializes m. Points travel as float32.
func EncodeScanFrame(m *ScanMessage) []byte {
	n := m.Cloud.Len()
	builder := flatbuffers.NewBuilder(64 + 12*n)

	session := builder.CreateString(m.Session)
	scan.ScanFrameStartPointsVector(builder, 3*n)
	// vectors are built back to front
	for i := n - 1; i >= 0; i-- {
		p := m.Cloud.Points[i]
		builder.PrependFloat32(float32(p.Z))
		builder.PrependFloat32(float32(p.Y))
		builder.PrependFloat32(float32(p.X))
	}
	points := builder.EndVector(3 * n)

	scan.ScanFrameStart(builder)
	scan.ScanFrameAddSession(builder, session)
	scan.ScanFrameAddFrame(builder, uint32(m.Frame))
	scan.ScanFrameAddTimestampNs(builder, m.TimestampNs)
	scan.ScanFrameAddPosX(builder, m.Position.X)
	scan.ScanFrameAddPosY(builder, m.Position.Y)
	scan.ScanFrameAddPosZ(builder, m.Position.Z)
	scan.ScanFrameAddPoints(builder, points)
	scan.FinishScanFrameBuffer(builder, scan.ScanFrameEnd(builder))
	return builder.FinishedBytes()
}

// DecodeScanFrame parses a ScanFrame. Malformed buffers are reported as
// ErrInvalidMessage rather than panicking.
func DecodeScanFrame(data []byte) (m *ScanMessage, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: %d byte scan frame", ErrInvalidMessage, len(data))
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%w: %v", ErrInvalidMessage, r)
		}
	}()

	fb := scan.GetRootAsScanFrame(data, 0)
	n := fb.PointsLength() / 3
	cloud := &pointcloud.Cloud{Points: make([]r3.Vector, n)}
	for i := range cloud.Points {
		cloud.Points[i] = r3.Vector{
			X: float64(fb.Points(3 * i)),
			Y: float64(fb.Points(3*i + 1)),
			Z: float64(fb.Points(3*i + 2)),
		}
	}
	return &ScanMessage{
		Session:     string(fb.Session()),
		Frame:       int(fb.Frame()),
		TimestampNs: fb.TimestampNs(),
		Position:    r3.Vector{X: fb.PosX(), Y: fb.PosY(), Z: fb.PosZ()},
		Cloud:       cloud,
	}, nil
}

package processing

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/catalog"
	"github.com/open-teleop/airscan/pkg/frames"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// TopicScanSaved carries a JSON summary of every persisted frame.
const TopicScanSaved = "airscan.scan.saved"

// ScanWriter persists a cloud and returns its path.
type ScanWriter interface {
	Save(frame int, tsMillis int64, cloud *pointcloud.Cloud) (string, error)
	Format() string
}

// ScanRecorder indexes persisted scans.
type ScanRecorder interface {
	Record(ctx context.Context, rec catalog.ScanRecord) error
}

// ScanPublisher streams clouds to subscribers.
type ScanPublisher interface {
	PublishScan(session string, frame int, timestampNs int64, position r3.Vector, cloud *pointcloud.Cloud) error
}

// ScanProcessor writes a frame's scan and image, records it in the catalog
// and publishes it. Catalog and publisher are optional.
type ScanProcessor struct {
	logger    customlog.Logger
	store     ScanWriter
	imageDir  string
	catalog   ScanRecorder
	publisher ScanPublisher
}

// NewScanProcessor creates a processor. recorder and publisher may be nil.
func NewScanProcessor(logger customlog.Logger, store ScanWriter, imageDir string, recorder ScanRecorder, publisher ScanPublisher) *ScanProcessor {
	return &ScanProcessor{
		logger:    logger,
		store:     store,
		imageDir:  imageDir,
		catalog:   recorder,
		publisher: publisher,
	}
}

// Process handles one job.
func (p *ScanProcessor) Process(job *ScanJob) (*ProcessResult, error) {
	ts := job.Timestamp.UnixMilli()
	result := &ProcessResult{
		Topic:     TopicScanSaved,
		Session:   job.Session,
		Frame:     job.Frame,
		Points:    job.Cloud.Len(),
		Timestamp: job.Timestamp.UnixNano(),
	}

	if job.SaveScan && job.Cloud.Len() > 0 {
		path, err := p.store.Save(job.Frame, ts, job.Cloud)
		if err != nil {
			return result, err
		}
		result.ScanPath = path
	}

	if job.SaveImage && job.Image != nil && p.imageDir != "" {
		path, err := frames.SavePNG(p.imageDir, job.Frame, ts, job.Image)
		if err != nil {
			return result, err
		}
		result.ImagePath = path
	}

	if result.ScanPath != "" && p.catalog != nil {
		err := p.catalog.Record(context.Background(), catalog.ScanRecord{
			Session:    job.Session,
			Frame:      job.Frame,
			Path:       result.ScanPath,
			Format:     p.store.Format(),
			Points:     result.Points,
			CapturedAt: job.Timestamp,
			X:          job.Position.X,
			Y:          job.Position.Y,
			Z:          job.Position.Z,
			ImagePath:  result.ImagePath,
		})
		if err != nil {
			return result, err
		}
	}

	if p.publisher != nil && job.Cloud.Len() > 0 {
		if err := p.publisher.PublishScan(job.Session, job.Frame, result.Timestamp, job.Position, job.Cloud); err != nil {
			// the bus is best effort; the scan is already on disk
			p.logger.Warnf("Failed to publish scan %d: %v", job.Frame, err)
		}
	}
	return result, nil
}

// CreateProcessorFunc adapts Process to a JobProcessor.
func (p *ScanProcessor) CreateProcessorFunc() JobProcessor {
	return func(job *ScanJob) (*ProcessResult, error) {
		if job == nil {
			return nil, fmt.Errorf("nil scan job")
		}
		return p.Process(job)
	}
}

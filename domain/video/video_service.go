package video

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/airscan/domain/capture"
	"github.com/open-teleop/airscan/pkg/frames"
	customlog "github.com/open-teleop/airscan/pkg/log"
)

// Frame is one encoded camera image.
type Frame struct {
	Index     int
	Timestamp time.Time
	PNG       []byte
}

// VideoService streams camera frames to viewers as PNG
type VideoService struct {
	mu     sync.Mutex
	logger customlog.Logger
	subs   map[chan *Frame]struct{}

	latestImage image.Image
	latestIndex int
	latestAt    time.Time
	latestPNG   []byte
}

// NewVideoService creates a new video service instance
func NewVideoService(logger customlog.Logger) *VideoService {
	return &VideoService{logger: logger, subs: make(map[chan *Frame]struct{})}
}

// HandleFrame publishes the camera image of a captured frame, if it has one.
func (s *VideoService) HandleFrame(f *capture.Frame) {
	if f.Image == nil {
		return
	}
	s.Publish(f.Index, f.Timestamp, f.Image)
}

// Publish makes img the latest frame. It is only encoded when someone is
// watching; StreamHandler encodes on demand otherwise.
func (s *VideoService) Publish(index int, at time.Time, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestImage, s.latestIndex, s.latestAt, s.latestPNG = img, index, at, nil
	if len(s.subs) == 0 {
		return
	}

	frame, err := s.encodeLocked()
	if err != nil {
		s.logger.Warnf("Failed to encode frame %d: %v", index, err)
		return
	}
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- frame
	}
}

func (s *VideoService) encodeLocked() (*Frame, error) {
	if s.latestPNG == nil {
		data, err := frames.EncodePNG(s.latestImage)
		if err != nil {
			return nil, err
		}
		s.latestPNG = data
	}
	return &Frame{Index: s.latestIndex, Timestamp: s.latestAt, PNG: s.latestPNG}, nil
}

// Latest returns the most recent frame, encoding it if needed.
func (s *VideoService) Latest() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestImage == nil {
		return nil, nil
	}
	return s.encodeLocked()
}

// StartStream subscribes to frames. Only the newest frame is ever pending.
// The returned function stops the stream.
func (s *VideoService) StartStream() (<-chan *Frame, func()) {
	ch := make(chan *Frame, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// GetActiveStreams returns the number of open streams
func (s *VideoService) GetActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// StreamHandler serves the latest camera frame as a PNG
func (s *VideoService) StreamHandler(c *fiber.Ctx) error {
	frame, err := s.Latest()
	if err != nil {
		return err
	}
	if frame == nil {
		return fiber.NewError(fiber.StatusNotFound, "no camera frame yet")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set("X-Frame-Index", fmt.Sprint(frame.Index))
	return c.Send(frame.PNG)
}

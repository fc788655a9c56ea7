package processing

import (
	"image"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// ScanJob is one captured frame handed off for persistence.
type ScanJob struct {
	Session   string
	Frame     int
	Timestamp time.Time
	Cloud     *pointcloud.Cloud
	Image     image.Image
	Position  r3.Vector
	SaveScan  bool
	SaveImage bool
}

// ProcessResult is the outcome of processing a job
type ProcessResult struct {
	Topic     string
	Session   string
	Frame     int
	ScanPath  string
	ImagePath string
	Points    int
	Timestamp int64
	Error     error
}

// ResultHandler is a function that handles processed results
type ResultHandler func(result *ProcessResult)

// JobProcessor processes a job in a worker
type JobProcessor func(job *ScanJob) (*ProcessResult, error)

// FramePool is a bounded worker pool that keeps disk and network work off the
// flight loop. Submit never blocks: when the queue is full the frame is dropped.
type FramePool struct {
	name          string
	workerCount   int
	logger        customlog.Logger
	queue         chan *ScanJob
	running       bool
	wg            sync.WaitGroup
	mu            sync.RWMutex
	processor     JobProcessor
	resultHandler ResultHandler
	queueSize     int
	metrics       *PoolMetrics
}

// PoolMetrics tracks metrics for a pool
type PoolMetrics struct {
	ProcessedCount    int64
	ErrorCount        int64
	QueuedCount       int64
	DroppedCount      int64
	LastProcessedTime int64
	ProcessingTimeAvg int64 // in microseconds
	ProcessingTimeMax int64 // in microseconds
	mu                sync.Mutex
}

// NewFramePool creates a new pool; it does nothing until Start.
func NewFramePool(name string, workerCount, queueSize int, logger customlog.Logger) *FramePool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &FramePool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
		queue:       make(chan *ScanJob, queueSize),
		metrics:     &PoolMetrics{},
	}
}

// SetProcessor sets the job processor function
func (p *FramePool) SetProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processor = processor
}

// SetResultHandler sets the result handler function
func (p *FramePool) SetResultHandler(handler ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultHandler = handler
}

// Submit queues job. It returns false if the pool is stopped or full.
func (p *FramePool) Submit(job *ScanJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, discarding frame %d", p.name, job.Frame)
		return false
	}

	select {
	case p.queue <- job:
		p.metrics.mu.Lock()
		p.metrics.QueuedCount++
		p.metrics.mu.Unlock()
		return true
	default:
		p.metrics.mu.Lock()
		p.metrics.DroppedCount++
		p.metrics.mu.Unlock()
		p.logger.Warnf("%s pool queue is full, dropping frame %d", p.name, job.Frame)
		return false
	}
}

// Start starts the workers
func (p *FramePool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.logger.Infof("Starting %s pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting jobs, lets the workers drain the queue and waits for
// them. A stopped pool cannot be restarted.
func (p *FramePool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	p.logger.Infof("Stopping %s pool (%d queued)", p.name, len(p.queue))
	p.wg.Wait()
	p.logger.Infof("%s pool stopped", p.name)

	p.logMetrics()
}

func (p *FramePool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for job := range p.queue {
		p.mu.RLock()
		processor := p.processor
		resultHandler := p.resultHandler
		p.mu.RUnlock()

		if processor == nil {
			p.logger.Errorf("No processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		result, err := processor(job)
		processingTime := time.Since(startTime).Microseconds()

		p.metrics.mu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if err != nil {
			p.metrics.ErrorCount++
		}
		p.metrics.mu.Unlock()

		if result == nil {
			result = &ProcessResult{Session: job.Session, Frame: job.Frame, Timestamp: job.Timestamp.UnixNano()}
		}
		result.Error = err
		if err != nil {
			p.logger.Errorf("Error processing frame %d in %s pool: %v", job.Frame, p.name, err)
		}

		if resultHandler != nil {
			resultHandler(result)
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// GetMetrics returns a copy of the current metrics
func (p *FramePool) GetMetrics() PoolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	return PoolMetrics{
		ProcessedCount:    p.metrics.ProcessedCount,
		ErrorCount:        p.metrics.ErrorCount,
		QueuedCount:       p.metrics.QueuedCount,
		DroppedCount:      p.metrics.DroppedCount,
		LastProcessedTime: p.metrics.LastProcessedTime,
		ProcessingTimeAvg: p.metrics.ProcessingTimeAvg,
		ProcessingTimeMax: p.metrics.ProcessingTimeMax,
	}
}

func (p *FramePool) logMetrics() {
	m := p.GetMetrics()
	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, m.ProcessedCount, m.ErrorCount, m.DroppedCount,
		m.ProcessingTimeAvg, m.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *FramePool) GetName() string {
	return p.name
}

// GetQueueLength returns the number of jobs waiting
func (p *FramePool) GetQueueLength() int {
	return len(p.queue)
}

// GetQueueCapacity returns the capacity of the queue
func (p *FramePool) GetQueueCapacity() int {
	return p.queueSize
}

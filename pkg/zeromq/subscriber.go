package zeromq

import (
	"fmt"
	"sync"
	"sync/atomic"

	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/pebbe/zmq4"
)

// ScanSubscriber receives ScanFrames published by a flight tool.
type ScanSubscriber struct {
	ctx     *zmq4.Context
	socket  *zmq4.Socket
	poller  *zmq4.Poller
	logger  customlog.Logger
	handle  func(*ScanMessage)
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScanSubscriber connects a SUB socket to address; handle runs on the
// receive goroutine for every decoded scan.
func NewScanSubscriber(address string, handle func(*ScanMessage), logger customlog.Logger) (*ScanSubscriber, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	fail := func(err error) (*ScanSubscriber, error) {
		socket.Close()
		ctx.Term()
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		return fail(fmt.Errorf("failed to set linger option: %w", err))
	}
	if err := socket.SetSubscribe(TopicScan); err != nil {
		return fail(fmt.Errorf("failed to subscribe: %w", err))
	}
	if err := socket.Connect(address); err != nil {
		return fail(fmt.Errorf("failed to connect to %s: %w", address, err))
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)
	return &ScanSubscriber{ctx: ctx, socket: socket, poller: poller, logger: logger, handle: handle}, nil
}

// Start begins receiving.
func (l *ScanSubscriber) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.wg.Add(1)
	go l.receiveLoop()
}

// Stop ends the receive loop and releases the socket.
func (l *ScanSubscriber) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.wg.Wait()
	l.ctx.Term()
}

func (l *ScanSubscriber) receiveLoop() {
	defer l.wg.Done()
	defer l.socket.Close()

	for l.running.Load() {
		sockets, err := l.poller.Poll(pollInterval)
		if err != nil || len(sockets) == 0 {
			continue
		}
		parts, err := l.socket.RecvMessageBytes(0)
		if err != nil {
			l.logger.Warnf("Error receiving scan: %v", err)
			continue
		}
		// prefix subscriptions also match longer topics such as airscan.scan.saved
		if len(parts) != 2 || string(parts[0]) != TopicScan {
			continue
		}
		msg, err := DecodeScanFrame(parts[1])
		if err != nil {
			l.logger.Warnf("Dropping scan: %v", err)
			continue
		}
		l.logger.Debugf("Received scan %d from session %s (%d points)", msg.Frame, msg.Session, msg.Cloud.Len())
		l.handle(msg)
	}
}

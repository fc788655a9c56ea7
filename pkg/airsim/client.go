package airsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Common errors
var (
	ErrClosed   = errors.New("airsim: client is closed")
	ErrShutdown = errors.New("airsim: connection shut down")
)

// msgpack-rpc message kinds
const (
	msgRequest  = 0
	msgResponse = 1
	msgNotify   = 2
)

// RPCError is an error reported by the simulator for one call.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("airsim: %s failed: %s", e.Method, e.Message)
}

// Call is an in-flight or completed RPC.
type Call struct {
	Method string
	Args   []interface{}
	Result msgpack.RawMessage
	Error  error
	Done   chan *Call

	seq uint32
}

// Decode unmarshals the call result into v. It returns the call error, if any.
func (c *Call) Decode(v interface{}) error {
	if c.Error != nil {
		return c.Error
	}
	if v == nil || len(c.Result) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(c.Result, v); err != nil {
		return fmt.Errorf("airsim: decoding %s result: %w", c.Method, err)
	}
	return nil
}

func (c *Call) done() {
	select {
	case c.Done <- c:
	default:
		// Done is buffered; a full channel means the call was already completed.
	}
}

// Client is a msgpack-rpc client for the simulator's RPC server.
// It is safe for concurrent use.
type Client struct {
	conn    net.Conn
	enc     *msgpack.Encoder
	dec     *msgpack.Decoder
	logger  customlog.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      uint32
	pending  map[uint32]*Call
	closing  bool
	shutdown bool

	readDone chan struct{}
}

// Dial connects to the simulator RPC server at address.
func Dial(ctx context.Context, address string, logger customlog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial simulator at %s: %w", address, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established connection and starts the response reader.
func NewClient(conn net.Conn, logger customlog.Logger) *Client {
	if logger == nil {
		logger = customlog.Must("info", "")
	}
	c := &Client{
		conn:     conn,
		enc:      msgpack.NewEncoder(conn),
		dec:      msgpack.NewDecoder(conn),
		logger:   logger,
		pending:  make(map[uint32]*Call),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetTimeout bounds queries (state, sensors, images). Flight commands that
// block until the maneuver completes are bounded only by their context.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Go starts an RPC and returns without waiting for the result.
func (c *Client) Go(method string, args ...interface{}) *Call {
	if args == nil {
		args = []interface{}{}
	}
	call := &Call{Method: method, Args: args, Done: make(chan *Call, 1)}
	c.send(call)
	return call
}

// Call invokes method and waits for its result, decoding it into result
// when result is non-nil.
func (c *Client) Call(ctx context.Context, method string, result interface{}, args ...interface{}) error {
	call := c.Go(method, args...)
	select {
	case <-call.Done:
		return call.Decode(result)
	case <-ctx.Done():
		c.forget(call)
		return fmt.Errorf("airsim: %s: %w", method, ctx.Err())
	}
}

// query is Call bounded by the client timeout.
func (c *Client) query(ctx context.Context, method string, result interface{}, args ...interface{}) error {
	c.mu.Lock()
	timeout := c.timeout
	c.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Call(ctx, method, result, args...)
}

func (c *Client) send(call *Call) {
	c.mu.Lock()
	if c.closing || c.shutdown {
		c.mu.Unlock()
		call.Error = ErrClosed
		call.done()
		return
	}
	call.seq = c.seq
	c.seq++
	c.pending[call.seq] = call
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.enc.Encode([]interface{}{msgRequest, call.seq, call.Method, call.Args})
	c.writeMu.Unlock()

	if err != nil {
		if pending := c.forget(call); pending != nil {
			pending.Error = fmt.Errorf("airsim: sending %s: %w", call.Method, err)
			pending.done()
		}
	}
}

// forget drops a pending call; a late response for it is discarded.
func (c *Client) forget(call *Call) *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending, ok := c.pending[call.seq]
	if !ok || pending != call {
		return nil
	}
	delete(c.pending, call.seq)
	return pending
}

func (c *Client) readLoop() {
	defer close(c.readDone)

	var err error
	for err == nil {
		err = c.readResponse()
	}

	c.mu.Lock()
	c.shutdown = true
	closing := c.closing
	if errors.Is(err, io.EOF) || closing {
		err = ErrShutdown
	}
	for seq, call := range c.pending {
		delete(c.pending, seq)
		call.Error = err
		call.done()
	}
	c.mu.Unlock()

	if !closing {
		c.logger.Warnf("Simulator connection lost: %v", err)
	}
}

func (c *Client) readResponse() error {
	n, err := c.dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	kind, err := c.dec.DecodeInt()
	if err != nil {
		return err
	}
	if kind == msgNotify {
		// [2, method, params]; the simulator does not send these today.
		for i := 1; i < n; i++ {
			if err := c.dec.Skip(); err != nil {
				return err
			}
		}
		return nil
	}
	if kind != msgResponse || n != 4 {
		return fmt.Errorf("airsim: unexpected message kind %d with %d elements", kind, n)
	}

	seq, err := c.dec.DecodeUint32()
	if err != nil {
		return err
	}
	rpcErr, err := c.dec.DecodeInterface()
	if err != nil {
		return err
	}
	result, err := c.dec.DecodeRaw()
	if err != nil {
		return err
	}

	c.mu.Lock()
	call := c.pending[seq]
	delete(c.pending, seq)
	c.mu.Unlock()

	if call == nil {
		c.logger.Debugf("Discarding response for unknown or abandoned call %d", seq)
		return nil
	}
	if rpcErr != nil {
		call.Error = &RPCError{Method: call.Method, Message: fmt.Sprint(rpcErr)}
	} else {
		call.Result = result
	}
	call.done()
	return nil
}

// Close shuts the connection down and fails all pending calls.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closing = true
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.readDone
	return err
}

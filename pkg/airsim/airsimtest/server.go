// Package airsimtest provides an in-process stand-in for the simulator RPC
// server. It speaks the same msgpack-rpc framing as the real server and keeps
// just enough vehicle state for flight loops to be exercised in tests.
package airsimtest

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/vmihailenco/msgpack/v5"
)

// Handler serves one RPC method.
type Handler func(args []msgpack.RawMessage) (interface{}, error)

// Call is a recorded request.
type Call struct {
	Method string
	Args   []msgpack.RawMessage
}

// Arg decodes argument i into v.
func (c Call) Arg(i int, v interface{}) error {
	if i >= len(c.Args) {
		return fmt.Errorf("%s has %d args, want index %d", c.Method, len(c.Args), i)
	}
	return msgpack.Unmarshal(c.Args[i], v)
}

// Server is a fake simulator.
type Server struct {
	listener net.Listener

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	state    airsim.MultirotorState
	lidar    airsim.LidarData
	image    airsim.ImageResponse
	armed    bool
	control  bool
	conns    map[net.Conn]struct{}

	wg sync.WaitGroup
}

// New starts a server on a loopback port and stops it when the test ends.
func New(tb testing.TB) *Server {
	tb.Helper()
	s, err := Start()
	if err != nil {
		tb.Fatalf("airsimtest: %v", err)
	}
	tb.Cleanup(s.Close)
	return s
}

// Start starts a server on a loopback port.
func Start() (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: l,
		handlers: make(map[string]Handler),
		conns:    make(map[net.Conn]struct{}),
	}
	s.state.KinematicsEstimated.Orientation = airsim.IdentityQuaternion
	s.lidar.Pose.Orientation = airsim.IdentityQuaternion
	s.installDefaults()

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr is the host:port clients should dial.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Handle replaces the handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Fail makes method return an RPC error with message.
func (s *Server) Fail(method, message string) {
	s.Handle(method, func([]msgpack.RawMessage) (interface{}, error) {
		return nil, errors.New(message)
	})
}

// SetLidar sets the data returned by getLidarData.
func (s *Server) SetLidar(d airsim.LidarData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lidar = d
}

// SetImage sets the response returned for every image request.
func (s *Server) SetImage(r airsim.ImageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = r
}

// UpdateState mutates the vehicle state under the server lock.
func (s *Server) UpdateState(fn func(*airsim.MultirotorState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// State returns a copy of the vehicle state.
func (s *Server) State() airsim.MultirotorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Armed reports whether the motors are armed.
func (s *Server) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// APIControl reports whether API control is enabled.
func (s *Server) APIControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the requests for one method.
func (s *Server) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the method names in call order.
func (s *Server) Methods() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	dec := msgpack.NewDecoder(conn)
	enc := msgpack.NewEncoder(conn)
	for {
		seq, call, err := readRequest(dec)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		h := s.handlers[call.Method]
		s.mu.Unlock()

		var result interface{}
		var rpcErr interface{}
		if h == nil {
			rpcErr = fmt.Sprintf("rpc method %q not found", call.Method)
		} else if res, err := h(call.Args); err != nil {
			rpcErr = err.Error()
		} else {
			result = res
		}

		if err := enc.Encode([]interface{}{1, seq, rpcErr, result}); err != nil {
			return
		}
	}
}

func readRequest(dec *msgpack.Decoder) (uint32, Call, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, Call{}, err
	}
	if n != 4 {
		return 0, Call{}, fmt.Errorf("request has %d elements", n)
	}
	if _, err := dec.DecodeInt(); err != nil {
		return 0, Call{}, err
	}
	seq, err := dec.DecodeUint32()
	if err != nil {
		return 0, Call{}, err
	}
	method, err := dec.DecodeString()
	if err != nil {
		return 0, Call{}, err
	}
	argc, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, Call{}, err
	}
	call := Call{Method: method}
	for i := 0; i < argc; i++ {
		raw, err := dec.DecodeRaw()
		if err != nil {
			return 0, Call{}, err
		}
		call.Args = append(call.Args, raw)
	}
	return seq, call, nil
}

func arg(args []msgpack.RawMessage, i int, v interface{}) error {
	if i >= len(args) {
		return fmt.Errorf("missing argument %d", i)
	}
	return msgpack.Unmarshal(args[i], v)
}

// installDefaults registers handlers that keep a plausible vehicle state.
// Handlers run with s.mu released, so they lock it themselves.
func (s *Server) installDefaults() {
	s.handlers["ping"] = func([]msgpack.RawMessage) (interface{}, error) { return true, nil }
	s.handlers["getServerVersion"] = func([]msgpack.RawMessage) (interface{}, error) { return 1, nil }
	s.handlers["hover"] = func([]msgpack.RawMessage) (interface{}, error) { return nil, nil }

	s.handlers["enableApiControl"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var enabled bool
		if err := arg(args, 0, &enabled); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.control = enabled
		s.mu.Unlock()
		return nil, nil
	}
	s.handlers["isApiControlEnabled"] = func([]msgpack.RawMessage) (interface{}, error) {
		return s.APIControl(), nil
	}
	s.handlers["armDisarm"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var arm bool
		if err := arg(args, 0, &arm); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.armed = arm
		s.mu.Unlock()
		return true, nil
	}
	s.handlers["takeoff"] = func([]msgpack.RawMessage) (interface{}, error) {
		s.UpdateState(func(st *airsim.MultirotorState) {
			st.KinematicsEstimated.Position.Z = -3
			st.LandedState = airsim.Flying
		})
		return true, nil
	}
	s.handlers["land"] = func([]msgpack.RawMessage) (interface{}, error) {
		s.UpdateState(func(st *airsim.MultirotorState) {
			st.KinematicsEstimated.Position.Z = 0
			st.KinematicsEstimated.LinearVelocity = airsim.Vector3r{}
			st.LandedState = airsim.Landed
		})
		return true, nil
	}
	s.handlers["moveByVelocity"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var vx, vy, vz, duration float64
		for i, p := range []*float64{&vx, &vy, &vz, &duration} {
			if err := arg(args, i, p); err != nil {
				return nil, err
			}
		}
		s.UpdateState(func(st *airsim.MultirotorState) {
			k := &st.KinematicsEstimated
			k.LinearVelocity = airsim.Vector3r{X: vx, Y: vy, Z: vz}
			k.Position.X += vx * duration
			k.Position.Y += vy * duration
			k.Position.Z += vz * duration
		})
		return nil, nil
	}
	s.handlers["moveToPosition"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var x, y, z float64
		for i, p := range []*float64{&x, &y, &z} {
			if err := arg(args, i, p); err != nil {
				return nil, err
			}
		}
		s.UpdateState(func(st *airsim.MultirotorState) {
			st.KinematicsEstimated.Position = airsim.Vector3r{X: x, Y: y, Z: z}
		})
		return true, nil
	}
	s.handlers["moveToZ"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var z float64
		if err := arg(args, 0, &z); err != nil {
			return nil, err
		}
		s.UpdateState(func(st *airsim.MultirotorState) {
			st.KinematicsEstimated.Position.Z = z
		})
		return true, nil
	}
	s.handlers["getMultirotorState"] = func([]msgpack.RawMessage) (interface{}, error) {
		return s.State(), nil
	}
	s.handlers["getLidarData"] = func([]msgpack.RawMessage) (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lidar, nil
	}
	s.handlers["simGetImages"] = func(args []msgpack.RawMessage) (interface{}, error) {
		var requests []airsim.ImageRequest
		if err := arg(args, 0, &requests); err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]airsim.ImageResponse, len(requests))
		for i, r := range requests {
			out[i] = s.image
			out[i].ImageType = r.ImageType
		}
		return out, nil
	}
}

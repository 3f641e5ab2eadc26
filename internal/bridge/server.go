// Package bridge is the TCP transport between vehicles and the mission
// manager. The server side never blocks in its polling path: an accept
// goroutine and one reader goroutine per connection feed channels, and
// Accept and Listen are non-blocking receives that report "nothing yet" as
// a nil result, so the caller's loop owns all scheduling.
package bridge

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marineops-bridge/internal/wire"
)

// DefaultAddr is the well-known bridge port.
const DefaultAddr = ":57722"

const (
	readBufferSize = 64 * 1024
	acceptBacklog  = 64
)

// ErrConnDead reports a connection that was reset, closed by the peer or
// failed a write. The connection has already been closed and removed.
var ErrConnDead = errors.New("bridge: connection dead")

// ErrServerClosed is returned by Accept after Close.
var ErrServerClosed = errors.New("bridge: server closed")

// Option configures a Server.
type Option func(*Server)

// WithWriteTimeout bounds a single Send.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server holds one TCP listener and the set of live connections.
// Accept, Listen, Send and Drop must be called from a single goroutine;
// Conns and Addr are safe to call from anywhere.
type Server struct {
	ln           *net.TCPListener
	writeTimeout time.Duration
	log          zerolog.Logger

	accepted  chan *net.TCPConn
	acceptErr chan error
	failure   error
	done      chan struct{}
	wg        sync.WaitGroup

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

// Listen binds addr. A bind failure is returned unchanged so the caller
// can fail fast; it is never retried.
func Listen(addr string, opts ...Option) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &Server{
		ln:           ln,
		writeTimeout: 5 * time.Second,
		log:          zerolog.Nop(),
		accepted:     make(chan *net.TCPConn, acceptBacklog),
		acceptErr:    make(chan error, 1),
		done:         make(chan struct{}),
		conns:        make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.AcceptTCP()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.acceptErr <- fmt.Errorf("accept: %w", err)
			}
			return
		}
		select {
		case s.accepted <- nc:
		case <-s.done:
			_ = nc.Close()
			return
		}
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Accept returns a newly accepted connection, or nil when none is pending.
// An error means the listener itself failed.
func (s *Server) Accept() (*Conn, error) {
	if s.isClosed() {
		return nil, ErrServerClosed
	}
	if s.failure != nil {
		return nil, s.failure
	}
	var nc *net.TCPConn
	select {
	case nc = <-s.accepted:
	case err := <-s.acceptErr:
		s.failure = err
		return nil, err
	default:
		return nil, nil
	}
	_ = nc.SetNoDelay(true)
	c := newConn(nc)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.readLoop()
	}()

	s.log.Debug().Str("conn_id", c.id).Str("remote", c.remote).Msg("connection accepted")
	return c, nil
}

// Listen returns the next complete frame from c, or nil when none has
// arrived yet. Frames that arrive together are queued on the connection
// and handed out one per call. On EOF, reset or a framing violation the
// connection is closed and the returned error wraps ErrConnDead.
func (s *Server) Listen(c *Conn) (*wire.Frame, error) {
	if c.closed {
		return nil, fmt.Errorf("listen %s: %w", c.id, ErrConnDead)
	}
	select {
	case ev := <-c.events:
		if ev.err != nil {
			return nil, s.kill(c, ev.err)
		}
		return &ev.frame, nil
	default:
		return nil, nil
	}
}

// Send writes one frame to c. A failure closes and removes the connection
// and wraps ErrConnDead; it is not retried.
func (s *Server) Send(c *Conn, f wire.Frame) error {
	if c.closed {
		return fmt.Errorf("send %s: %w", c.id, ErrConnDead)
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return s.kill(c, fmt.Errorf("set write deadline: %w", err))
	}
	if err := wire.WriteFrame(c.nc, f); err != nil {
		return s.kill(c, err)
	}
	return nil
}

// Drop closes c and removes it from the live set. Dropping an already
// closed connection is a no-op.
func (s *Server) Drop(c *Conn) {
	if c.closed {
		return
	}
	c.closed = true
	c.stop()
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// Conns returns a snapshot of the live connections ordered by id.
func (s *Server) Conns() []*Conn {
	s.mu.RLock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Close shuts the listener and every live connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = make(map[string]*Conn)
	s.mu.Unlock()

	close(s.done)
	err := s.ln.Close()
	for _, c := range conns {
		c.closed = true
		c.stop()
	}
	s.wg.Wait()
	for {
		select {
		case nc := <-s.accepted:
			_ = nc.Close()
		default:
			return err
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Server) kill(c *Conn, cause error) error {
	s.log.Debug().Str("conn_id", c.id).Err(cause).Msg("connection dead")
	s.Drop(c)
	return fmt.Errorf("%w: %s: %w", ErrConnDead, c.id, cause)
}

package bridge

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"marineops-bridge/internal/wire"
)

// eventBuffer is how many decoded frames a connection holds before its
// reader stops draining the socket.
const eventBuffer = 16

// event is one decoded frame or the error that ended the reader.
type event struct {
	frame wire.Frame
	err   error
}

// Conn is one accepted vehicle connection. A reader goroutine decodes
// frames into a buffered channel; every other field is owned by the
// goroutine driving the Server.
type Conn struct {
	id       string
	remote   string
	accepted time.Time
	nc       net.Conn
	events   chan event
	done     chan struct{}
	stopOnce sync.Once
	failed   atomic.Bool
	closed   bool
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		remote:   nc.RemoteAddr().String(),
		accepted: time.Now(),
		nc:       nc,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// ID is a unique identifier assigned at accept time.
func (c *Conn) ID() string { return c.id }

// RemoteAddr is the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// AcceptedAt is when the connection was accepted.
func (c *Conn) AcceptedAt() time.Time { return c.accepted }

// Pending reports how many decoded frames and errors are waiting for
// Listen.
func (c *Conn) Pending() int { return len(c.events) }

// Failed reports whether the reader has stopped on EOF, a read error or a
// framing violation. Frames decoded before that are still delivered by
// Listen.
func (c *Conn) Failed() bool { return c.failed.Load() }

func (c *Conn) readLoop() {
	var dec wire.Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, f := range frames {
				if !c.deliver(event{frame: f}) {
					return
				}
			}
			if ferr != nil {
				c.failed.Store(true)
				c.deliver(event{err: ferr})
				return
			}
		}
		if err != nil {
			c.failed.Store(true)
			c.deliver(event{err: err})
			return
		}
	}
}

func (c *Conn) deliver(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// stop closes the socket and releases the reader.
func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.nc.Close()
	})
}

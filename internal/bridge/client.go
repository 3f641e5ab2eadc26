package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"marineops-bridge/internal/wire"
)

// Client is the vehicle side of the bridge. It sends states and receives
// instructions. A Client is not safe for concurrent use.
type Client struct {
	nc      net.Conn
	dec     wire.Decoder
	pending []wire.Frame
	buf     []byte
}

// Dial connects to a bridge server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	nc, err := (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", addr, err)
	}
	return &Client{nc: nc, buf: make([]byte, readBufferSize)}, nil
}

// SendState sends s as a STATE frame.
func (c *Client) SendState(s wire.State) error {
	payload, err := wire.EncodeState(s)
	if err != nil {
		return err
	}
	return c.SendFrame(wire.Frame{Type: wire.TypeState, Payload: payload})
}

// SendFrame writes a raw frame.
func (c *Client) SendFrame(f wire.Frame) error {
	return wire.WriteFrame(c.nc, f)
}

// Receive waits up to timeout for the next instruction. ok is false when
// nothing arrived in time. A closed connection returns io.EOF.
func (c *Client) Receive(timeout time.Duration) (in wire.Instruction, t wire.Type, ok bool, err error) {
	deadline := time.Now().Add(timeout)
	for {
		if len(c.pending) > 0 {
			f := c.pending[0]
			c.pending = c.pending[1:]
			if f.Type == wire.TypeState {
				return in, f.Type, false, &wire.ProtocolError{Reason: "server sent a STATE frame"}
			}
			in, err = wire.DecodeInstruction(f.Payload)
			if err != nil {
				return in, f.Type, false, err
			}
			return in, f.Type, true, nil
		}
		if err := c.nc.SetReadDeadline(deadline); err != nil {
			return in, 0, false, err
		}
		n, rerr := c.nc.Read(c.buf)
		if n > 0 {
			frames, ferr := c.dec.Feed(c.buf[:n])
			c.pending = append(c.pending, frames...)
			if ferr != nil {
				return in, 0, false, ferr
			}
		}
		if rerr != nil {
			if isTimeout(rerr) {
				if len(c.pending) > 0 {
					continue
				}
				return in, 0, false, nil
			}
			if errors.Is(rerr, net.ErrClosed) {
				return in, 0, false, io.EOF
			}
			return in, 0, false, rerr
		}
	}
}

// LocalAddr is the client-side socket address.
func (c *Client) LocalAddr() string {
	return c.nc.LocalAddr().String()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.nc.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

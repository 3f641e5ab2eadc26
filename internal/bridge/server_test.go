package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"marineops-bridge/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dialTest(t *testing.T, s *Server) *Client {
	t.Helper()
	c, err := Dial(context.Background(), s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func acceptOne(t *testing.T, s *Server) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := s.Accept()
		require.NoError(t, err)
		if c != nil {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no connection accepted")
	return nil
}

func listenOne(t *testing.T, s *Server, c *Conn) (*wire.Frame, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := s.Listen(c)
		if err != nil || f != nil {
			return f, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no frame received")
	return nil, nil
}

func TestAcceptReturnsImmediately(t *testing.T) {
	s := newTestServer(t)
	start := time.Now()
	c, err := s.Accept()
	require.NoError(t, err)
	require.Nil(t, c)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestListenNoData(t *testing.T) {
	s := newTestServer(t)
	dialTest(t, s)
	c := acceptOne(t, s)
	f, err := s.Listen(c)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestStateAndInstructionExchange(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	c := acceptOne(t, s)

	require.NoError(t, client.SendState(wire.State{VehicleID: "felix", NavX: 1, NavY: 2, NavHeading: 3, MOOSTime: 4}))
	f, err := listenOne(t, s, c)
	require.NoError(t, err)
	require.Equal(t, wire.TypeState, f.Type)
	st, err := wire.DecodeState(f.Payload)
	require.NoError(t, err)
	require.Equal(t, "felix", st.VehicleID)

	payload, err := wire.EncodeInstruction(wire.RequestState)
	require.NoError(t, err)
	require.NoError(t, s.Send(c, wire.Frame{Type: wire.TypeCtrl, Payload: payload}))

	in, typ, ok, err := client.Receive(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wire.TypeCtrl, typ)
	require.Equal(t, wire.CtrlSendState, in.CtrlMsg)
}

func TestListenQueuesCoalescedFrames(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	c := acceptOne(t, s)

	var batch []byte
	for _, id := range []string{"a", "b", "c"} {
		p, err := wire.EncodeState(wire.State{VehicleID: id})
		require.NoError(t, err)
		batch = append(batch, wire.Encode(wire.TypeState, p)...)
	}
	_, err := client.nc.Write(batch)
	require.NoError(t, err)

	var ids []string
	for len(ids) < 3 {
		f, err := listenOne(t, s, c)
		require.NoError(t, err)
		st, err := wire.DecodeState(f.Payload)
		require.NoError(t, err)
		ids = append(ids, st.VehicleID)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
	require.Zero(t, c.Pending())
}

func TestListenReportsDeadConnection(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	c := acceptOne(t, s)
	require.Len(t, s.Conns(), 1)

	require.NoError(t, client.Close())
	_, err := listenOne(t, s, c)
	require.ErrorIs(t, err, ErrConnDead)
	require.Empty(t, s.Conns())

	err = s.Send(c, wire.Frame{Type: wire.TypeCtrl})
	require.ErrorIs(t, err, ErrConnDead)
}

func TestListenDropsProtocolViolation(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	c := acceptOne(t, s)

	_, err := client.nc.Write([]byte{0, 0, 0, 1, 0, 0, 0, 42, 'x'})
	require.NoError(t, err)
	_, err = listenOne(t, s, c)
	require.ErrorIs(t, err, ErrConnDead)
	var pe *wire.ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Empty(t, s.Conns())
}

func TestAcceptAfterClose(t *testing.T) {
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Accept()
	require.ErrorIs(t, err, ErrServerClosed)
}

func TestListenBindFailure(t *testing.T) {
	s := newTestServer(t)
	_, err := Listen(s.Addr().String())
	require.Error(t, err)
}

func TestClientReceiveTimeout(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	acceptOne(t, s)
	_, _, ok, err := client.Receive(20 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPollingIdleConnectionsDoesNotWait(t *testing.T) {
	s := newTestServer(t)
	var conns []*Conn
	for i := 0; i < 50; i++ {
		dialTest(t, s)
		conns = append(conns, acceptOne(t, s))
	}

	start := time.Now()
	for pass := 0; pass < 10; pass++ {
		c, err := s.Accept()
		require.NoError(t, err)
		require.Nil(t, c)
		for _, c := range conns {
			f, err := s.Listen(c)
			require.NoError(t, err)
			require.Nil(t, f)
		}
	}
	// 500 idle checks; a per-socket wait of even 1ms would take 500ms.
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestFailedAfterPeerClose(t *testing.T) {
	s := newTestServer(t)
	client := dialTest(t, s)
	c := acceptOne(t, s)
	require.False(t, c.Failed())

	require.NoError(t, client.SendState(wire.State{VehicleID: "felix"}))
	require.NoError(t, client.Close())
	require.Eventually(t, c.Failed, 2*time.Second, time.Millisecond)

	// the frame sent before the close is still delivered
	f, err := listenOne(t, s, c)
	require.NoError(t, err)
	require.Equal(t, wire.TypeState, f.Type)
	_, err = listenOne(t, s, c)
	require.ErrorIs(t, err, ErrConnDead)
}

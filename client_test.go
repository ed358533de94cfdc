package modbus

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipePair returns a connected pair of net.Conns and continuously drains
// whatever the client writes to conn, so Write calls never block waiting
// for a reader the test doesn't provide. The test drives the other
// (server) side explicitly to simulate replies.
func pipePair(t *testing.T) (clientConn, serverConn net.Conn) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() {
		c.Close()
		s.Close()
	})
	go io.Copy(io.Discard, s)
	return c, s
}

// Scenario 1: create a session, close the producer handle immediately,
// run the loop -> terminates with Shutdown.
func TestClientShutdownOnProducerDrop(t *testing.T) {
	c, _ := pipePair(t)
	reqs := make(chan *Request)
	close(reqs)

	client := NewClient(c, reqs)
	err := client.Run()
	require.ErrorIs(t, err, ErrShutdown)
}

// Scenario 2: submit ReadCoils(start=7, count=2) with a short timeout.
// The transport accepts the outbound bytes but yields no reply. The
// request resolves with ResponseTimeout; the session remains running
// until the producer is closed, then Shutdown.
func TestClientTimeoutWithoutResponse(t *testing.T) {
	c, _ := pipePair(t)
	reqs := make(chan *Request, 1)

	req, future, err := NewReadCoilsRequest(1, 20*time.Millisecond, AddressRange{Start: 7, Count: 2})
	require.NoError(t, err)
	reqs <- req

	client := NewClient(c, reqs)
	done := make(chan error, 1)
	go func() { done <- client.Run() }()

	result := future.Recv()
	require.ErrorIs(t, result.Err, ErrResponseTimeout)

	close(reqs)
	require.ErrorIs(t, <-done, ErrShutdown)
}

// Scenario 3: a reply whose protocol_id bytes are 0xCA 0xFE kills the
// session with BadFrame(UnknownProtocolId(0xCAFE)); the pending request
// resolves with the same error.
func TestClientBadFrameKillsSession(t *testing.T) {
	c, s := pipePair(t)
	reqs := make(chan *Request, 1)

	req, future, err := NewReadCoilsRequest(1, time.Second, AddressRange{Start: 7, Count: 2})
	require.NoError(t, err)
	reqs <- req

	client := NewClient(c, reqs)
	done := make(chan error, 1)
	go func() { done <- client.Run() }()

	// Header only: the parser rejects the protocol id before reading any
	// body, and net.Pipe's Write would block on bytes nobody reads.
	badFrame := []byte{0, 0, 0xCA, 0xFE, 0, 2, 1}
	_, err = s.Write(badFrame)
	require.NoError(t, err)

	result := future.Recv()
	var bf *BadFrame
	require.ErrorAs(t, result.Err, &bf)
	require.Equal(t, UnknownProtocolId, bf.Kind)
	require.Equal(t, 0xCAFE, bf.Value)

	runErr := <-done
	require.ErrorAs(t, runErr, &bf)
}

// Scenario 4: submit ReadCoils(start=7, count=2); the transport delivers a
// well-formed reply for tx_id 0. The request resolves with
// [{index:7,value:true},{index:8,value:false}].
func TestClientHappyPathReadCoils(t *testing.T) {
	c, s := pipePair(t)
	reqs := make(chan *Request, 1)

	req, future, err := NewReadCoilsRequest(1, time.Second, AddressRange{Start: 7, Count: 2})
	require.NoError(t, err)
	reqs <- req

	client := NewClient(c, reqs)
	done := make(chan error, 1)
	go func() { done <- client.Run() }()

	// header: tx_id=0, protocol_id=0, length=4, unit_id=1
	// payload: fc=1, byte_count=1, bits=0b00000001 (coil 7 on, coil 8 off)
	reply := []byte{0, 0, 0, 0, 0, 4, 1, 1, 1, 0b00000001}
	_, err = s.Write(reply)
	require.NoError(t, err)

	result := future.Recv()
	require.NoError(t, result.Err)
	require.Equal(t, []bool{true, false}, result.Value)

	close(reqs)
	require.ErrorIs(t, <-done, ErrShutdown)
}

// Stale-frame rejection: a reply for a prior, already-timed-out tx_id must
// never resolve the current request; the loop keeps waiting and the
// current request's own matching reply still resolves it correctly.
func TestClientDiscardsStaleFrame(t *testing.T) {
	c, s := pipePair(t)
	reqs := make(chan *Request, 2)

	req1, future1, err := NewReadCoilsRequest(1, 15*time.Millisecond, AddressRange{Start: 0, Count: 1})
	require.NoError(t, err)
	req2, future2, err := NewReadCoilsRequest(1, time.Second, AddressRange{Start: 0, Count: 1})
	require.NoError(t, err)
	reqs <- req1
	reqs <- req2

	client := NewClient(c, reqs)
	done := make(chan error, 1)
	go func() { done <- client.Run() }()

	// req1 times out with no reply ever sent for tx_id 0.
	result1 := future1.Recv()
	require.ErrorIs(t, result1.Err, ErrResponseTimeout)

	// The late reply for tx_id 0 finally arrives - stale, must be dropped.
	stale := []byte{0, 0, 0, 0, 0, 3, 1, 1, 0}
	_, err = s.Write(stale)
	require.NoError(t, err)

	// req2 (tx_id 1) gets its own matching reply.
	reply := []byte{0, 1, 0, 0, 0, 4, 1, 1, 1, 1}
	_, err = s.Write(reply)
	require.NoError(t, err)

	result2 := future2.Recv()
	require.NoError(t, result2.Err)
	require.Equal(t, []bool{true}, result2.Value)

	close(reqs)
	require.ErrorIs(t, <-done, ErrShutdown)
}

// TestClientDrainResolvesWithNoConnection exercises the fail-fast drain
// mode a supervisor enters after a session dies.
func TestClientDrainResolvesWithNoConnection(t *testing.T) {
	c, _ := pipePair(t)
	reqs := make(chan *Request, 1)
	client := NewClient(c, reqs)

	req, future, err := NewReadCoilsRequest(1, time.Second, AddressRange{Start: 0, Count: 1})
	require.NoError(t, err)
	reqs <- req

	client.Drain(50 * time.Millisecond)

	result := future.Recv()
	require.ErrorIs(t, result.Err, ErrNoConnection)
}

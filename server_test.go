package modbus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Scenario 5 end to end: a client dials the server, sends a ReadCoils
// request against a unit with a bound handler, and gets back the handler's
// answer framed as a reply PDU.
func TestServeReadCoilsEndToEnd(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	devices := NewDeviceMap()
	require.True(t, devices.AddEndpoint(1, &stubHandler{
		readCoil: func(index uint16) ReadBitResult {
			return ReadBitResult{Value: index == 0, Ok: true}
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewServer()
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, listener, devices) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var f Formatter
	req, err := f.Format(Header{UnitId: 1, TxId: 5}, EncodeReadRequest(ReadCoils, AddressRange{Start: 0, Count: 1}))
	require.NoError(t, err)
	_, err = conn.Write(req)
	require.NoError(t, err)

	var p Parser
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := p.NextFrame(conn)
	require.NoError(t, err)
	require.Equal(t, TxId(5), frame.Header.TxId)
	require.Equal(t, []byte{byte(ReadCoils), 1, 0b00000001}, frame.Payload)

	cancel()
	require.NoError(t, <-serveErr)
}

// A request against an unbound unit id gets GatewayTargetFailedToRespond,
// and the connection stays open for further requests.
func TestServeUnboundUnitId(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	devices := NewDeviceMap()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewServer()
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, listener, devices) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var f Formatter
	req, err := f.Format(Header{UnitId: 9, TxId: 1}, EncodeReadRequest(ReadCoils, AddressRange{Start: 0, Count: 1}))
	require.NoError(t, err)
	_, err = conn.Write(req)
	require.NoError(t, err)

	var p Parser
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := p.NextFrame(conn)
	require.NoError(t, err)
	require.True(t, FunctionCode(frame.Payload[0]).IsError())
	ex, err := decodeException(frame.Payload[1:])
	require.NoError(t, err)
	require.Equal(t, ExGatewayTargetFailedToRespond, ex)

	cancel()
	require.NoError(t, <-serveErr)
}

// A Serve configured with WithMaxSessions releases every handler's Destroy
// hook once the listener is closed via context cancellation.
func TestServeDestroysHandlersOnShutdown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	devices := NewDeviceMap()
	h := &stubHandler{}
	devices.AddEndpoint(1, h)

	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(WithMaxSessions(2))
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, listener, devices) }()

	cancel()
	require.NoError(t, <-serveErr)
	require.True(t, h.destroyed)
}

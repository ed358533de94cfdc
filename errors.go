package modbus

import (
	"errors"
	"fmt"
)

// Session-fatal and per-request sentinel errors. Session-fatal errors
// (Io, BadFrame, Shutdown) terminate a client or server session loop;
// the rest resolve only the one request they belong to.
var (
	// ErrShutdown is returned by the client session loop when the
	// producer side of the request queue has been closed. Normal
	// termination, not an error in the failure sense.
	ErrShutdown = errors.New("modbus: shutdown")
	// ErrResponseTimeout resolves a single request whose deadline elapsed
	// before a matching response arrived.
	ErrResponseTimeout = errors.New("modbus: response timeout")
	// ErrNoConnection resolves requests drained from the queue after the
	// session that would have served them has already died.
	ErrNoConnection = errors.New("modbus: no connection")
)

// IoError wraps a transport read/write failure. Session-fatal on the
// client, connection-fatal on the server.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("modbus: io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// BadFrameKind enumerates the ways MBAP parsing can fail irrecoverably.
type BadFrameKind int

const (
	UnknownProtocolId BadFrameKind = iota
	FrameLengthInvalid
	UnexpectedByte
)

func (k BadFrameKind) String() string {
	switch k {
	case UnknownProtocolId:
		return "unknown protocol id"
	case FrameLengthInvalid:
		return "frame length invalid"
	case UnexpectedByte:
		return "unexpected byte"
	default:
		return "unknown bad frame kind"
	}
}

// BadFrame is an irrecoverable MBAP framing error: the byte stream no
// longer reliably delimits frames, so the session that observed it must
// terminate. Value carries the offending protocol id or length, when
// applicable.
type BadFrame struct {
	Kind  BadFrameKind
	Value int
}

func (e *BadFrame) Error() string {
	switch e.Kind {
	case UnknownProtocolId:
		return fmt.Sprintf("modbus: bad frame: unknown protocol id 0x%04x", e.Value)
	case FrameLengthInvalid:
		return fmt.Sprintf("modbus: bad frame: invalid length %d", e.Value)
	default:
		return fmt.Sprintf("modbus: bad frame: %s", e.Kind)
	}
}

// ProtocolErrorKind enumerates PDU-level decode failures, which are
// per-request, not session-fatal.
type ProtocolErrorKind int

const (
	UnknownFunctionCode ProtocolErrorKind = iota
	InvalidByteCount
	MismatchedFunctionCode
	InvalidCoilValue
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case UnknownFunctionCode:
		return "unknown function code"
	case InvalidByteCount:
		return "invalid byte count"
	case MismatchedFunctionCode:
		return "mismatched function code"
	case InvalidCoilValue:
		return "invalid coil value"
	default:
		return "unknown protocol error"
	}
}

// ProtocolError is a per-request PDU decode failure: bad byte count,
// mismatched function code, unknown function code, or a malformed coil
// value. It resolves only the request that triggered it.
type ProtocolError struct {
	Kind ProtocolErrorKind
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus: protocol error: %s", e.Kind)
}

// ExceptionResponse wraps a Modbus exception returned by the remote unit
// in response to a specific request. It is per-request and non-fatal.
type ExceptionResponse struct {
	Exception Exception
}

func (e *ExceptionResponse) Error() string {
	return e.Exception.Error()
}

func (e *ExceptionResponse) Unwrap() error {
	return e.Exception
}

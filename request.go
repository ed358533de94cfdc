package modbus

import (
	"sync/atomic"
	"time"
)

// Result is what a reply slot resolves to: either Value is meaningful and
// Err is nil, or Err names why the request failed.
type Result[T any] struct {
	Value T
	Err   error
}

// replySlot is a single-shot channel that transitions Pending -> Resolved
// exactly once. resolve after the first call is a no-op, matching the
// idempotent semantics of Request.fail.
type replySlot[T any] struct {
	ch       chan Result[T]
	resolved int32
}

func newReplySlot[T any]() *replySlot[T] {
	return &replySlot[T]{ch: make(chan Result[T], 1)}
}

func (s *replySlot[T]) resolve(v T, err error) {
	if atomic.CompareAndSwapInt32(&s.resolved, 0, 1) {
		s.ch <- Result[T]{Value: v, Err: err}
	}
}

// Future is the producer-facing handle to a request's reply slot.
type Future[T any] struct {
	ch <-chan Result[T]
}

// Recv blocks until the request's reply slot is resolved.
func (f Future[T]) Recv() Result[T] {
	return <-f.ch
}

// RecvTimeout waits up to d for the reply slot to resolve.
func (f Future[T]) RecvTimeout(d time.Duration) (Result[T], bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-f.ch:
		return r, true
	case <-t.C:
		return Result[T]{}, false
	}
}

// RequestDetails is the closed sum type of everything a Request can carry.
// It is a tagged variant: the concrete type of the value IS the tag, and
// dispatch over it (encoding the outbound PDU, decoding the inbound one)
// is done with a type switch in Request.encode/Request.HandleResponse
// rather than by giving each variant its own virtual encode/decode
// methods.
type RequestDetails interface {
	function() FunctionCode
	fail(err error)
}

type readBitsDetails struct {
	fc   FunctionCode
	r    AddressRange
	slot *replySlot[[]bool]
}

func (d *readBitsDetails) function() FunctionCode { return d.fc }
func (d *readBitsDetails) fail(err error)         { d.slot.resolve(nil, err) }

type readRegistersDetails struct {
	fc   FunctionCode
	r    AddressRange
	slot *replySlot[[]uint16]
}

func (d *readRegistersDetails) function() FunctionCode { return d.fc }
func (d *readRegistersDetails) fail(err error)         { d.slot.resolve(nil, err) }

type writeSingleCoilDetails struct {
	addr  uint16
	value bool
	slot  *replySlot[struct{}]
}

func (d *writeSingleCoilDetails) function() FunctionCode { return WriteSingleCoil }
func (d *writeSingleCoilDetails) fail(err error)         { d.slot.resolve(struct{}{}, err) }

type writeSingleRegisterDetails struct {
	addr  uint16
	value uint16
	slot  *replySlot[struct{}]
}

func (d *writeSingleRegisterDetails) function() FunctionCode { return WriteSingleRegister }
func (d *writeSingleRegisterDetails) fail(err error)         { d.slot.resolve(struct{}{}, err) }

type writeMultipleCoilsDetails struct {
	addr   uint16
	values []bool
	slot   *replySlot[struct{}]
}

func (d *writeMultipleCoilsDetails) function() FunctionCode { return WriteMultipleCoils }
func (d *writeMultipleCoilsDetails) fail(err error)         { d.slot.resolve(struct{}{}, err) }

type writeMultipleRegistersDetails struct {
	addr   uint16
	values []uint16
	slot   *replySlot[struct{}]
}

func (d *writeMultipleRegistersDetails) function() FunctionCode { return WriteMultipleRegisters }
func (d *writeMultipleRegistersDetails) fail(err error)         { d.slot.resolve(struct{}{}, err) }

type readWriteMultipleRegistersDetails struct {
	read    AddressRange
	writeAt uint16
	values  []uint16
	slot    *replySlot[[]uint16]
}

func (d *readWriteMultipleRegistersDetails) function() FunctionCode {
	return ReadWriteMultipleRegisters
}
func (d *readWriteMultipleRegistersDetails) fail(err error) { d.slot.resolve(nil, err) }

// Request is a caller-submitted job: a unit id, a timeout, and typed
// details carrying a single-shot reply slot. It is owned exclusively by
// the session loop once enqueued and is destroyed once its reply slot has
// been resolved exactly once.
type Request struct {
	UnitId  UnitId
	Timeout time.Duration
	Details RequestDetails
}

// fail resolves the request's reply slot with err if still pending;
// idempotent no-op otherwise.
func (r *Request) fail(err error) {
	r.Details.fail(err)
}

// encode renders the outbound PDU bytes (function code + body) for this
// request's details.
func (r *Request) encode() []byte {
	switch d := r.Details.(type) {
	case *readBitsDetails:
		return EncodeReadRequest(d.fc, d.r)
	case *readRegistersDetails:
		return EncodeReadRequest(d.fc, d.r)
	case *writeSingleCoilDetails:
		return EncodeWriteSingleCoilRequest(d.addr, d.value)
	case *writeSingleRegisterDetails:
		return EncodeWriteSingleRegisterRequest(d.addr, d.value)
	case *writeMultipleCoilsDetails:
		return EncodeWriteMultipleCoilsRequest(d.addr, d.values)
	case *writeMultipleRegistersDetails:
		return EncodeWriteMultipleRegistersRequest(d.addr, d.values)
	case *readWriteMultipleRegistersDetails:
		return EncodeReadWriteMultipleRegistersRequest(d.read, d.writeAt, d.values)
	default:
		panic("modbus: unreachable request details variant")
	}
}

// HandleResponse decodes body (expecting the function code matching
// details, or an exception response) and resolves the reply slot exactly
// once. Decode failure resolves with the decode error; it never returns an
// error of its own, since a decode failure is per-request, not
// session-fatal.
func (r *Request) HandleResponse(fc FunctionCode, body []byte) {
	if fc.IsError() {
		ex, err := decodeException(body)
		if err != nil {
			r.fail(err)
			return
		}
		r.fail(&ExceptionResponse{Exception: ex})
		return
	}

	switch d := r.Details.(type) {
	case *readBitsDetails:
		if fc != d.fc {
			d.slot.resolve(nil, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		v, err := DecodeReadBitsResponse(body, d.r.Count)
		d.slot.resolve(v, err)
	case *readRegistersDetails:
		if fc != d.fc {
			d.slot.resolve(nil, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		v, err := DecodeReadRegistersResponse(body, d.r.Count)
		d.slot.resolve(v, err)
	case *writeSingleCoilDetails:
		if fc != WriteSingleCoil {
			d.slot.resolve(struct{}{}, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		addr, value, err := DecodeWriteSingleCoilResponse(body)
		if err == nil && (addr != d.addr || value != d.value) {
			err = &ExceptionResponse{Exception: ExServerDeviceFailure}
		}
		d.slot.resolve(struct{}{}, err)
	case *writeSingleRegisterDetails:
		if fc != WriteSingleRegister {
			d.slot.resolve(struct{}{}, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		addr, value, err := DecodeWriteSingleRegisterResponse(body)
		if err == nil && (addr != d.addr || value != d.value) {
			err = &ExceptionResponse{Exception: ExServerDeviceFailure}
		}
		d.slot.resolve(struct{}{}, err)
	case *writeMultipleCoilsDetails:
		if fc != WriteMultipleCoils {
			d.slot.resolve(struct{}{}, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		start, count, err := DecodeWriteMultipleCoilsResponse(body)
		if err == nil && (start != d.addr || int(count) != len(d.values)) {
			err = &ExceptionResponse{Exception: ExServerDeviceFailure}
		}
		d.slot.resolve(struct{}{}, err)
	case *writeMultipleRegistersDetails:
		if fc != WriteMultipleRegisters {
			d.slot.resolve(struct{}{}, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		start, count, err := DecodeWriteMultipleRegistersResponse(body)
		if err == nil && (start != d.addr || int(count) != len(d.values)) {
			err = &ExceptionResponse{Exception: ExServerDeviceFailure}
		}
		d.slot.resolve(struct{}{}, err)
	case *readWriteMultipleRegistersDetails:
		if fc != ReadWriteMultipleRegisters {
			d.slot.resolve(nil, &ProtocolError{Kind: MismatchedFunctionCode})
			return
		}
		v, err := DecodeReadWriteMultipleRegistersResponse(body, d.read.Count)
		d.slot.resolve(v, err)
	default:
		panic("modbus: unreachable request details variant")
	}
}

// --- Constructors: one pair of (Request, Future) per operation. ---

func NewReadCoilsRequest(unit UnitId, timeout time.Duration, r AddressRange) (*Request, Future[[]bool], error) {
	return newReadBitsRequest(unit, timeout, ReadCoils, r, maxReadBits)
}

func NewReadDiscreteInputsRequest(unit UnitId, timeout time.Duration, r AddressRange) (*Request, Future[[]bool], error) {
	return newReadBitsRequest(unit, timeout, ReadDiscreteInputs, r, maxReadBits)
}

func newReadBitsRequest(unit UnitId, timeout time.Duration, fc FunctionCode, r AddressRange, limit uint16) (*Request, Future[[]bool], error) {
	if err := r.Verify(limit); err != nil {
		return nil, Future[[]bool]{}, err
	}
	slot := newReplySlot[[]bool]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &readBitsDetails{fc: fc, r: r, slot: slot}}
	return req, Future[[]bool]{ch: slot.ch}, nil
}

func NewReadHoldingRegistersRequest(unit UnitId, timeout time.Duration, r AddressRange) (*Request, Future[[]uint16], error) {
	return newReadRegistersRequest(unit, timeout, ReadHoldingRegisters, r, maxReadRegisters)
}

func NewReadInputRegistersRequest(unit UnitId, timeout time.Duration, r AddressRange) (*Request, Future[[]uint16], error) {
	return newReadRegistersRequest(unit, timeout, ReadInputRegisters, r, maxReadRegisters)
}

func newReadRegistersRequest(unit UnitId, timeout time.Duration, fc FunctionCode, r AddressRange, limit uint16) (*Request, Future[[]uint16], error) {
	if err := r.Verify(limit); err != nil {
		return nil, Future[[]uint16]{}, err
	}
	slot := newReplySlot[[]uint16]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &readRegistersDetails{fc: fc, r: r, slot: slot}}
	return req, Future[[]uint16]{ch: slot.ch}, nil
}

func NewWriteSingleCoilRequest(unit UnitId, timeout time.Duration, addr uint16, value bool) (*Request, Future[struct{}]) {
	slot := newReplySlot[struct{}]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &writeSingleCoilDetails{addr: addr, value: value, slot: slot}}
	return req, Future[struct{}]{ch: slot.ch}
}

func NewWriteSingleRegisterRequest(unit UnitId, timeout time.Duration, addr, value uint16) (*Request, Future[struct{}]) {
	slot := newReplySlot[struct{}]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &writeSingleRegisterDetails{addr: addr, value: value, slot: slot}}
	return req, Future[struct{}]{ch: slot.ch}
}

func NewWriteMultipleCoilsRequest(unit UnitId, timeout time.Duration, addr uint16, values []bool) (*Request, Future[struct{}], error) {
	if err := (AddressRange{Start: addr, Count: uint16(len(values))}).Verify(maxWriteBits); err != nil {
		return nil, Future[struct{}]{}, err
	}
	slot := newReplySlot[struct{}]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &writeMultipleCoilsDetails{addr: addr, values: values, slot: slot}}
	return req, Future[struct{}]{ch: slot.ch}, nil
}

func NewWriteMultipleRegistersRequest(unit UnitId, timeout time.Duration, addr uint16, values []uint16) (*Request, Future[struct{}], error) {
	if err := (AddressRange{Start: addr, Count: uint16(len(values))}).Verify(maxWriteRegisters); err != nil {
		return nil, Future[struct{}]{}, err
	}
	slot := newReplySlot[struct{}]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &writeMultipleRegistersDetails{addr: addr, values: values, slot: slot}}
	return req, Future[struct{}]{ch: slot.ch}, nil
}

func NewReadWriteMultipleRegistersRequest(unit UnitId, timeout time.Duration, read AddressRange, writeAt uint16, values []uint16) (*Request, Future[[]uint16], error) {
	if err := read.Verify(maxRWReadRegisters); err != nil {
		return nil, Future[[]uint16]{}, err
	}
	if err := (AddressRange{Start: writeAt, Count: uint16(len(values))}).Verify(maxRWWriteRegs); err != nil {
		return nil, Future[[]uint16]{}, err
	}
	slot := newReplySlot[[]uint16]()
	req := &Request{UnitId: unit, Timeout: timeout, Details: &readWriteMultipleRegistersDetails{read: read, writeAt: writeAt, values: values, slot: slot}}
	return req, Future[[]uint16]{ch: slot.ch}, nil
}

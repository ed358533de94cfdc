package modbus

// dispatch decodes one inbound PDU (function code + body) against handler
// and renders the reply PDU. handler == nil means the frame's unit id had
// no bound endpoint.
//
// Dispatch rules (spec §4.5):
//   - unknown unit id: ExGatewayTargetFailedToRespond
//   - decode failure with unknown function code: ExIllegalFunction
//   - handler returns {success=false, exception}: that exception, or
//     ExIllegalDataAddress if none was given
func dispatch(handler RequestHandler, payload []byte) []byte {
	if len(payload) < 1 {
		return EncodeExceptionResponse(FunctionCode(0), ExIllegalFunction)
	}
	fc := FunctionCode(payload[0])
	body := payload[1:]

	if handler == nil {
		return EncodeExceptionResponse(fc, ExGatewayTargetFailedToRespond)
	}

	switch fc {
	case ReadCoils:
		return dispatchReadBits(handler.ReadCoil, fc, body, maxReadBits)
	case ReadDiscreteInputs:
		return dispatchReadBits(handler.ReadDiscreteInput, fc, body, maxReadBits)
	case ReadHoldingRegisters:
		return dispatchReadRegisters(handler.ReadHoldingRegister, fc, body, maxReadRegisters)
	case ReadInputRegisters:
		return dispatchReadRegisters(handler.ReadInputRegister, fc, body, maxReadRegisters)
	case WriteSingleCoil:
		return dispatchWriteSingleCoil(handler, fc, body)
	case WriteSingleRegister:
		return dispatchWriteSingleRegister(handler, fc, body)
	case WriteMultipleCoils:
		return dispatchWriteMultipleCoils(handler, fc, body)
	case WriteMultipleRegisters:
		return dispatchWriteMultipleRegisters(handler, fc, body)
	case ReadWriteMultipleRegisters:
		return dispatchReadWriteMultipleRegisters(handler, fc, body)
	default:
		return EncodeExceptionResponse(fc, ExIllegalFunction)
	}
}

func exceptionOrDefault(ex Exception) Exception {
	if ex == nil {
		return ExIllegalDataAddress
	}
	return ex
}

// exceptionFromDecodeErr turns a PDU-decode error into the exception to
// report: an *ExceptionResponse carries its own exception (e.g.
// IllegalDataValue from a bad byte count check), anything else defaults to
// IllegalDataValue.
func exceptionFromDecodeErr(err error) Exception {
	if er, ok := err.(*ExceptionResponse); ok {
		return er.Exception
	}
	return ExIllegalDataValue
}

func dispatchReadBits(read func(uint16) ReadBitResult, fc FunctionCode, body []byte, limit uint16) []byte {
	r, err := DecodeReadRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	if verr := r.Verify(limit); verr != nil {
		return EncodeExceptionResponse(fc, verr.(Exception))
	}
	values := make([]bool, r.Count)
	for i := uint16(0); i < r.Count; i++ {
		res := read(r.Start + i)
		if !res.Ok {
			return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
		}
		values[i] = res.Value
	}
	return append([]byte{byte(fc)}, EncodeReadBitsResponse(values)...)
}

func dispatchReadRegisters(read func(uint16) ReadRegisterResult, fc FunctionCode, body []byte, limit uint16) []byte {
	r, err := DecodeReadRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	if verr := r.Verify(limit); verr != nil {
		return EncodeExceptionResponse(fc, verr.(Exception))
	}
	values := make([]uint16, r.Count)
	for i := uint16(0); i < r.Count; i++ {
		res := read(r.Start + i)
		if !res.Ok {
			return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
		}
		values[i] = res.Value
	}
	return append([]byte{byte(fc)}, EncodeReadRegistersResponse(values)...)
}

func dispatchWriteSingleCoil(handler RequestHandler, fc FunctionCode, body []byte) []byte {
	addr, value, err := DecodeWriteSingleCoilRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	res := handler.WriteSingleCoil(addr, value)
	if !res.Ok {
		return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
	}
	return EncodeWriteSingleCoilResponse(addr, value)
}

func dispatchWriteSingleRegister(handler RequestHandler, fc FunctionCode, body []byte) []byte {
	addr, value, err := DecodeWriteSingleRegisterRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	res := handler.WriteSingleRegister(addr, value)
	if !res.Ok {
		return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
	}
	return EncodeWriteSingleRegisterResponse(addr, value)
}

func dispatchWriteMultipleCoils(handler RequestHandler, fc FunctionCode, body []byte) []byte {
	start, it, err := DecodeWriteMultipleCoilsRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	count := it.Len()
	res := handler.WriteMultipleCoils(start, it)
	if !res.Ok {
		return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
	}
	return EncodeWriteMultipleCoilsResponse(start, uint16(count))
}

func dispatchWriteMultipleRegisters(handler RequestHandler, fc FunctionCode, body []byte) []byte {
	start, it, err := DecodeWriteMultipleRegistersRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	count := it.Len()
	res := handler.WriteMultipleRegisters(start, it)
	if !res.Ok {
		return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
	}
	return EncodeWriteMultipleRegistersResponse(start, uint16(count))
}

func dispatchReadWriteMultipleRegisters(handler RequestHandler, fc FunctionCode, body []byte) []byte {
	read, writeStart, it, err := DecodeReadWriteMultipleRegistersRequest(body)
	if err != nil {
		return EncodeExceptionResponse(fc, exceptionFromDecodeErr(err))
	}
	res := handler.ReadWriteMultipleRegisters(read, writeStart, it)
	if !res.Ok {
		return EncodeExceptionResponse(fc, exceptionOrDefault(res.Exception))
	}
	if len(res.Values) != int(read.Count) {
		return EncodeExceptionResponse(fc, ExServerDeviceFailure)
	}
	return append([]byte{byte(fc)}, EncodeReadWriteMultipleRegistersResponse(res.Values)...)
}

package modbus

// This file implements the bijection between in-memory typed PDUs and
// their Modbus byte layout (big-endian throughout). A PDU is the function
// code byte followed by function-specific data; MBAP framing is handled
// separately in framer.go.

// --- Read requests (ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters, ReadInputRegisters) ---

// EncodeReadRequest encodes [fc][start:2][count:2].
func EncodeReadRequest(fc FunctionCode, r AddressRange) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(fc)
	putUint16(buf[1:], r.Start)
	putUint16(buf[3:], r.Count)
	return buf
}

// DecodeReadRequest decodes a read request body (address+count only, the
// function code byte having already been consumed by the caller).
func DecodeReadRequest(body []byte) (AddressRange, error) {
	if len(body) != 4 {
		return AddressRange{}, &ProtocolError{Kind: InvalidByteCount}
	}
	return AddressRange{Start: getUint16(body), Count: getUint16(body[2:])}, nil
}

// EncodeReadBitsResponse encodes [byte_count][packed bits...].
func EncodeReadBitsResponse(values []bool) []byte {
	packed := packBits(values)
	buf := make([]byte, 1+len(packed))
	buf[0] = byte(len(packed))
	copy(buf[1:], packed)
	return buf
}

// DecodeReadBitsResponse decodes a read-bits response body, expecting
// exactly quantity values.
func DecodeReadBitsResponse(body []byte, quantity uint16) ([]bool, error) {
	if len(body) < 1 || int(body[0]) != len(body)-1 || len(body) != 1+byteCount(quantity) {
		return nil, &ProtocolError{Kind: InvalidByteCount}
	}
	return unpackBits(quantity, body[1:]), nil
}

// EncodeReadRegistersResponse encodes [byte_count][registers...].
func EncodeReadRegistersResponse(values []uint16) []byte {
	packed := packRegisters(values)
	buf := make([]byte, 1+len(packed))
	buf[0] = byte(len(packed))
	copy(buf[1:], packed)
	return buf
}

// DecodeReadRegistersResponse decodes a read-registers response body,
// expecting exactly quantity values.
func DecodeReadRegistersResponse(body []byte, quantity uint16) ([]uint16, error) {
	if len(body) < 1 || int(body[0]) != len(body)-1 || len(body) != 1+2*int(quantity) {
		return nil, &ProtocolError{Kind: InvalidByteCount}
	}
	return unpackRegisters(body[1:]), nil
}

// --- WriteSingleCoil ---

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

func EncodeWriteSingleCoilRequest(addr uint16, value bool) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(WriteSingleCoil)
	putUint16(buf[1:], addr)
	if value {
		putUint16(buf[3:], coilOn)
	} else {
		putUint16(buf[3:], coilOff)
	}
	return buf
}

// DecodeWriteSingleCoilRequest decodes the 4-byte body (addr+value);
// any value other than 0xFF00/0x0000 fails with IllegalDataValue.
func DecodeWriteSingleCoilRequest(body []byte) (addr uint16, value bool, err error) {
	if len(body) != 4 {
		return 0, false, &ProtocolError{Kind: InvalidByteCount}
	}
	addr = getUint16(body)
	switch getUint16(body[2:]) {
	case coilOff:
		value = false
	case coilOn:
		value = true
	default:
		return 0, false, &ExceptionResponse{Exception: ExIllegalDataValue}
	}
	return addr, value, nil
}

// EncodeWriteSingleCoilResponse echoes the request body.
func EncodeWriteSingleCoilResponse(addr uint16, value bool) []byte {
	return EncodeWriteSingleCoilRequest(addr, value)
}

func DecodeWriteSingleCoilResponse(body []byte) (addr uint16, value bool, err error) {
	return DecodeWriteSingleCoilRequest(body)
}

// --- WriteSingleRegister ---

func EncodeWriteSingleRegisterRequest(addr, value uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(WriteSingleRegister)
	putUint16(buf[1:], addr)
	putUint16(buf[3:], value)
	return buf
}

func DecodeWriteSingleRegisterRequest(body []byte) (addr, value uint16, err error) {
	if len(body) != 4 {
		return 0, 0, &ProtocolError{Kind: InvalidByteCount}
	}
	return getUint16(body), getUint16(body[2:]), nil
}

func EncodeWriteSingleRegisterResponse(addr, value uint16) []byte {
	return EncodeWriteSingleRegisterRequest(addr, value)
}

func DecodeWriteSingleRegisterResponse(body []byte) (addr, value uint16, err error) {
	return DecodeWriteSingleRegisterRequest(body)
}

// --- WriteMultipleCoils ---

func EncodeWriteMultipleCoilsRequest(start uint16, values []bool) []byte {
	packed := packBits(values)
	buf := make([]byte, 6+len(packed))
	buf[0] = byte(WriteMultipleCoils)
	putUint16(buf[1:], start)
	putUint16(buf[3:], uint16(len(values)))
	buf[5] = byte(len(packed))
	copy(buf[6:], packed)
	return buf
}

// DecodeWriteMultipleCoilsRequest validates byte_count == ceil(count/8) and
// returns a pull iterator over the unpacked bits.
func DecodeWriteMultipleCoilsRequest(body []byte) (start uint16, it *BitIterator, err error) {
	if len(body) < 5 {
		return 0, nil, &ProtocolError{Kind: InvalidByteCount}
	}
	start = getUint16(body)
	count := getUint16(body[2:])
	byteCnt := body[4]
	data := body[5:]
	if count < 1 || count > maxWriteBits || int(byteCnt) != byteCount(count) || len(data) != int(byteCnt) {
		return 0, nil, &ExceptionResponse{Exception: ExIllegalDataValue}
	}
	if int(start)+int(count) > 0x10000 {
		return 0, nil, &ExceptionResponse{Exception: ExIllegalDataAddress}
	}
	return start, newBitIterator(unpackBits(count, data)), nil
}

func EncodeWriteMultipleCoilsResponse(start, count uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(WriteMultipleCoils)
	putUint16(buf[1:], start)
	putUint16(buf[3:], count)
	return buf
}

func DecodeWriteMultipleCoilsResponse(body []byte) (start, count uint16, err error) {
	if len(body) != 4 {
		return 0, 0, &ProtocolError{Kind: InvalidByteCount}
	}
	return getUint16(body), getUint16(body[2:]), nil
}

// --- WriteMultipleRegisters ---

func EncodeWriteMultipleRegistersRequest(start uint16, values []uint16) []byte {
	packed := packRegisters(values)
	buf := make([]byte, 6+len(packed))
	buf[0] = byte(WriteMultipleRegisters)
	putUint16(buf[1:], start)
	putUint16(buf[3:], uint16(len(values)))
	buf[5] = byte(len(packed))
	copy(buf[6:], packed)
	return buf
}

// DecodeWriteMultipleRegistersRequest validates byte_count == 2*count and
// returns a pull iterator over the registers.
func DecodeWriteMultipleRegistersRequest(body []byte) (start uint16, it *RegisterIterator, err error) {
	if len(body) < 5 {
		return 0, nil, &ProtocolError{Kind: InvalidByteCount}
	}
	start = getUint16(body)
	count := getUint16(body[2:])
	byteCnt := body[4]
	data := body[5:]
	if count < 1 || count > maxWriteRegisters || int(byteCnt) != 2*int(count) || len(data) != int(byteCnt) {
		return 0, nil, &ExceptionResponse{Exception: ExIllegalDataValue}
	}
	if int(start)+int(count) > 0x10000 {
		return 0, nil, &ExceptionResponse{Exception: ExIllegalDataAddress}
	}
	return start, newRegisterIterator(unpackRegisters(data)), nil
}

func EncodeWriteMultipleRegistersResponse(start, count uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(WriteMultipleRegisters)
	putUint16(buf[1:], start)
	putUint16(buf[3:], count)
	return buf
}

func DecodeWriteMultipleRegistersResponse(body []byte) (start, count uint16, err error) {
	if len(body) != 4 {
		return 0, 0, &ProtocolError{Kind: InvalidByteCount}
	}
	return getUint16(body), getUint16(body[2:]), nil
}

// --- ReadWriteMultipleRegisters (function code 0x17, supplemental) ---

func EncodeReadWriteMultipleRegistersRequest(read AddressRange, writeStart uint16, values []uint16) []byte {
	packed := packRegisters(values)
	buf := make([]byte, 10+len(packed))
	buf[0] = byte(ReadWriteMultipleRegisters)
	putUint16(buf[1:], read.Start)
	putUint16(buf[3:], read.Count)
	putUint16(buf[5:], writeStart)
	putUint16(buf[7:], uint16(len(values)))
	buf[9] = byte(len(packed))
	copy(buf[10:], packed)
	return buf
}

func DecodeReadWriteMultipleRegistersRequest(body []byte) (read AddressRange, writeStart uint16, it *RegisterIterator, err error) {
	if len(body) < 9 {
		return AddressRange{}, 0, nil, &ProtocolError{Kind: InvalidByteCount}
	}
	read = AddressRange{Start: getUint16(body), Count: getUint16(body[2:])}
	writeStart = getUint16(body[4:])
	writeCount := getUint16(body[6:])
	byteCnt := body[8]
	data := body[9:]
	if read.Count < 1 || read.Count > maxRWReadRegisters ||
		writeCount < 1 || writeCount > maxRWWriteRegs ||
		int(byteCnt) != 2*int(writeCount) || len(data) != int(byteCnt) {
		return AddressRange{}, 0, nil, &ExceptionResponse{Exception: ExIllegalDataValue}
	}
	if int(read.Start)+int(read.Count) > 0x10000 || int(writeStart)+int(writeCount) > 0x10000 {
		return AddressRange{}, 0, nil, &ExceptionResponse{Exception: ExIllegalDataAddress}
	}
	return read, writeStart, newRegisterIterator(unpackRegisters(data)), nil
}

func EncodeReadWriteMultipleRegistersResponse(values []uint16) []byte {
	return EncodeReadRegistersResponse(values)
}

func DecodeReadWriteMultipleRegistersResponse(body []byte, quantity uint16) ([]uint16, error) {
	return DecodeReadRegistersResponse(body, quantity)
}

// --- Exception responses ---

// EncodeExceptionResponse encodes [fc|0x80][code].
func EncodeExceptionResponse(fc FunctionCode, ex Exception) []byte {
	return []byte{byte(fc.AsError()), ex.Code()}
}

// decodeException decodes the one-byte exception body.
func decodeException(body []byte) (Exception, error) {
	if len(body) != 1 {
		return nil, &ProtocolError{Kind: InvalidByteCount}
	}
	return exceptionFromCode(body[0]), nil
}

package modbus

// UnitId selects a logical device behind a TCP endpoint.
type UnitId byte

// Broadcast is the reserved unit id some Modbus deployments use to address
// every device on a bus at once. The core does not implement broadcast
// fan-out; it is kept only as a named constant for callers.
const Broadcast UnitId = 0

// TxId is a 16-bit transaction identifier used to correlate a response with
// the request that produced it. It is unique only among requests currently
// in flight on a single session.
type TxId uint16

// next returns the following transaction id, wrapping modulo 2^16.
func (id TxId) next() TxId {
	return id + 1
}

// FunctionCode identifies the operation carried by a PDU. Error responses
// set the high bit (fc | 0x80).
type FunctionCode byte

const (
	ReadCoils              FunctionCode = 0x01
	ReadDiscreteInputs     FunctionCode = 0x02
	ReadHoldingRegisters   FunctionCode = 0x03
	ReadInputRegisters     FunctionCode = 0x04
	WriteSingleCoil        FunctionCode = 0x05
	WriteSingleRegister    FunctionCode = 0x06
	WriteMultipleCoils     FunctionCode = 0x0F
	WriteMultipleRegisters FunctionCode = 0x10
	// ReadWriteMultipleRegisters is carried over from the reference
	// implementation's client task; not in the distilled function-code
	// set but excluded by no Non-goal.
	ReadWriteMultipleRegisters FunctionCode = 0x17
)

const errorFlag FunctionCode = 0x80

// IsError reports whether the high bit is set, marking an exception
// response.
func (fc FunctionCode) IsError() bool {
	return fc&errorFlag != 0
}

// AsError returns fc with the exception bit set.
func (fc FunctionCode) AsError() FunctionCode {
	return fc | errorFlag
}

// AsSuccess returns fc with the exception bit cleared.
func (fc FunctionCode) AsSuccess() FunctionCode {
	return fc &^ errorFlag
}

func (fc FunctionCode) String() string {
	switch fc.AsSuccess() {
	case ReadCoils:
		return "ReadCoils"
	case ReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case ReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case ReadInputRegisters:
		return "ReadInputRegisters"
	case WriteSingleCoil:
		return "WriteSingleCoil"
	case WriteSingleRegister:
		return "WriteSingleRegister"
	case WriteMultipleCoils:
		return "WriteMultipleCoils"
	case WriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case ReadWriteMultipleRegisters:
		return "ReadWriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// AddressRange is a contiguous block of coils or registers.
type AddressRange struct {
	Start uint16
	Count uint16
}

// limit is the maximum Count allowed for a read (bits) or write (registers
// or bits, per function) operation.
const (
	maxReadBits        = 2000
	maxReadRegisters   = 125
	maxWriteBits       = 1968
	maxWriteRegisters  = 123
	maxRWReadRegisters = 125
	maxRWWriteRegs     = 121
)

// Verify checks start+count bounds and the given per-function limit.
func (r AddressRange) Verify(limit uint16) error {
	if r.Count < 1 || r.Count > limit {
		return ExIllegalDataValue
	}
	if int(r.Start)+int(r.Count) > 0x10000 {
		return ExIllegalDataAddress
	}
	return nil
}

package modbus

import "encoding/binary"

// byteCount returns the number of bytes needed to hold bitCount packed
// bits, per the Modbus "8 bits per byte, LSB first" convention.
func byteCount(bitCount uint16) int {
	return int((bitCount + 7) / 8)
}

// packBits packs len(values) bits (true=1) into a byte slice per the Modbus
// wire convention: bit i%8 (LSB-first) of byte i/8 maps to logical
// position i.
func packBits(values []bool) []byte {
	buf := make([]byte, byteCount(uint16(len(values))))
	for i, v := range values {
		if v {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

// unpackBits unpacks quantity bits (LSB-first within each byte) out of a
// packed byte slice.
func unpackBits(quantity uint16, bytes []byte) []bool {
	out := make([]bool, quantity)
	for i := range out {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx >= len(bytes) {
			break
		}
		out[i] = bytes[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

func putUint16(buf []byte, v uint16) {
	binary.BigEndian.PutUint16(buf, v)
}

func getUint16(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf)
}

func packRegisters(values []uint16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		putUint16(buf[2*i:], v)
	}
	return buf
}

func unpackRegisters(bytes []byte) []uint16 {
	out := make([]uint16, len(bytes)/2)
	for i := range out {
		out[i] = getUint16(bytes[2*i:])
	}
	return out
}

// BitIterator is a finite, single-pass pull iterator over a known-length
// sequence of bit values. write_multiple_coils handlers receive one of
// these instead of a materialized []bool, so small and large payloads are
// walked the same way without forcing an allocation on the handler's side
// of the boundary.
type BitIterator struct {
	values []bool
	pos    int
}

// Len returns the number of values remaining.
func (it *BitIterator) Len() int {
	return len(it.values) - it.pos
}

// Next returns the next value and true, or false once exhausted.
func (it *BitIterator) Next() (bool, bool) {
	if it.pos >= len(it.values) {
		return false, false
	}
	v := it.values[it.pos]
	it.pos++
	return v, true
}

func newBitIterator(values []bool) *BitIterator {
	return &BitIterator{values: values}
}

// RegisterIterator is a finite, single-pass pull iterator over a
// known-length sequence of 16-bit register values.
type RegisterIterator struct {
	values []uint16
	pos    int
}

// Len returns the number of values remaining.
func (it *RegisterIterator) Len() int {
	return len(it.values) - it.pos
}

// Next returns the next value and true, or 0, false once exhausted.
func (it *RegisterIterator) Next() (uint16, bool) {
	if it.pos >= len(it.values) {
		return 0, false
	}
	v := it.values[it.pos]
	it.pos++
	return v, true
}

func newRegisterIterator(values []uint16) *RegisterIterator {
	return &RegisterIterator{values: values}
}

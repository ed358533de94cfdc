package modbus

import (
	"io"
)

// mbapHeaderLen is the fixed 7-byte MBAP header: tx_id(2) protocol_id(2)
// length(2) unit_id(1).
const mbapHeaderLen = 7

// maxPDULen is the largest PDU (function code + data) the wire format
// allows.
const maxPDULen = 253

// maxADULen bounds a formatter's scratch buffer: header + largest PDU.
const maxADULen = mbapHeaderLen + maxPDULen

// Header identifies the MBAP envelope of one frame.
type Header struct {
	UnitId UnitId
	TxId   TxId
}

// Frame is a decoded MBAP frame: the header plus its PDU payload (function
// code byte followed by function-specific data).
type Frame struct {
	Header  Header
	Payload []byte
}

// Formatter wraps a PDU with the 7-byte MBAP header. It reuses an internal
// scratch buffer between calls, so only one outstanding write may be in
// flight at a time.
type Formatter struct {
	scratch [maxADULen]byte
}

// Format emits a single contiguous buffer: MBAP header + payload. The
// returned slice aliases the Formatter's scratch buffer and is only valid
// until the next call to Format.
func (f *Formatter) Format(h Header, payload []byte) ([]byte, error) {
	if len(payload) > maxPDULen {
		return nil, &ProtocolError{Kind: InvalidByteCount}
	}
	buf := f.scratch[:mbapHeaderLen+len(payload)]
	putUint16(buf[0:], uint16(h.TxId))
	putUint16(buf[2:], 0x0000) // protocol id
	putUint16(buf[4:], uint16(1+len(payload)))
	buf[6] = byte(h.UnitId)
	copy(buf[7:], payload)
	return buf, nil
}

// parserState is the MBAP parser's state machine position.
type parserState int

const (
	waitHeader parserState = iota
	waitBody
)

// Parser decodes MBAP frames out of a byte stream, one frame per call to
// NextFrame. It reads directly from the supplied io.Reader, using
// io.ReadFull to collect a whole header and then a whole body across any
// number of short reads; a transport EOF mid-frame surfaces as an IoError.
type Parser struct {
	state   parserState
	header  Header
	bodyLen int
	hdrBuf  [mbapHeaderLen]byte
}

// NextFrame blocks until one full frame has been read from r, or an error
// occurs. On BadFrame or IoError the parser (and the session using it)
// must not be reused.
func (p *Parser) NextFrame(r io.Reader) (Frame, error) {
	for {
		switch p.state {
		case waitHeader:
			hdr := p.hdrBuf[:]
			if _, err := io.ReadFull(r, hdr); err != nil {
				return Frame{}, &IoError{Op: "read header", Err: err}
			}
			txId := TxId(getUint16(hdr))
			protocolId := getUint16(hdr[2:])
			length := getUint16(hdr[4:])
			unitId := UnitId(hdr[6])
			if protocolId != 0x0000 {
				return Frame{}, &BadFrame{Kind: UnknownProtocolId, Value: int(protocolId)}
			}
			if length < 1 || length > maxPDULen+1 {
				return Frame{}, &BadFrame{Kind: FrameLengthInvalid, Value: int(length)}
			}
			p.header = Header{UnitId: unitId, TxId: txId}
			p.bodyLen = int(length) - 1
			p.state = waitBody
		case waitBody:
			body := make([]byte, p.bodyLen)
			if p.bodyLen > 0 {
				if _, err := io.ReadFull(r, body); err != nil {
					return Frame{}, &IoError{Op: "read body", Err: err}
				}
			}
			p.state = waitHeader
			return Frame{Header: p.header, Payload: body}, nil
		}
	}
}

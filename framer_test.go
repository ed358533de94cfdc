package modbus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFramerRoundTrip checks the invariant parse(format(header, pdu)) ==
// (header, pdu) for every valid header/PDU combination.
func TestFramerRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := Header{
			UnitId: UnitId(rapid.Byte().Draw(t, "unit")),
			TxId:   TxId(rapid.Uint16().Draw(t, "tx")),
		}
		n := rapid.IntRange(0, maxPDULen).Draw(t, "n")
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = rapid.Byte().Draw(t, "b")
		}

		var f Formatter
		adu, err := f.Format(h, payload)
		require.NoError(t, err)

		adu = append([]byte(nil), adu...) // Format's buffer is reused; snapshot it.

		var p Parser
		frame, err := p.NextFrame(bytes.NewReader(adu))
		require.NoError(t, err)
		require.Equal(t, h, frame.Header)
		require.True(t, bytes.Equal(payload, frame.Payload))
	})
}

func TestParserRejectsUnknownProtocolId(t *testing.T) {
	adu := []byte{0, 0, 0xCA, 0xFE, 0, 2, 1, 0x01}
	var p Parser
	_, err := p.NextFrame(bytes.NewReader(adu))
	var bf *BadFrame
	require.ErrorAs(t, err, &bf)
	require.Equal(t, UnknownProtocolId, bf.Kind)
	require.Equal(t, 0xCAFE, bf.Value)
}

func TestParserRejectsInvalidLength(t *testing.T) {
	adu := []byte{0, 0, 0, 0, 0, 0, 1}
	var p Parser
	_, err := p.NextFrame(bytes.NewReader(adu))
	var bf *BadFrame
	require.ErrorAs(t, err, &bf)
	require.Equal(t, FrameLengthInvalid, bf.Kind)
}

func TestParserSurfacesEOFAsIoError(t *testing.T) {
	adu := []byte{0, 0, 0, 0, 0, 4, 1} // header claims 3 body bytes, none follow
	var p Parser
	_, err := p.NextFrame(bytes.NewReader(adu))
	var io *IoError
	require.ErrorAs(t, err, &io)
}

func TestFormatterRejectsOversizedPayload(t *testing.T) {
	var f Formatter
	_, err := f.Format(Header{}, make([]byte, maxPDULen+1))
	require.Error(t, err)
}

func TestParserStreamsMultipleFrames(t *testing.T) {
	var f Formatter
	first, _ := f.Format(Header{UnitId: 1, TxId: 0}, []byte{0x01, 0x02})
	firstCopy := append([]byte(nil), first...)
	second, _ := f.Format(Header{UnitId: 2, TxId: 1}, []byte{0x03})
	buf := append(firstCopy, second...)

	var p Parser
	r := bytes.NewReader(buf)

	f1, err := p.NextFrame(r)
	require.NoError(t, err)
	require.Equal(t, TxId(0), f1.Header.TxId)

	f2, err := p.NextFrame(r)
	require.NoError(t, err)
	require.Equal(t, TxId(1), f2.Header.TxId)
}

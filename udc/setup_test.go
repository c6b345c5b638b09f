package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetupPacket(t *testing.T) {
	raw := []byte{0x80, 0x06, 0x00, 0x01, 0x09, 0x04, 0x12, 0x00}

	var pkt SetupPacket
	require.True(t, ParseSetupPacket(raw, &pkt))

	assert.Equal(t, uint8(0x80), pkt.RequestType)
	assert.Equal(t, uint8(0x06), pkt.Request)
	assert.Equal(t, uint16(0x0100), pkt.Value)
	assert.Equal(t, uint16(0x0409), pkt.Index)
	assert.Equal(t, uint16(0x0012), pkt.Length)
	assert.True(t, pkt.DirectionIn())
}

func TestParseSetupPacketShortData(t *testing.T) {
	var pkt SetupPacket
	assert.False(t, ParseSetupPacket([]byte{0x80, 0x06}, &pkt))
}

func TestSetupPacketMarshalTo(t *testing.T) {
	pkt := SetupPacket{
		RequestType: 0x21,
		Request:     0x09,
		Value:       0x0200,
		Index:       0x0001,
		Length:      0x0040,
	}

	buf := make([]byte, SetupPacketSize)
	require.Equal(t, SetupPacketSize, pkt.MarshalTo(buf))
	assert.Equal(t, []byte{0x21, 0x09, 0x00, 0x02, 0x01, 0x00, 0x40, 0x00}, buf)
	assert.False(t, pkt.DirectionIn())

	var back SetupPacket
	require.True(t, ParseSetupPacket(buf, &back))
	assert.Equal(t, pkt, back)

	assert.Zero(t, pkt.MarshalTo(make([]byte, 4)))
}

package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageFromSetup(t *testing.T) {
	tests := []struct {
		name string
		pkt  SetupPacket
		want Stage
	}{
		{
			name: "zero length means no data stage",
			pkt:  SetupPacket{RequestType: 0x00, Length: 0},
			want: StageNoData,
		},
		{
			name: "zero length ignores direction bit",
			pkt:  SetupPacket{RequestType: 0x80, Length: 0},
			want: StageNoData,
		},
		{
			name: "host to device with data",
			pkt:  SetupPacket{RequestType: 0x00, Length: 8},
			want: StageDataOut,
		},
		{
			name: "device to host with data",
			pkt:  SetupPacket{RequestType: 0x80, Length: 10},
			want: StageDataIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stageFromSetup(tt.pkt))
		})
	}
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "SETUP", StageSetup.String())
	assert.Equal(t, "DATA_OUT", StageDataOut.String())
	assert.Equal(t, "DATA_IN", StageDataIn.String())
	assert.Equal(t, "NO_DATA", StageNoData.String())
	assert.Equal(t, "STATUS_OUT", StageStatusOut.String())
	assert.Equal(t, "STATUS_IN", StageStatusIn.String())
	assert.Equal(t, "INVALID", Stage(250).String())
}

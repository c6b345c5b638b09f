package virtualhost_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/udcore/device/vendorecho"
	"github.com/Alia5/udcore/udc"
	"github.com/Alia5/udcore/virtualhost"
)

const busTimeout = time.Second

func newEchoBus(t *testing.T) (*virtualhost.Controller, *vendorecho.Device, *udc.Device) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	host := virtualhost.New(logger)
	dev := vendorecho.New(logger)
	engine := udc.New(host, dev, dev, udc.Config{Logger: logger})

	require.NoError(t, engine.Attach(context.Background()))
	t.Cleanup(func() { _ = engine.Detach() })
	require.NoError(t, dev.Bind(engine))
	require.NoError(t, engine.Connect())

	return host, dev, engine
}

func TestControlEchoWriteRead(t *testing.T) {
	host, dev, _ := newEchoBus(t)
	host.Reset()

	payload := []byte("hello")

	// Control write: SETUP, data OUT, status IN.
	host.SendSetup(udc.SetupPacket{
		RequestType: 0x40,
		Request:     vendorecho.ReqEchoWrite,
		Length:      uint16(len(payload)),
	})
	n, err := host.FeedOut(udc.ControlOut, payload, busTimeout)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	status, err := host.CollectIn(udc.ControlIn, busTimeout)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Equal(t, payload, dev.Stored())

	// Control read: SETUP, data IN, status OUT.
	host.SendSetup(udc.SetupPacket{
		RequestType: 0xc0,
		Request:     vendorecho.ReqEchoRead,
		Length:      uint16(len(payload)),
	})
	data, err := host.CollectIn(udc.ControlIn, busTimeout)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = host.FeedOut(udc.ControlOut, nil, busTimeout)
	require.NoError(t, err)
}

func TestControlNoDataPing(t *testing.T) {
	host, dev, _ := newEchoBus(t)

	host.SendSetup(udc.SetupPacket{
		RequestType: 0x40,
		Request:     vendorecho.ReqPing,
	})
	status, err := host.CollectIn(udc.ControlIn, busTimeout)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Equal(t, 1, dev.Pings())
}

func TestBulkLoopback(t *testing.T) {
	host, _, _ := newEchoBus(t)

	msg := []byte("ping-pong")
	n, err := host.FeedOut(vendorecho.BulkOut, msg, busTimeout)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	reply, err := host.CollectIn(vendorecho.BulkIn, busTimeout)
	require.NoError(t, err)
	assert.Equal(t, msg, reply)
}

// A reply of exactly one max packet is terminated with a zero-length packet,
// visible to the host as a second, empty IN.
func TestBulkLoopbackZLP(t *testing.T) {
	host, _, _ := newEchoBus(t)

	msg := make([]byte, 64)
	for i := range msg {
		msg[i] = byte(i)
	}
	_, err := host.FeedOut(vendorecho.BulkOut, msg, busTimeout)
	require.NoError(t, err)

	reply, err := host.CollectIn(vendorecho.BulkIn, busTimeout)
	require.NoError(t, err)
	assert.Equal(t, msg, reply)

	zlp, err := host.CollectIn(vendorecho.BulkIn, busTimeout)
	require.NoError(t, err)
	assert.Empty(t, zlp)
}

func TestBulkLoopbackBackToBack(t *testing.T) {
	host, _, _ := newEchoBus(t)

	for _, msg := range [][]byte{[]byte("first"), []byte("second"), []byte("third")} {
		_, err := host.FeedOut(vendorecho.BulkOut, msg, busTimeout)
		require.NoError(t, err)

		reply, err := host.CollectIn(vendorecho.BulkIn, busTimeout)
		require.NoError(t, err)
		assert.Equal(t, msg, reply)
	}
}

func TestHaltReflectsOnVirtualBus(t *testing.T) {
	host, _, engine := newEchoBus(t)

	assert.False(t, host.Stalled(vendorecho.BulkIn))
	require.NoError(t, engine.SetHalt(vendorecho.BulkIn))
	assert.True(t, host.Stalled(vendorecho.BulkIn))
	require.NoError(t, engine.ClearHalt(vendorecho.BulkIn))
	assert.False(t, host.Stalled(vendorecho.BulkIn))
}

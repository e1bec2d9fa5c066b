package slcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestChannel(t *testing.T, muxCount int, transport Transport) (*Channel, *mockRegistrar) {
	registrar := &mockRegistrar{}
	registry := NewRegistry(Config{MaxChannels: MinChannels, MuxCount: muxCount}, registrar)
	channel, err := registry.Open(transport)
	if err != nil {
		t.Fatalf("opening test channel failed : %v", err)
	}
	return channel, registrar
}

func TestReceiveSingleFrame(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	channel.Receive([]byte("t4563112233\r"), nil)
	frames := registrar.device(0).Frames()
	assert.Len(t, frames, 1)
	assert.Equal(t, uint32(0x456), frames[0].ID)
	assert.Equal(t, uint8(3), frames[0].DLC)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, frames[0].Data[:3])
	stats, err := channel.Stats(0)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), stats.RxPackets)
	assert.Equal(t, uint64(3), stats.RxBytes)
}

func TestReceiveSplitAcrossCalls(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	channel.Receive([]byte("t45631"), nil)
	channel.Receive([]byte("12233"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
	channel.Receive([]byte{terminatorCR}, nil)
	assert.Len(t, registrar.device(0).Frames(), 1)
}

func TestReceiveBELTerminator(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	channel.Receive([]byte("t1230\a"), nil)
	assert.Len(t, registrar.device(0).Frames(), 1)
}

func TestReceiveMuxRouting(t *testing.T) {
	channel, registrar := newTestChannel(t, 2, &mockTransport{})
	channel.Receive([]byte("1t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
	assert.Len(t, registrar.device(1).Frames(), 1)
}

func TestReceiveUnknownEndpointAddress(t *testing.T) {
	channel, registrar := newTestChannel(t, 2, &mockTransport{})
	channel.Receive([]byte("5t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
	assert.Len(t, registrar.device(1).Frames(), 0)
}

func TestReceiveMalformedIsSilentlyDropped(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	channel.Receive([]byte("x123456789\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
	stats, _ := channel.Stats(0)
	assert.Equal(t, EndpointStats{}, stats)
	// Buffer state is reset, the next frame decodes normally
	assert.Equal(t, 0, channel.rcount)
	assert.False(t, channel.rxError)
	channel.Receive([]byte("t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 1)
}

func TestReceiveOverflowRecovery(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	// More bytes than the buffer holds without a terminator
	overflow := make([]byte, 2*slcanMTU)
	for i := range overflow {
		overflow[i] = 'A'
	}
	channel.Receive(overflow, nil)
	stats, _ := channel.Stats(0)
	assert.Equal(t, uint64(1), stats.RxOverflows)
	assert.True(t, channel.rxError)
	// The terminator yields no frame but clears the error latch
	channel.Receive([]byte{terminatorCR}, nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
	assert.False(t, channel.rxError)
	assert.Equal(t, 0, channel.rcount)
	// The next complete frame decodes normally
	channel.Receive([]byte("t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 1)
	stats, _ = channel.Stats(0)
	assert.Equal(t, uint64(1), stats.RxOverflows)
}

func TestReceiveOverflowChargedToEndpointZero(t *testing.T) {
	channel, _ := newTestChannel(t, 2, &mockTransport{})
	overflow := make([]byte, 2*slcanMTU)
	for i := range overflow {
		overflow[i] = '1' // frame would have addressed endpoint 1
	}
	channel.Receive(overflow, nil)
	stats0, _ := channel.Stats(0)
	stats1, _ := channel.Stats(1)
	assert.Equal(t, uint64(1), stats0.RxOverflows)
	assert.Equal(t, uint64(0), stats1.RxOverflows)
}

func TestReceiveLineError(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	data := []byte("t1230\r")
	lineErrors := make([]bool, len(data))
	lineErrors[2] = true
	channel.Receive(data, lineErrors)
	// Erroneous byte excluded, frame discarded, one rx error counted
	assert.Len(t, registrar.device(0).Frames(), 0)
	stats, _ := channel.Stats(0)
	assert.Equal(t, uint64(1), stats.RxErrors)
	// Latch cleared by the terminator, next frame is fine
	assert.False(t, channel.rxError)
	channel.Receive([]byte("t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 1)
	stats, _ = channel.Stats(0)
	assert.Equal(t, uint64(1), stats.RxErrors)
}

func TestReceiveShortBufferSkipped(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	// Four bytes or fewer are never decoded
	channel.Receive([]byte("t123\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
}

func TestReceiveIgnoredWhileEndpointDown(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	registrar.device(0).setRunning(false)
	channel.Receive([]byte("t1230\r"), nil)
	assert.Len(t, registrar.device(0).Frames(), 0)
}

func TestTransmitEndpointDown(t *testing.T) {
	channel, registrar := newTestChannel(t, 1, &mockTransport{})
	registrar.device(0).setRunning(false)
	err := channel.Transmit(0, Frame{ID: 0x123})
	assert.Equal(t, ErrEndpointDown, err)
}

func TestTransmitNoTransport(t *testing.T) {
	transport := &mockTransport{}
	registrar := &mockRegistrar{deferTeardown: true}
	registry := NewRegistry(Config{MaxChannels: MinChannels, MuxCount: 1}, registrar)
	channel, err := registry.Open(transport)
	assert.Nil(t, err)
	registry.Close(transport)
	// Endpoint still attached but the transport handle is gone
	registrar.device(0).setRunning(true)
	err = channel.Transmit(0, Frame{ID: 0x123})
	assert.Equal(t, ErrNoTransport, err)
}

func TestTransmitInvalidFrame(t *testing.T) {
	channel, _ := newTestChannel(t, 1, &mockTransport{})
	err := channel.Transmit(0, Frame{ID: 0x123, DLC: 9})
	assert.Equal(t, ErrIllegalArgument, err)
	err = channel.Transmit(3, Frame{ID: 0x123})
	assert.Equal(t, ErrIllegalArgument, err)
}

func TestOpenCloseEndpoint(t *testing.T) {
	transport := &mockTransport{}
	channel, registrar := newTestChannel(t, 1, transport)
	device := registrar.device(0)

	assert.Nil(t, channel.OpenEndpoint(0))
	assert.True(t, device.QueueOn())

	// Leave a pending suffix behind, closing must zero it
	transport.accepts = []int{2}
	assert.Nil(t, channel.Transmit(0, Frame{ID: 0x123}))
	assert.Nil(t, channel.CloseEndpoint(0))
	assert.False(t, device.QueueOn())
	assert.Equal(t, 0, channel.endpoints[0].xleft)
	assert.False(t, channel.endpoints[0].txPending)
	assert.False(t, transport.wakeup)

	assert.Equal(t, ErrIllegalArgument, channel.OpenEndpoint(5))
}

package slcan

import "sync"

// In memory network device used by the tests
type mockDevice struct {
	mu          sync.Mutex
	channel     *Channel
	addr        int
	frames      []Frame
	running     bool
	queueOn     bool
	queueStops  int
	queueStarts int
}

func (device *mockDevice) Deliver(frame Frame) {
	device.mu.Lock()
	device.frames = append(device.frames, frame)
	device.mu.Unlock()
}

func (device *mockDevice) StartQueue() {
	device.mu.Lock()
	device.queueOn = true
	device.queueStarts++
	device.mu.Unlock()
}

func (device *mockDevice) StopQueue() {
	device.mu.Lock()
	device.queueOn = false
	device.queueStops++
	device.mu.Unlock()
}

func (device *mockDevice) Running() bool {
	device.mu.Lock()
	defer device.mu.Unlock()
	return device.running
}

func (device *mockDevice) Down() {
	device.mu.Lock()
	device.running = false
	device.mu.Unlock()
	device.channel.CloseEndpoint(device.addr)
}

func (device *mockDevice) Frames() []Frame {
	device.mu.Lock()
	defer device.mu.Unlock()
	frames := make([]Frame, len(device.frames))
	copy(frames, device.frames)
	return frames
}

func (device *mockDevice) QueueOn() bool {
	device.mu.Lock()
	defer device.mu.Unlock()
	return device.queueOn
}

func (device *mockDevice) setRunning(running bool) {
	device.mu.Lock()
	device.running = running
	device.mu.Unlock()
}

// mockRegistrar hands out mock devices. With deferTeardown set, Unregister
// only queues the device and teardown completes on flushTeardown, which is
// how an asynchronous network side behaves.
type mockRegistrar struct {
	mu            sync.Mutex
	devices       []*mockDevice
	pending       []*mockDevice
	deferTeardown bool
}

func (registrar *mockRegistrar) Register(channel *Channel, addr int) (Device, error) {
	device := &mockDevice{channel: channel, addr: addr, running: true, queueOn: true}
	registrar.mu.Lock()
	registrar.devices = append(registrar.devices, device)
	registrar.mu.Unlock()
	return device, nil
}

func (registrar *mockRegistrar) Unregister(device Device) {
	mock := device.(*mockDevice)
	mock.setRunning(false)
	if registrar.deferTeardown {
		registrar.mu.Lock()
		registrar.pending = append(registrar.pending, mock)
		registrar.mu.Unlock()
		return
	}
	mock.channel.DetachEndpoint(mock.addr)
}

func (registrar *mockRegistrar) flushTeardown() {
	registrar.mu.Lock()
	pending := registrar.pending
	registrar.pending = nil
	registrar.mu.Unlock()
	for _, mock := range pending {
		mock.channel.DetachEndpoint(mock.addr)
	}
}

func (registrar *mockRegistrar) device(addr int) *mockDevice {
	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	for _, device := range registrar.devices {
		if device.addr == addr {
			return device
		}
	}
	return nil
}

// mockTransport records written bytes. accepts scripts the number of bytes
// accepted by successive Write calls, once exhausted writes accept all.
type mockTransport struct {
	written      []byte
	accepts      []int
	wakeup       bool
	armedAtWrite []bool
}

func (transport *mockTransport) Write(data []byte) (int, error) {
	transport.armedAtWrite = append(transport.armedAtWrite, transport.wakeup)
	accepted := len(data)
	if len(transport.accepts) > 0 {
		accepted = transport.accepts[0]
		transport.accepts = transport.accepts[1:]
		if accepted > len(data) {
			accepted = len(data)
		}
	}
	transport.written = append(transport.written, data[:accepted]...)
	return accepted, nil
}

func (transport *mockTransport) SetWriteWakeup(enabled bool) {
	transport.wakeup = enabled
}

var (
	_ Transport       = (*mockTransport)(nil)
	_ Device          = (*mockDevice)(nil)
	_ DeviceRegistrar = (*mockRegistrar)(nil)
)

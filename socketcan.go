package slcan

import (
	"fmt"
	"sync"

	"github.com/brutella/can"
	log "github.com/sirupsen/logrus"
)

// SocketCAN carries the EFF/RTR flags in the upper bits of the identifier
const (
	canEffFlag uint32 = 0x80000000
	canRtrFlag uint32 = 0x40000000
)

// SocketcanDevice bridges one endpoint to a real socketcan interface
// (this is a wrapper around brutella/can, like the canopen driver).
// Frames decoded from the serial side are published on the CAN interface,
// frames received on the CAN interface are submitted to the endpoint
// transmit path.
type SocketcanDevice struct {
	bus     *can.Bus
	channel *Channel
	addr    int
	mu      sync.Mutex
	running bool
	queueOn bool
}

func NewSocketcanDevice(name string, channel *Channel, addr int) (*SocketcanDevice, error) {
	bus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	device := &SocketcanDevice{bus: bus, channel: channel, addr: addr, running: true, queueOn: true}
	bus.Subscribe(device)
	go bus.ConnectAndPublish()
	return device, nil
}

// Deliver implementation of Device interface, publishes on the CAN side
func (device *SocketcanDevice) Deliver(frame Frame) {
	id := frame.ID
	if frame.Extended {
		id = (id & MaxExtendedId) | canEffFlag
	} else {
		id &= MaxStandardId
	}
	if frame.RTR {
		id |= canRtrFlag
	}
	err := device.bus.Publish(can.Frame{ID: id, Length: frame.DLC, Data: frame.Data})
	if err != nil {
		log.Errorf("[SOCKETCAN] publish failed on endpoint %v : %v", device.addr, err)
	}
}

// StartQueue implementation of Device interface
func (device *SocketcanDevice) StartQueue() {
	device.mu.Lock()
	device.queueOn = true
	device.mu.Unlock()
}

// StopQueue implementation of Device interface
func (device *SocketcanDevice) StopQueue() {
	device.mu.Lock()
	device.queueOn = false
	device.mu.Unlock()
}

// Running implementation of Device interface
func (device *SocketcanDevice) Running() bool {
	device.mu.Lock()
	defer device.mu.Unlock()
	return device.running
}

// Down implementation of Device interface
func (device *SocketcanDevice) Down() {
	device.mu.Lock()
	device.running = false
	device.mu.Unlock()
	device.channel.CloseEndpoint(device.addr)
}

// brutella/can specific "Handle" implementation : frames arriving on the
// CAN side go out over the serial transport
func (device *SocketcanDevice) Handle(frame can.Frame) {
	device.mu.Lock()
	accepting := device.running && device.queueOn
	device.mu.Unlock()
	if !accepting {
		log.Debugf("[SOCKETCAN] endpoint %v queue is down, dropping frame x%x", device.addr, frame.ID)
		return
	}
	outbound := Frame{
		ID:       frame.ID &^ (canEffFlag | canRtrFlag),
		Extended: frame.ID&canEffFlag != 0,
		RTR:      frame.ID&canRtrFlag != 0,
		DLC:      frame.Length,
		Data:     frame.Data,
	}
	err := device.channel.Transmit(device.addr, outbound)
	if err != nil {
		log.Warnf("[SOCKETCAN] dropping frame x%x on endpoint %v : %v", frame.ID, device.addr, err)
	}
}

// SocketcanRegistrar implements DeviceRegistrar by mapping endpoint
// addresses to socketcan interface names
type SocketcanRegistrar struct {
	interfaces map[int]string
}

func NewSocketcanRegistrar(interfaces map[int]string) *SocketcanRegistrar {
	return &SocketcanRegistrar{interfaces: interfaces}
}

// Register implementation of DeviceRegistrar interface
func (registrar *SocketcanRegistrar) Register(channel *Channel, addr int) (Device, error) {
	name, ok := registrar.interfaces[addr]
	if !ok {
		return nil, fmt.Errorf("no CAN interface configured for endpoint %v", addr)
	}
	log.Infof("[SOCKETCAN] endpoint %v of channel %v backed by %v", addr, channel.Id(), name)
	return NewSocketcanDevice(name, channel, addr)
}

// Unregister implementation of DeviceRegistrar interface. Teardown is
// immediate here, completion is confirmed to the channel right away.
func (registrar *SocketcanRegistrar) Unregister(device Device) {
	socketcanDevice, ok := device.(*SocketcanDevice)
	if !ok {
		return
	}
	socketcanDevice.mu.Lock()
	socketcanDevice.running = false
	socketcanDevice.queueOn = false
	socketcanDevice.mu.Unlock()
	err := socketcanDevice.bus.Disconnect()
	if err != nil {
		log.Errorf("[SOCKETCAN] disconnect failed on endpoint %v : %v", socketcanDevice.addr, err)
	}
	socketcanDevice.channel.DetachEndpoint(socketcanDevice.addr)
}

var (
	_ Device          = (*SocketcanDevice)(nil)
	_ DeviceRegistrar = (*SocketcanRegistrar)(nil)
)

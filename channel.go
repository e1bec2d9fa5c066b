package slcan

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Maximum number of endpoints multiplexed on one channel, bounded by the
// single decimal address digit
const MuxEndpointMax = 10

// A Channel binds one serial transport to up to MuxEndpointMax endpoints.
// It owns the receive buffer and drives decode on received bytes, and
// serializes the transmit path of every endpoint because the transport is
// a single shared byte stream.
//
// One lock guards the receive buffer, the error flag, the endpoint slots
// and all endpoint transmit state. The receive path is never re-entered
// concurrently with itself but transmit, write wakeup and teardown may run
// from other goroutines.
type Channel struct {
	id       int
	registry *Registry
	muxCount int

	mu        sync.Mutex
	transport Transport // borrowed, nil once hung up
	rbuff     [slcanMTU]byte
	rcount    int
	rxError   bool
	endpoints [MuxEndpointMax]*Endpoint
}

// Id returns the channel's registry slot index
func (channel *Channel) Id() int {
	return channel.id
}

// MuxCount returns the number of endpoints multiplexed on this channel
func (channel *Channel) MuxCount() int {
	return channel.muxCount
}

// Stats returns a snapshot of the counters of endpoint addr
func (channel *Channel) Stats(addr int) (EndpointStats, error) {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if addr < 0 || addr >= MuxEndpointMax || channel.endpoints[addr] == nil {
		return EndpointStats{}, ErrIllegalArgument
	}
	return channel.endpoints[addr].stats, nil
}

/************************************************************************
 *			RECEIVE PATH					*
 ************************************************************************/

// Receive accumulates raw transport bytes. lineErrors, when non nil, flags
// bytes on which the transport reported a framing or parity error : such
// bytes are excluded from the buffer, charge one rx error to endpoint 0 and
// latch the error flag until the next terminator.
func (channel *Channel) Receive(data []byte, lineErrors []bool) {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	endpoint := channel.endpoints[0]
	if endpoint == nil || !endpoint.device.Running() {
		return
	}
	for i, b := range data {
		if lineErrors != nil && lineErrors[i] {
			if !channel.rxError {
				channel.rxError = true
				endpoint.stats.RxErrors++
			}
			continue
		}
		channel.receiveByte(b)
	}
}

func (channel *Channel) receiveByte(b byte) {
	if b == terminatorCR || b == terminatorBEL {
		if !channel.rxError && channel.rcount > slcanMinLen {
			channel.bump()
		}
		channel.rcount = 0
		channel.rxError = false
		return
	}
	if channel.rxError {
		return
	}
	if channel.rcount < len(channel.rbuff) {
		channel.rbuff[channel.rcount] = b
		channel.rcount++
		return
	}
	// Buffer full before a terminator. The destination address is still
	// unparsed at this point so the overflow is always charged to
	// endpoint 0, whichever endpoint the frame was meant for.
	channel.endpoints[0].stats.RxOverflows++
	channel.rxError = true
}

// Decode one completed buffer and deliver it to the addressed endpoint.
// Malformed buffers and unknown endpoint addresses are dropped silently.
func (channel *Channel) bump() {
	frame, addr, ok := decodeFrame(channel.rbuff[:channel.rcount])
	if !ok {
		return
	}
	endpoint := channel.endpoints[addr]
	if endpoint == nil {
		return
	}
	endpoint.device.Deliver(frame)
	endpoint.stats.RxPackets++
	endpoint.stats.RxBytes += uint64(frame.DLC)
}

/************************************************************************
 *			TRANSMIT PATH					*
 ************************************************************************/

// Transmit encodes one frame for endpoint addr and hands it to the shared
// transport. The outbound queue is stopped until the encoded bytes have
// fully drained, any unaccepted suffix is retried on the next write wakeup.
func (channel *Channel) Transmit(addr int, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if addr < 0 || addr >= MuxEndpointMax || channel.endpoints[addr] == nil {
		return ErrIllegalArgument
	}
	endpoint := channel.endpoints[addr]
	if !endpoint.device.Running() {
		log.Warnf("[CHANNEL %v] xmit: endpoint %v is down", channel.id, addr)
		return ErrEndpointDown
	}
	if channel.transport == nil {
		return ErrNoTransport
	}
	endpoint.device.StopQueue()
	length := encodeFrame(endpoint.xbuff[:], frame, addr, channel.muxCount)

	// Order matters here. A short write may complete inside Write itself
	// and the wakeup would never fire if requested after the fact.
	channel.transport.SetWriteWakeup(true)
	accepted, err := channel.transport.Write(endpoint.xbuff[:length])
	if err != nil {
		log.Errorf("[CHANNEL %v] xmit failed on endpoint %v : %v", channel.id, addr, err)
		endpoint.xhead = 0
		endpoint.xleft = 0
		return err
	}
	endpoint.xhead = accepted
	endpoint.xleft = length - accepted
	endpoint.txPending = true
	endpoint.stats.TxBytes += uint64(frame.DLC)
	return nil
}

// WriteWakeup resumes partial writes. Invoked by the transport whenever
// more room is available, possibly for reasons unrelated to any specific
// endpoint, so every endpoint of the channel is inspected.
func (channel *Channel) WriteWakeup() {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if channel.transport == nil {
		return
	}
	for _, endpoint := range channel.endpoints[:channel.muxCount] {
		if endpoint == nil || !endpoint.device.Running() {
			continue
		}
		if endpoint.xleft <= 0 {
			// Serial buffer is free again, transmission of another
			// packet can start
			channel.finishDrain(endpoint)
			continue
		}
		accepted, err := channel.transport.Write(endpoint.xbuff[endpoint.xhead : endpoint.xhead+endpoint.xleft])
		if err != nil {
			log.Errorf("[CHANNEL %v] wakeup write failed on endpoint %v : %v", channel.id, endpoint.addr, err)
			continue
		}
		endpoint.xleft -= accepted
		endpoint.xhead += accepted
		if endpoint.xleft <= 0 {
			channel.finishDrain(endpoint)
		} else {
			channel.transport.SetWriteWakeup(true)
		}
	}
}

// Count a fully drained packet exactly once and un-gate the queue
func (channel *Channel) finishDrain(endpoint *Endpoint) {
	if endpoint.txPending {
		endpoint.txPending = false
		endpoint.stats.TxPackets++
	}
	channel.transport.SetWriteWakeup(false)
	endpoint.device.StartQueue()
}

/************************************************************************
 *			ENDPOINT LIFECYCLE				*
 ************************************************************************/

// OpenEndpoint brings endpoint addr up. Requires a live transport. Clears
// the latched receive error state and un-gates the outbound queue.
func (channel *Channel) OpenEndpoint(addr int) error {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if addr < 0 || addr >= MuxEndpointMax || channel.endpoints[addr] == nil {
		return ErrIllegalArgument
	}
	if channel.transport == nil {
		return ErrNoTransport
	}
	channel.rxError = false
	channel.endpoints[addr].device.StartQueue()
	return nil
}

// CloseEndpoint takes endpoint addr down : stops its queue, zeroes its
// pending transmit state and, while the transport is live, clears any
// pending write wakeup request. The channel itself is not destroyed.
func (channel *Channel) CloseEndpoint(addr int) error {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if addr < 0 || addr >= MuxEndpointMax || channel.endpoints[addr] == nil {
		return ErrIllegalArgument
	}
	endpoint := channel.endpoints[addr]
	if channel.transport != nil {
		channel.transport.SetWriteWakeup(false)
	}
	endpoint.device.StopQueue()
	channel.rcount = 0
	endpoint.xleft = 0
	endpoint.xhead = 0
	endpoint.txPending = false
	return nil
}

// DetachEndpoint completes the teardown of endpoint addr, called by the
// network side once the device is gone. The channel slot is reclaimed when
// the last endpoint detaches, never before.
func (channel *Channel) DetachEndpoint(addr int) {
	channel.mu.Lock()
	if addr < 0 || addr >= MuxEndpointMax || channel.endpoints[addr] == nil {
		channel.mu.Unlock()
		return
	}
	channel.endpoints[addr] = nil
	remaining := 0
	for _, endpoint := range channel.endpoints {
		if endpoint != nil {
			remaining++
		}
	}
	channel.mu.Unlock()
	log.Debugf("[CHANNEL %v] endpoint %v detached, %v remaining", channel.id, addr, remaining)
	if remaining == 0 {
		channel.registry.release(channel)
	}
}

// Hangup detaches the transport and starts asynchronous teardown of every
// endpoint still attached. Safe to run concurrently with in flight receive
// or transmit calls, which quiesce on the channel lock.
func (channel *Channel) hangup() {
	channel.mu.Lock()
	channel.transport = nil
	devices := []Device{}
	for _, endpoint := range channel.endpoints {
		if endpoint != nil {
			devices = append(devices, endpoint.device)
		}
	}
	channel.mu.Unlock()
	for _, device := range devices {
		channel.registry.registrar.Unregister(device)
	}
}

func (channel *Channel) boundTo(transport Transport) bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	return channel.transport == transport
}

// Endpoints still attached whose device reports running
func (channel *Channel) runningDevices() []Device {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	devices := []Device{}
	for _, endpoint := range channel.endpoints {
		if endpoint != nil && endpoint.device.Running() {
			devices = append(devices, endpoint.device)
		}
	}
	return devices
}

func (channel *Channel) hasTransport() bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	return channel.transport != nil
}

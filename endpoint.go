package slcan

// Packet and byte counters of a single endpoint
type EndpointStats struct {
	RxPackets   uint64
	RxBytes     uint64
	TxPackets   uint64
	TxBytes     uint64
	RxOverflows uint64
	RxErrors    uint64
}

// Endpoint is one virtual CAN interface multiplexed onto a channel,
// identified by its address digit. It holds the transmit buffer and the
// unsent suffix of the last encoded frame. The parent channel is referenced
// by id only and resolved through the registry, the channel owns its
// endpoints strongly. All mutable state is guarded by the channel lock.
type Endpoint struct {
	channelId int
	addr      int
	device    Device

	xbuff [slcanMTU]byte
	xhead int // offset of the next unsent byte
	xleft int // unsent bytes of the current encoded frame, 0 when idle
	// An encoded packet is in flight and not yet counted. Cleared when the
	// pending count first reaches zero so the packet is counted exactly once.
	txPending bool

	stats EndpointStats
}

func newEndpoint(channelId int, addr int, device Device) *Endpoint {
	return &Endpoint{channelId: channelId, addr: addr, device: device}
}

// Address returns the endpoint's multiplex address, stable for its lifetime
func (endpoint *Endpoint) Address() int {
	return endpoint.addr
}

// ChannelId returns the id of the parent channel
func (endpoint *Endpoint) ChannelId() int {
	return endpoint.channelId
}

// Device returns the network device backing this endpoint
func (endpoint *Endpoint) Device() Device {
	return endpoint.device
}

package slcan

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registry is a fixed capacity pool of channels indexed by allocation
// order. Its lock only guards the slot array and is distinct from the per
// channel locks, unrelated channels never serialize their hot paths here.
type Registry struct {
	mu        sync.Mutex
	channels  []*Channel
	muxCount  int
	registrar DeviceRegistrar
}

// NewRegistry creates a channel registry with clamped configuration. The
// registrar supplies the network devices backing each endpoint.
func NewRegistry(config Config, registrar DeviceRegistrar) *Registry {
	config = config.clamped()
	log.Infof("[REGISTRY] %v dynamic interface channels", config.MaxChannels)
	if config.MuxCount > 1 {
		log.Infof("[REGISTRY] multiplexer enabled, ratio %v:1", config.MuxCount)
	}
	return &Registry{
		channels:  make([]*Channel, config.MaxChannels),
		muxCount:  config.MuxCount,
		registrar: registrar,
	}
}

// Open binds a transport to a free channel slot and registers all of the
// channel's endpoints with the network side in one go. Re-opening a
// transport that is already bound fails with ErrChannelExists, a full
// registry fails with ErrNoFreeChannel.
func (registry *Registry) Open(transport Transport) (*Channel, error) {
	if transport == nil {
		return nil, ErrIllegalArgument
	}
	registry.mu.Lock()

	// Collect hanged up channels first
	registry.sweepLocked()

	slot := -1
	for i, channel := range registry.channels {
		if channel == nil {
			if slot < 0 {
				slot = i
			}
			continue
		}
		if channel.boundTo(transport) {
			registry.mu.Unlock()
			return nil, ErrChannelExists
		}
	}
	if slot < 0 {
		registry.mu.Unlock()
		return nil, ErrNoFreeChannel
	}

	channel := &Channel{
		id:        slot,
		registry:  registry,
		muxCount:  registry.muxCount,
		transport: transport,
	}
	// Reserve the slot before registering devices, registration must not
	// run under the registry lock because teardown re-enters it
	registry.channels[slot] = channel
	registry.mu.Unlock()

	for addr := 0; addr < registry.muxCount; addr++ {
		device, err := registry.registrar.Register(channel, addr)
		if err != nil {
			log.Errorf("[REGISTRY] registering endpoint %v on channel %v failed : %v", addr, slot, err)
			channel.hangup()
			if addr == 0 {
				// Nothing was registered, no detach will release the slot
				registry.release(channel)
			}
			return nil, err
		}
		channel.mu.Lock()
		channel.endpoints[addr] = newEndpoint(slot, addr, device)
		channel.mu.Unlock()
	}
	log.Infof("[REGISTRY] opened channel %v with %v endpoint(s)", slot, registry.muxCount)
	return channel, nil
}

// Find returns the channel bound to the given transport, nil when none
func (registry *Registry) Find(transport Transport) *Channel {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, channel := range registry.channels {
		if channel != nil && channel.boundTo(transport) {
			return channel
		}
	}
	return nil
}

// Close detaches the transport from its channel and starts endpoint
// teardown. Also used for hangup events. The channel slot is reclaimed
// once the last endpoint confirms teardown via DetachEndpoint.
func (registry *Registry) Close(transport Transport) {
	channel := registry.Find(transport)
	if channel == nil {
		return
	}
	log.Infof("[REGISTRY] closing channel %v", channel.id)
	channel.hangup()
}

// Sync requests the interfaces of hanged up channels be taken down, so
// their slots can eventually be released
func (registry *Registry) Sync() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.sweepLocked()
}

func (registry *Registry) sweepLocked() {
	for _, channel := range registry.channels {
		if channel == nil || channel.hasTransport() {
			continue
		}
		for _, device := range channel.runningDevices() {
			device.Down()
		}
	}
}

// Shutdown hangs up every channel. Channels whose endpoints have not
// completed teardown yet are reported and left to the network side.
func (registry *Registry) Shutdown() {
	registry.mu.Lock()
	channels := []*Channel{}
	for _, channel := range registry.channels {
		if channel != nil {
			channels = append(channels, channel)
		}
	}
	registry.mu.Unlock()
	for _, channel := range channels {
		if channel.hasTransport() {
			log.Warnf("[REGISTRY] channel %v still has a live transport, hanging up", channel.id)
		}
		channel.hangup()
	}
}

// release clears the slot of a fully torn down channel for reuse
func (registry *Registry) release(channel *Channel) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for i, c := range registry.channels {
		if c == channel {
			registry.channels[i] = nil
			log.Infof("[REGISTRY] released channel %v", channel.id)
		}
	}
}

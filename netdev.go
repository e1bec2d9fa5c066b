package slcan

// Device is one virtual CAN network interface as seen from a channel
// endpoint. Implementations deliver decoded frames up the stack and expose
// the outbound queue controls used for backpressure.
type Device interface {
	// Deliver hands one completely decoded frame to the network side
	Deliver(frame Frame)
	// StartQueue resumes the outbound queue after a full drain
	StartQueue()
	// StopQueue gates the outbound queue while a write is pending
	StopQueue()
	// Running reports whether the interface is up
	Running() bool
	// Down requests the interface be taken down, used by the registry
	// sweep for channels whose transport has hung up
	Down()
}

// DeviceRegistrar creates and tears down the network devices backing a
// channel's endpoints. All devices of a channel are registered together at
// allocation time. Unregister starts an asynchronous teardown : the network
// side confirms completion by calling Channel.DetachEndpoint, which
// eventually reclaims the channel slot.
type DeviceRegistrar interface {
	Register(channel *Channel, addr int) (Device, error)
	Unregister(device Device)
}

package slcan

// Transport is the byte oriented serial side of a channel. It is borrowed
// by the channel, never owned : open/close/hangup are driven from the
// outside through the registry.
type Transport interface {
	// Write pushes bytes toward the wire without blocking or queuing and
	// returns how many were accepted, possibly fewer than requested. The
	// unaccepted suffix is retried on the next write wakeup.
	Write(data []byte) (int, error)
	// SetWriteWakeup arms or clears the writable notification. While armed
	// the transport invokes Channel.WriteWakeup whenever more room is
	// available.
	SetWriteWakeup(enabled bool)
}

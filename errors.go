package slcan

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrNoFreeChannel   = errors.New("no free slcan channel slot")
	ErrChannelExists   = errors.New("transport is already bound to a channel")
	ErrNoTransport     = errors.New("channel has no live transport")
	ErrEndpointDown    = errors.New("endpoint queue is not running")
)

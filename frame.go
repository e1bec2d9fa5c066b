// This package is a pure golang implementation of the serial line CAN
// (SLCAN) encapsulation with optional channel multiplexing
package slcan

// Classical CAN identifier limits
const (
	MaxStandardId uint32 = 0x7FF
	MaxExtendedId uint32 = 0x1FFFFFFF
)

// A classical CAN frame
// Standard (11 bit) and extended (29 bit) identifiers are mutually
// exclusive via the Extended flag. Only the first DLC bytes of Data
// are meaningful.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	DLC      uint8
	Data     [8]byte
}

func NewFrame(id uint32, extended bool, dlc uint8) Frame {
	return Frame{ID: id, Extended: extended, DLC: dlc}
}

// Validate returns an error if the frame cannot be encoded
func (frame Frame) Validate() error {
	if frame.DLC > 8 {
		return ErrIllegalArgument
	}
	if frame.Extended {
		if frame.ID > MaxExtendedId {
			return ErrIllegalArgument
		}
	} else if frame.ID > MaxStandardId {
		return ErrIllegalArgument
	}
	return nil
}

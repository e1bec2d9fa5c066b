package slcan

// The SLCAN ASCII representation of a CAN frame is :
// [<addr>]<type><id><dlc><data>*<terminator>
//
// t => 11 bit data frame
// r => 11 bit RTR frame
// T => 29 bit data frame
// R => 29 bit RTR frame
//
// The <id> is 3 (standard) or 8 (extended) ASCII hex characters.
// The <dlc> is a one byte ASCII number ('0' - '8')
// The <data> section has as much ASCII hex bytes as defined by the <dlc>
// The optional <addr> digit selects the destination endpoint when more
// than one endpoint is multiplexed on the channel.
//
// Examples :
//
// t1230 : id 0x123, dlc 0, no data
// t4563112233 : id 0x456, dlc 3, data 0x11 0x22 0x33
// T12ABCDEF2AA55 : extended id 0x12ABCDEF, dlc 2, data 0xAA 0x55
// 1t1230 : id 0x123, dlc 0, addressed to endpoint 1

// Frame terminators, either of which ends a pdu
const (
	terminatorCR  byte = 0x0D
	terminatorBEL byte = 0x07
)

// Maximum encoded length : mux digit + type + 8 hex id + dlc + 16 hex data
// + terminator. Also the receive buffer capacity.
const slcanMTU = 1 + 1 + 8 + 1 + 16 + 1

// Buffers at or below this length are never decoded
const slcanMinLen = 4

// Frame kind, derived once from the type character and consumed by both
// buffer layout logic and dispatch
type frameKind uint8

const (
	standardData frameKind = iota
	standardRemote
	extendedData
	extendedRemote
)

func kindOf(typeChar byte) (frameKind, bool) {
	switch typeChar {
	case 't':
		return standardData, true
	case 'r':
		return standardRemote, true
	case 'T':
		return extendedData, true
	case 'R':
		return extendedRemote, true
	default:
		return 0, false
	}
}

func kindFor(frame Frame) frameKind {
	switch {
	case frame.Extended && frame.RTR:
		return extendedRemote
	case frame.Extended:
		return extendedData
	case frame.RTR:
		return standardRemote
	default:
		return standardData
	}
}

func (kind frameKind) extended() bool {
	return kind == extendedData || kind == extendedRemote
}

func (kind frameKind) remote() bool {
	return kind == standardRemote || kind == extendedRemote
}

// Number of ASCII hex characters in the id field
func (kind frameKind) idDigits() int {
	if kind.extended() {
		return 8
	}
	return 3
}

func (kind frameKind) typeChar() byte {
	switch kind {
	case standardData:
		return 't'
	case standardRemote:
		return 'r'
	case extendedData:
		return 'T'
	default:
		return 'R'
	}
}

const hexUpper = "0123456789ABCDEF"

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// decodeFrame parses one completed buffer (terminator already stripped)
// into a frame and its destination endpoint address. The leading address
// digit is detected by value, its absence means endpoint 0. Malformed
// buffers return ok == false and are silently dropped by the caller, no
// partial frame is ever delivered.
func decodeFrame(buffer []byte) (frame Frame, addr int, ok bool) {
	offset := 0
	if len(buffer) == 0 {
		return Frame{}, 0, false
	}
	if buffer[0] >= '0' && buffer[0] <= '9' {
		addr = int(buffer[0] - '0')
		offset = 1
	}
	if len(buffer) < offset+1 {
		return Frame{}, 0, false
	}
	kind, valid := kindOf(buffer[offset])
	if !valid {
		return Frame{}, 0, false
	}
	// dlc position is fixed by kind : tiiid / Tiiiiiiiid
	dlcPos := offset + 1 + kind.idDigits()
	if len(buffer) <= dlcPos {
		return Frame{}, 0, false
	}
	// '8' is the true maximum, '9' must be rejected
	if buffer[dlcPos] < '0' || buffer[dlcPos] >= '9' {
		return Frame{}, 0, false
	}
	frame.DLC = buffer[dlcPos] - '0'
	for _, c := range buffer[offset+1 : dlcPos] {
		nibble := hexNibble(c)
		if nibble < 0 {
			return Frame{}, 0, false
		}
		frame.ID = frame.ID<<4 | uint32(nibble)
	}
	frame.Extended = kind.extended()
	frame.RTR = kind.remote()
	if len(buffer) < dlcPos+1+2*int(frame.DLC) {
		return Frame{}, 0, false
	}
	pos := dlcPos + 1
	for i := 0; i < int(frame.DLC); i++ {
		hi := hexNibble(buffer[pos])
		lo := hexNibble(buffer[pos+1])
		if hi < 0 || lo < 0 {
			return Frame{}, 0, false
		}
		frame.Data[i] = byte(hi<<4 | lo)
		pos += 2
	}
	return frame, addr, true
}

// encodeFrame encapsulates one frame into dst and returns the encoded
// length. The address digit is only emitted when more than one endpoint
// is multiplexed on the channel. dst must hold at least slcanMTU bytes.
func encodeFrame(dst []byte, frame Frame, addr int, muxCount int) int {
	n := 0
	if muxCount > 1 {
		dst[n] = byte('0' + addr)
		n++
	}
	kind := kindFor(frame)
	dst[n] = kind.typeChar()
	n++
	id := frame.ID
	if kind.extended() {
		id &= MaxExtendedId
	} else {
		id &= MaxStandardId
	}
	digits := kind.idDigits()
	for i := digits - 1; i >= 0; i-- {
		dst[n+i] = hexUpper[id&0xF]
		id >>= 4
	}
	n += digits
	dst[n] = '0' + frame.DLC
	n++
	for i := 0; i < int(frame.DLC); i++ {
		dst[n] = hexUpper[frame.Data[i]>>4]
		dst[n+1] = hexUpper[frame.Data[i]&0xF]
		n += 2
	}
	dst[n] = terminatorCR
	n++
	return n
}

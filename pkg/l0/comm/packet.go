package comm

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Command is the first byte of a packet.
type Command byte

// Commands exchanged with the scanner firmware.
const (
	CmdSYN    Command = 0x00 // host -> device, opens the handshake
	CmdSYNACK Command = 0x01 // device -> host
	CmdACK    Command = 0x02 // completes the handshake, acknowledges a packet
	CmdSET    Command = 0x03 // host -> device, sets a device parameter
	CmdGET    Command = 0x04 // host -> device, requests data
	CmdRSP    Command = 0x05 // device -> host, data response to GET
	CmdDISCON Command = 0x06 // host -> device, starts teardown
	CmdDSCACK Command = 0x07 // device -> host
	CmdPROBE  Command = 0x08 // host -> unknown port
	CmdPRBACK Command = 0x09 // device -> host, answers PROBE
	// CmdNUL is never sent to the scanner. Bridges reply NUL to remote
	// hosts when an exchange failed.
	CmdNUL Command = 0x0A
)

var commandNames = map[Command]string{
	CmdSYN:    "SYN",
	CmdSYNACK: "SYNACK",
	CmdACK:    "ACK",
	CmdSET:    "SET",
	CmdGET:    "GET",
	CmdRSP:    "RSP",
	CmdDISCON: "DISCON",
	CmdDSCACK: "DSCACK",
	CmdPROBE:  "PROBE",
	CmdPRBACK: "PRBACK",
	CmdNUL:    "NUL",
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(0x%02x)", byte(c))
}

// ParseCommand parses a command name such as "GET" (any case) or a
// numeric code such as "0x04".
func ParseCommand(s string) (Command, error) {
	for cmd, name := range commandNames {
		if strings.EqualFold(name, s) {
			return cmd, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return Command(n), nil
}

const (
	// PayloadSize is the fixed number of data bytes in a packet.
	PayloadSize = 8
	// FrameSize is the number of bytes a packet occupies on the wire.
	FrameSize = PayloadSize + 1

	// FixedPointScale converts float64 values to and from their integer encoding.
	FixedPointScale = 1000

	signIndex = PayloadSize - 1

	// MaxSignedMagnitude is the largest magnitude a signed encoding preserves.
	// The top payload byte is taken by the sign flag.
	MaxSignedMagnitude = 1<<(8*signIndex) - 1
)

// Packet is a command with exactly PayloadSize bytes of data.
// It is a value type: copies never share the payload.
type Packet struct {
	cmd  Command
	data [PayloadSize]byte
}

// FromRaw creates a packet with the payload as-is.
func FromRaw(cmd Command, data [PayloadSize]byte) Packet {
	return Packet{cmd: cmd, data: data}
}

// FromString creates a packet carrying s, NUL padded.
// Strings longer than PayloadSize are rejected with *PacketLengthError.
func FromString(cmd Command, s string) (Packet, error) {
	if len(s) > PayloadSize {
		return Packet{}, &PacketLengthError{Kind: TooLong, Length: len(s), Expected: PayloadSize}
	}
	p := Packet{cmd: cmd}
	copy(p.data[:], s)
	return p, nil
}

// FromUint64 creates a packet with v encoded little-endian.
func FromUint64(cmd Command, v uint64) Packet {
	p := Packet{cmd: cmd}
	putMagnitude(&p.data, v)
	return p
}

// FromUint32 creates a packet with v encoded little-endian.
func FromUint32(cmd Command, v uint32) Packet {
	return FromUint64(cmd, uint64(v))
}

// FromInt64 creates a packet with the magnitude of v in the low 7 bytes
// and the sign flag in the last byte.
// Only magnitudes up to MaxSignedMagnitude survive the encoding.
func FromInt64(cmd Command, v int64) Packet {
	p := Packet{cmd: cmd}
	putSigned(&p.data, v)
	return p
}

// FromInt32 is FromInt64 for 32-bit values.
func FromInt32(cmd Command, v int32) Packet {
	return FromInt64(cmd, int64(v))
}

// FromFloat64 encodes v as fixed-point with FixedPointScale, truncated toward zero.
func FromFloat64(cmd Command, v float64) Packet {
	p := Packet{cmd: cmd}
	putSigned(&p.data, int64(math.Trunc(v*FixedPointScale)))
	if v < 0 {
		// -0.0001 truncates to 0 but still carries the negative flag.
		p.data[signIndex] = 0
	}
	return p
}

// ParsePacket decodes a wire frame. b must be exactly FrameSize bytes.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) != FrameSize {
		return Packet{}, &PacketLengthError{Kind: ExactMismatch, Length: len(b), Expected: FrameSize}
	}
	p := Packet{cmd: Command(b[0])}
	copy(p.data[:], b[1:])
	return p, nil
}

func putMagnitude(buf *[PayloadSize]byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func magnitude(buf [PayloadSize]byte) (v uint64) {
	for i := range buf {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return
}

func putSigned(buf *[PayloadSize]byte, v int64) {
	if v < 0 {
		putMagnitude(buf, uint64(-v))
		buf[signIndex] = 0
		return
	}
	putMagnitude(buf, uint64(v))
	buf[signIndex] = 1
}

// Command returns the command code.
func (p Packet) Command() Command {
	return p.cmd
}

// Payload returns a copy of the data bytes.
func (p Packet) Payload() [PayloadSize]byte {
	return p.data
}

// AsString returns the payload as characters. Trailing NULs are kept.
func (p Packet) AsString() string {
	return string(p.data[:])
}

// AsUint64 decodes the payload as an unsigned integer.
func (p Packet) AsUint64() uint64 {
	return magnitude(p.data)
}

// AsUint32 decodes the payload as an unsigned integer, keeping the low 32 bits.
func (p Packet) AsUint32() uint32 {
	return uint32(magnitude(p.data))
}

// AsInt64 decodes a signed payload: the last byte is the sign flag
// (1 non-negative, 0 negative) and the rest is the magnitude.
func (p Packet) AsInt64() int64 {
	data := p.data
	positive := data[signIndex] == 1
	data[signIndex] = 0
	v := int64(magnitude(data))
	if !positive {
		return -v
	}
	return v
}

// AsInt32 is AsInt64 truncated to 32 bits.
func (p Packet) AsInt32() int32 {
	data := p.data
	positive := data[signIndex] == 1
	data[signIndex] = 0
	v := int32(uint32(magnitude(data)))
	if !positive {
		return -v
	}
	return v
}

// AsFloat64 decodes a fixed-point payload.
func (p Packet) AsFloat64() float64 {
	return float64(p.AsInt64()) / FixedPointScale
}

// Bytes returns encoded bytes for sending.
func (p Packet) Bytes() []byte {
	b := make([]byte, FrameSize)
	b[0] = byte(p.cmd)
	copy(b[1:], p.data[:])
	return b
}

// WriteTo writes encoded bytes.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// Dump renders the packet for diagnostics, one line per byte.
func (p Packet) Dump() string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "packet %s (0x%02x)\n", p.cmd, byte(p.cmd))
	for i, b := range p.data {
		fmt.Fprintf(&w, "  [%d] 0x%02x %3d %q\n", i, b, b, rune(b))
	}
	return w.String()
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	return fmt.Sprintf("%s[% x]", p.cmd, p.data[:])
}

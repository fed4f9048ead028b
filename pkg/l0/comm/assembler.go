package comm

// Assembler collects bytes received from the wire into packets.
// The first byte of a frame is the command, the next PayloadSize bytes
// are the data, appended in arrival order.
type Assembler struct {
	state   assembleState
	packet  Packet
	recvLen int
}

type assembleState int

const (
	stateCommand assembleState = iota // waiting for command byte
	stateData                         // waiting for data bytes
)

// Receiving indicates a frame has been started but not completed.
func (a *Assembler) Receiving() bool {
	return a.state != stateCommand
}

// Received returns the number of bytes of the current frame received so far.
func (a *Assembler) Received() int {
	if a.state == stateCommand {
		return 0
	}
	return a.recvLen + 1
}

// Reset drops any partially received frame.
func (a *Assembler) Reset() {
	a.state, a.packet, a.recvLen = stateCommand, Packet{}, 0
}

// Parse consumes one byte and returns a packet when a frame is complete.
func (a *Assembler) Parse(b byte) (pkt Packet, ok bool) {
	switch a.state {
	case stateCommand:
		a.packet = Packet{cmd: Command(b)}
		a.recvLen = 0
		a.state = stateData
	case stateData:
		a.packet.data[a.recvLen] = b
		a.recvLen++
		if a.recvLen >= PayloadSize {
			pkt, ok = a.packet, true
			a.Reset()
		}
	}
	return
}

// Feed parses all bytes in p and returns the packets completed by them.
func (a *Assembler) Feed(p []byte) (pkts []Packet) {
	for _, b := range p {
		if pkt, ok := a.Parse(b); ok {
			pkts = append(pkts, pkt)
		}
	}
	return
}

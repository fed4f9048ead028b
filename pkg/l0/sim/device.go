// Package sim provides an in-memory scanner speaking the link protocol.
// It is used in place of a serial port by tests and by the -sim flag of
// the command line tools.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("sim: device closed")

// Responder produces the reply to a packet received by the device.
// Returning false keeps the device silent.
type Responder func(comm.Packet) (comm.Packet, bool)

// Device is a simulated scanner implementing comm.Transport.
type Device struct {
	// Respond replies to packets from the host. Defaults to Answer.
	Respond Responder
	// OpenErr, if set, fails the opener returned by Opener.
	OpenErr error

	lock        sync.Mutex
	changed     chan struct{}
	out         []byte
	asm         comm.Assembler
	received    []comm.Packet
	dropped     map[comm.Command]bool
	closed      bool
	readTimeout time.Duration
	opens       int
	reads       int
	writes      int
}

// NewDevice creates a Device answering with Answer.
func NewDevice() *Device {
	return &Device{
		Respond: Answer,
		changed: make(chan struct{}),
		dropped: make(map[comm.Command]bool),
	}
}

// Answer is the default firmware behavior: SYN, DISCON and PROBE get
// their acknowledgements, GET is echoed back as RSP, ACK is not answered
// and everything else is acknowledged with ACK.
func Answer(pkt comm.Packet) (comm.Packet, bool) {
	switch pkt.Command() {
	case comm.CmdSYN:
		return comm.FromUint64(comm.CmdSYNACK, 0), true
	case comm.CmdDISCON:
		return comm.FromUint64(comm.CmdDSCACK, 0), true
	case comm.CmdPROBE:
		return comm.FromUint64(comm.CmdPRBACK, 0), true
	case comm.CmdGET:
		return comm.FromRaw(comm.CmdRSP, pkt.Payload()), true
	case comm.CmdACK, comm.CmdNUL:
		return comm.Packet{}, false
	default:
		return comm.FromUint64(comm.CmdACK, 0), true
	}
}

// Silent never answers.
func Silent(comm.Packet) (comm.Packet, bool) {
	return comm.Packet{}, false
}

// Opener returns a comm.Opener which (re)opens this device.
func (d *Device) Opener() comm.Opener {
	return func(port string, baudRate int) (comm.Transport, error) {
		d.lock.Lock()
		defer d.lock.Unlock()
		if d.OpenErr != nil {
			return nil, d.OpenErr
		}
		d.opens++
		d.closed = false
		d.out = nil
		d.asm.Reset()
		glog.V(2).Infof("sim: open %s at %d baud", port, baudRate)
		return d, nil
	}
}

// Drop makes the device ignore packets with the given commands.
func (d *Device) Drop(cmds ...comm.Command) *Device {
	d.lock.Lock()
	for _, cmd := range cmds {
		d.dropped[cmd] = true
	}
	d.lock.Unlock()
	return d
}

// Inject queues raw bytes for the host to read.
func (d *Device) Inject(b ...byte) {
	d.lock.Lock()
	d.out = append(d.out, b...)
	d.broadcast()
	d.lock.Unlock()
}

// Emit queues a packet for the host to read.
func (d *Device) Emit(pkt comm.Packet) {
	d.Inject(pkt.Bytes()...)
}

// Received returns the packets written by the host so far.
func (d *Device) Received() []comm.Packet {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]comm.Packet(nil), d.received...)
}

// IsClosed indicates the transport was closed by the host.
func (d *Device) IsClosed() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.closed
}

// Opens returns how many times the device was opened.
func (d *Device) Opens() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.opens
}

// IOCount returns the number of Read and Write calls.
func (d *Device) IOCount() (reads, writes int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.reads, d.writes
}

// SetReadTimeout implements comm.ReadTimeoutSetter.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.lock.Lock()
	d.readTimeout = t
	d.lock.Unlock()
	return nil
}

// Read implements io.Reader. It blocks until a byte is queued, the read
// timeout expires (returning 0, nil) or the device is closed.
func (d *Device) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	d.lock.Lock()
	d.reads++
	var expire <-chan time.Time
	if d.readTimeout > 0 {
		timer := time.NewTimer(d.readTimeout)
		defer timer.Stop()
		expire = timer.C
	}
	for {
		if d.closed {
			d.lock.Unlock()
			return 0, ErrClosed
		}
		if len(d.out) > 0 {
			n := copy(p, d.out)
			d.out = d.out[n:]
			d.lock.Unlock()
			return n, nil
		}
		changed := d.changed
		d.lock.Unlock()
		select {
		case <-changed:
		case <-expire:
			return 0, nil
		}
		d.lock.Lock()
	}
}

// Write implements io.Writer. Complete packets are answered through Respond.
func (d *Device) Write(p []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.writes++
	if d.closed {
		return 0, ErrClosed
	}
	for _, pkt := range d.asm.Feed(p) {
		d.received = append(d.received, pkt)
		if d.dropped[pkt.Command()] {
			glog.V(2).Infof("sim: drop %s", pkt)
			continue
		}
		respond := d.Respond
		if respond == nil {
			respond = Answer
		}
		if rsp, ok := respond(pkt); ok {
			d.out = append(d.out, rsp.Bytes()...)
		}
	}
	d.broadcast()
	return len(p), nil
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.lock.Lock()
	d.closed = true
	d.broadcast()
	d.lock.Unlock()
	return nil
}

// broadcast wakes all blocked readers. Must be called with lock held.
func (d *Device) broadcast() {
	close(d.changed)
	d.changed = make(chan struct{})
}

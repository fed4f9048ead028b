// Package bridge relays packets between remote hosts and a local scanner.
//
// A remote host writes a 9-byte frame. Link control frames (SYN, ACK,
// DISCON, PROBE, their replies and NUL) are rejected. GET frames are forwarded as requests
// and answered with the scanner's RSP. Other frames are sent with the
// acknowledge convention and answered with ACK once the scanner acknowledged.
// Any failure is answered with a NUL frame whose payload carries an
// ErrorCode.
package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/scanlink/pkg/framework"
	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// ErrorCode is the payload of a NUL reply.
type ErrorCode uint64

// Error codes.
const (
	CodeFailure ErrorCode = iota + 1
	CodeInvalidFrame
	CodeNotConnected
	CodeTimeout
	CodeNotAcknowledged
	CodeRejected
)

// ErrLinkControl rejects frames which would drive the link itself.
var ErrLinkControl = errors.New("link control command not relayed")

// linkControl lists the commands owned by the local Conn. Relaying them
// would change the link behind its state machine.
var linkControl = map[comm.Command]bool{
	comm.CmdSYN:    true,
	comm.CmdSYNACK: true,
	comm.CmdACK:    true,
	comm.CmdDISCON: true,
	comm.CmdDSCACK: true,
	comm.CmdPROBE:  true,
	comm.CmdPRBACK: true,
	comm.CmdNUL:    true,
}

// CodeOf maps an error to its ErrorCode.
func CodeOf(err error) ErrorCode {
	var lenErr *comm.PacketLengthError
	switch {
	case errors.As(err, &lenErr):
		return CodeInvalidFrame
	case errors.Is(err, ErrLinkControl):
		return CodeRejected
	case errors.Is(err, comm.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, comm.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, comm.ErrNotAcknowledged):
		return CodeNotAcknowledged
	default:
		return CodeFailure
	}
}

// NulReply builds the failure reply for err.
func NulReply(err error) comm.Packet {
	return comm.FromUint64(comm.CmdNUL, uint64(CodeOf(err)))
}

// Bridge serves one PacketReadWriter.
type Bridge struct {
	Device     Device
	ReadWriter PacketReadWriter

	lastState comm.ConnectionState
	reported  bool
}

// New creates a Bridge.
func New(dev Device, rw PacketReadWriter) *Bridge {
	return &Bridge{Device: dev, ReadWriter: rw}
}

// Handle relays a single frame and returns the reply.
func (b *Bridge) Handle(frame []byte) comm.Packet {
	pkt, err := comm.ParsePacket(frame)
	if err != nil {
		glog.Warningf("bridge: %v", err)
		return NulReply(err)
	}
	if linkControl[pkt.Command()] {
		glog.Warningf("bridge: reject %s", pkt)
		return NulReply(ErrLinkControl)
	}
	glog.V(2).Infof("bridge: relay %s", pkt)
	if pkt.Command() == comm.CmdGET {
		rsp, err := b.Device.Request(pkt)
		if err != nil {
			glog.Warningf("bridge: request %s: %v", pkt, err)
			return NulReply(err)
		}
		return rsp
	}
	if err := b.Device.Send(pkt); err != nil {
		glog.Warningf("bridge: send %s: %v", pkt, err)
		return NulReply(err)
	}
	return comm.FromUint64(comm.CmdACK, 0)
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if closer, ok := b.ReadWriter.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, b.serve)
	}
	return fx.RunWithContext(ctx, b.serve)
}

func (b *Bridge) serve() error {
	b.reportState()
	for {
		frame, err := b.ReadWriter.ReadPacket()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		rsp := b.Handle(frame)
		if err := b.ReadWriter.WritePacket(rsp.Bytes()); err != nil {
			return err
		}
		b.reportState()
	}
}

// reportState publishes the device state when it changed. A failed
// publish is retried after the next frame.
func (b *Bridge) reportState() {
	sw, ok := b.ReadWriter.(StateWriter)
	if !ok {
		return
	}
	state := b.Device.State()
	if b.reported && state == b.lastState {
		return
	}
	if err := sw.WriteState(state); err != nil {
		glog.Warningf("bridge: publish state %s: %v", state, err)
		return
	}
	b.lastState, b.reported = state, true
}

package bridge

import (
	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// PacketReader reads raw frames.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes raw frames.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes raw frames.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// StateWriter is optionally implemented by a PacketReadWriter which
// publishes connection state changes to its peers.
type StateWriter interface {
	WriteState(comm.ConnectionState) error
}

// Device is the scanner side of a Bridge, usually a *comm.Conn.
type Device interface {
	Send(comm.Packet) error
	Request(comm.Packet) (comm.Packet, error)
	State() comm.ConnectionState
}

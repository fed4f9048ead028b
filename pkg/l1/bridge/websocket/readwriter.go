// Package websocket carries frames as binary websocket messages.
package websocket

import (
	"github.com/robotalks/scanlink/pkg/l0/comm"
	"golang.org/x/net/websocket"
)

// ReadWriter implements PacketReadWriter.
// Each binary message is exactly one frame.
type ReadWriter struct {
	Conn *websocket.Conn
}

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	conn.PayloadType = websocket.BinaryFrame
	return &ReadWriter{Conn: conn}
}

// ReadPacket implements PacketReader.
// Messages of the wrong size are returned as they are; the bridge replies
// to them with an invalid frame error.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive(p.Conn, &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) != comm.FrameSize {
		return &comm.PacketLengthError{Kind: comm.ExactMismatch, Length: len(pkt), Expected: comm.FrameSize}
	}
	return websocket.Message.Send(p.Conn, pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return p.Conn.Close()
}

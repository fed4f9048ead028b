// Package stream carries frames over byte streams such as TCP connections.
package stream

import (
	"io"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// ReadWriter implements PacketReadWriter.
// Frames are sent back-to-back without length prefix, the same way they
// travel over the serial link.
type ReadWriter struct {
	io.ReadWriter
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{s}
}

// ReadPacket implements PacketReader.
// A stream ending in the middle of a frame reports io.ErrUnexpectedEOF.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	pkt := make([]byte, comm.FrameSize)
	if _, err := io.ReadFull(p, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) != comm.FrameSize {
		return &comm.PacketLengthError{Kind: comm.ExactMismatch, Length: len(pkt), Expected: comm.FrameSize}
	}
	_, err := p.Write(pkt)
	return err
}

// Close implements io.Closer if the underlying stream is closable.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

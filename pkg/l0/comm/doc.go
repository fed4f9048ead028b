// Package comm provides the host side of the scanner link.
package comm

// The link carries fixed size packets between the host and the scanner
// firmware over a serial port: one command byte followed by PayloadSize data
// bytes, with no framing, length prefix or checksum. Integrity relies on the
// request/acknowledge convention: every packet the host sends through Send is
// answered with ACK, and every exchange is bounded by a timeout.
//
// A Conn owns the Transport and walks the handshake/teardown state machine.
// Each receive spawns its own reader goroutine which hands bytes over through
// a single slot channel, so a byte is never overwritten before it is consumed.
//
// Producer: scanner firmware
// Consumer: host controller

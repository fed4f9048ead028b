package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates the operation requires a connected link.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Open on a connected link.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrUnsupportedBaudRate indicates the baud rate is not a standard rate.
	ErrUnsupportedBaudRate = errors.New("unsupported baud rate")
	// ErrTimeout indicates no complete packet arrived in time.
	ErrTimeout = errors.New("receive timeout")
	// ErrNotAcknowledged indicates the peer did not reply with the expected
	// acknowledgement.
	ErrNotAcknowledged = errors.New("not acknowledged")
	// ErrHandshake indicates the SYN/SYNACK/ACK exchange failed.
	ErrHandshake = errors.New("handshake failed")
	// ErrNoTransport indicates the connection has no transport to talk over.
	ErrNoTransport = errors.New("transport not open")
)

// LengthErrorKind classifies a PacketLengthError.
type LengthErrorKind int

// Length error kinds.
const (
	TooLong LengthErrorKind = iota
	TooShort
	ExactMismatch
)

// PacketLengthError reports data that does not fit a packet.
type PacketLengthError struct {
	Kind     LengthErrorKind
	Length   int
	Expected int
}

// Error implements error.
func (e *PacketLengthError) Error() string {
	return lengthErrorMessage(e.Kind, e.Length, e.Expected)
}

func lengthErrorMessage(kind LengthErrorKind, length, expected int) string {
	switch kind {
	case TooLong:
		return fmt.Sprintf("expected packet data of at most %d bytes, got %d", expected, length)
	case TooShort:
		return fmt.Sprintf("expected packet data of at least %d bytes, got %d", expected, length)
	case ExactMismatch:
		return fmt.Sprintf("expected packet data of exactly %d bytes, got %d", expected, length)
	default:
		return fmt.Sprintf("packet length error with unknown kind %d (expected=%d, length=%d)",
			int(kind), expected, length)
	}
}

// ReplyError reports a reply with an unexpected command.
type ReplyError struct {
	Expected Command
	Got      Command
}

// Error implements error.
func (e *ReplyError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Got)
}

// Unwrap lets errors.Is match ErrNotAcknowledged.
func (e *ReplyError) Unwrap() error {
	return ErrNotAcknowledged
}

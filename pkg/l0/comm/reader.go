package comm

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Transport is the byte stream to the scanner, usually a serial port.
// Read is expected to block until at least one byte is available.
type Transport interface {
	io.ReadWriteCloser
}

// ReadTimeoutSetter is implemented by transports which can bound Read.
// A Read that hits the timeout returns 0 bytes and no error.
type ReadTimeoutSetter interface {
	SetReadTimeout(time.Duration) error
}

// Opener opens a transport at the given port and baud rate,
// configured for 8 data bits and no parity.
type Opener func(port string, baudRate int) (Transport, error)

// ReadSlice is the read timeout installed on transports implementing
// ReadTimeoutSetter. A released reader notices within one slice.
const ReadSlice = 10 * time.Millisecond

// readerHandle is shared by one receive and its reader goroutine.
// Bytes flow through a single slot channel: the reader cannot read
// ahead more than one byte of what the receiver consumed.
type readerHandle struct {
	bytes  chan byte
	errs   chan error
	cancel context.CancelFunc

	released int32
	retired  chan struct{}
	onRetire func()
}

func newReaderHandle(cancel context.CancelFunc, onRetire func()) *readerHandle {
	return &readerHandle{
		bytes:    make(chan byte, 1),
		errs:     make(chan error, 1),
		cancel:   cancel,
		retired:  make(chan struct{}),
		onRetire: onRetire,
	}
}

// release is called once by each party when it is done with the handle.
// The second caller retires the handle.
func (h *readerHandle) release() {
	if atomic.AddInt32(&h.released, 1) == 2 {
		close(h.retired)
		if h.onRetire != nil {
			h.onRetire()
		}
	}
}

// stop is called by the receiving side. It cancels the reader and
// gives up the receiver's share of the handle.
func (h *readerHandle) stop() {
	h.cancel()
	h.release()
}

// isRetired indicates both parties released the handle.
func (h *readerHandle) isRetired() bool {
	return atomic.LoadInt32(&h.released) >= 2
}

// run reads one byte at a time until limit bytes are delivered, the
// handle is cancelled or the transport fails. Without read timeouts on
// the transport a cancelled reader stays blocked in Read until a byte
// arrives or the transport is closed. A byte read after cancellation is
// handed to carry, so the next receive starts with it.
func (h *readerHandle) run(ctx context.Context, r io.Reader, limit int, carry chan<- byte, trace LogFunc) {
	defer h.release()
	buf := make([]byte, 1)
	for delivered := 0; delivered < limit; {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			h.errs <- err
			return
		}
		if n == 0 {
			// read slice expired
			continue
		}
		if ctx.Err() != nil {
			h.handOver(buf[0], carry, trace)
			return
		}
		select {
		case h.bytes <- buf[0]:
			delivered++
		case <-ctx.Done():
			h.handOver(buf[0], carry, trace)
			return
		}
	}
}

func (h *readerHandle) handOver(b byte, carry chan<- byte, trace LogFunc) {
	select {
	case carry <- b:
		trace("reader: carry 0x%02x read after release", b)
	default:
		trace("reader: drop 0x%02x read after release", b)
	}
}

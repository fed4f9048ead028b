package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// LogFunc receives wire traces from a Conn.
type LogFunc func(format string, args ...interface{})

// TraceVerbosity is the glog level the default trace hook logs at.
const TraceVerbosity = 3

func glogTrace(format string, args ...interface{}) {
	glog.V(TraceVerbosity).Infof(format, args...)
}

func noTrace(string, ...interface{}) {}

// Conn is a connection to the scanner.
// Operations are serialized: there is at most one exchange in flight.
type Conn struct {
	// Trace receives wire level traces. It defaults to glog at
	// TraceVerbosity. Set it before the Conn is shared, afterwards use
	// SetTrace.
	Trace LogFunc

	config Config
	opener Opener

	lock      sync.Mutex
	transport Transport
	last      *readerHandle
	carry     chan byte
	readers   int32

	state     ConnectionState
	stateLock sync.RWMutex
}

// NewConn creates a Conn in StateDisconnected.
// The config is taken as-is; use Config.Valid to apply defaults.
func NewConn(config Config, opener Opener) *Conn {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Conn{
		Trace:  glogTrace,
		config: config,
		opener: opener,
		carry:  make(chan byte, 1),
	}
}

// SetTrace replaces Trace. It waits for the exchange in flight.
func (c *Conn) SetTrace(fn LogFunc) {
	c.lock.Lock()
	c.Trace = fn
	c.lock.Unlock()
}

// Port returns the configured port name.
func (c *Conn) Port() string {
	return c.config.Port
}

// BaudRate returns the configured baud rate.
func (c *Conn) BaudRate() int {
	return c.config.BaudRate
}

// Timeout returns the per-byte receive timeout used by every exchange.
func (c *Conn) Timeout() time.Duration {
	return c.config.Timeout
}

// State gets the connection state.
func (c *Conn) State() ConnectionState {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state
}

// ActiveReaders returns the number of reader goroutines not yet retired.
func (c *Conn) ActiveReaders() int {
	return int(atomic.LoadInt32(&c.readers))
}

func (c *Conn) setState(state ConnectionState) {
	c.stateLock.Lock()
	old := c.state
	c.state = state
	c.stateLock.Unlock()
	if old != state {
		c.trace("state %s -> %s", old, state)
	}
}

func (c *Conn) trace(format string, args ...interface{}) {
	if fn := c.Trace; fn != nil {
		fn(format, args...)
	}
}

// Open opens the transport and performs the SYN/SYNACK/ACK handshake.
// If the transport cannot be opened the state is StateDisconnected; if the
// handshake fails it is StateError.
func (c *Conn) Open() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.State() == StateConnected {
		return ErrAlreadyConnected
	}
	if err := c.openTransport(); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	if err := c.handshake(); err != nil {
		c.setState(StateError)
		return err
	}
	c.setState(StateConnected)
	return nil
}

// Close performs the DISCON/DSCACK teardown and closes the transport.
// When the peer does not acknowledge, the transport is closed anyway if force
// is set and the state becomes StateForcedClosed; otherwise the transport
// stays open and the state becomes StateError.
func (c *Conn) Close(force bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.transport == nil {
		return ErrNotConnected
	}
	err := c.exchange(FromUint64(CmdDISCON, 0), CmdDSCACK)
	if err == nil {
		closeErr := c.closeTransport()
		c.setState(StateDisconnected)
		return closeErr
	}
	if force {
		if closeErr := c.closeTransport(); closeErr != nil {
			c.trace("close transport: %v", closeErr)
		}
		c.setState(StateForcedClosed)
		return fmt.Errorf("forced close: %w", err)
	}
	c.setState(StateError)
	return fmt.Errorf("close: %w", err)
}

// Send writes a packet and waits for the peer's ACK.
// Nothing is retried: an unacknowledged packet is reported to the caller.
func (c *Conn) Send(pkt Packet) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.exchange(pkt, CmdACK)
}

// Get waits for one packet. timeout bounds the wait for each byte;
// zero or negative uses the configured timeout.
// On error the returned packet is empty: bytes of a partial frame are
// never exposed.
func (c *Conn) Get(timeout time.Duration) (Packet, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.State() != StateConnected {
		return Packet{}, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	return c.receive(timeout)
}

// Request writes a data request, usually GET, and returns the RSP
// reply. The request itself is not acknowledged with ACK.
func (c *Conn) Request(pkt Packet) (Packet, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.State() != StateConnected {
		return Packet{}, ErrNotConnected
	}
	if err := c.write(pkt); err != nil {
		return Packet{}, err
	}
	rsp, err := c.receive(c.config.Timeout)
	if err != nil {
		return Packet{}, err
	}
	if rsp.Command() != CmdRSP {
		return Packet{}, &ReplyError{Expected: CmdRSP, Got: rsp.Command()}
	}
	return rsp, nil
}

// Probe checks whether a compatible device answers on the port with
// PROBE/PRBACK. The transport is closed again and the state is unchanged.
// Probe is only allowed while no transport is open.
func (c *Conn) Probe() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.transport != nil {
		return ErrAlreadyConnected
	}
	if err := c.openTransport(); err != nil {
		return err
	}
	err := c.exchange(FromUint64(CmdPROBE, 0), CmdPRBACK)
	if closeErr := c.closeTransport(); err == nil {
		err = closeErr
	}
	return err
}

func (c *Conn) openTransport() error {
	if !IsStandardBaudRate(c.config.BaudRate) {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, c.config.BaudRate)
	}
	if c.transport != nil {
		// left open by a failed handshake or an unforced close
		if err := c.closeTransport(); err != nil {
			c.trace("close stale transport: %v", err)
		}
	}
	t, err := c.opener(c.config.Port, c.config.BaudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.config.Port, err)
	}
	if s, ok := t.(ReadTimeoutSetter); ok {
		if err := s.SetReadTimeout(ReadSlice); err != nil {
			t.Close()
			return fmt.Errorf("set read timeout on %s: %w", c.config.Port, err)
		}
	}
	c.transport = t
	c.dropCarry()
	c.trace("opened %s at %d baud", c.config.Port, c.config.BaudRate)
	return nil
}

func (c *Conn) closeTransport() error {
	t := c.transport
	c.transport = nil
	if t == nil {
		return nil
	}
	c.trace("closing %s", c.config.Port)
	return t.Close()
}

func (c *Conn) handshake() error {
	rsp, err := c.roundTrip(FromUint64(CmdSYN, 0))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if rsp.Command() != CmdSYNACK {
		return fmt.Errorf("%w: %v", ErrHandshake, &ReplyError{Expected: CmdSYNACK, Got: rsp.Command()})
	}
	if err := c.write(FromUint64(CmdACK, 0)); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	c.trace("handshake complete")
	return nil
}

// exchange writes pkt and expects a reply with command expect.
func (c *Conn) exchange(pkt Packet, expect Command) error {
	rsp, err := c.roundTrip(pkt)
	if err != nil {
		return err
	}
	if rsp.Command() != expect {
		return &ReplyError{Expected: expect, Got: rsp.Command()}
	}
	return nil
}

func (c *Conn) roundTrip(pkt Packet) (Packet, error) {
	if err := c.write(pkt); err != nil {
		return Packet{}, err
	}
	return c.receive(c.config.Timeout)
}

func (c *Conn) write(pkt Packet) error {
	if c.transport == nil {
		return ErrNoTransport
	}
	c.trace("send %s", pkt)
	if _, err := pkt.WriteTo(c.transport); err != nil {
		return fmt.Errorf("write %s: %w", pkt.Command(), err)
	}
	return nil
}

// dropCarry discards a byte carried over from the previous transport.
func (c *Conn) dropCarry() {
	select {
	case b := <-c.carry:
		c.trace("drop carried 0x%02x", b)
	default:
	}
}

func (c *Conn) receive(timeout time.Duration) (Packet, error) {
	if c.transport == nil {
		return Packet{}, ErrNoTransport
	}
	trace := c.Trace
	if trace == nil {
		trace = noTrace
	}

	var deadline <-chan time.Time
	if d := c.config.FrameDeadline; d > 0 {
		frameTimer := time.NewTimer(d)
		defer frameTimer.Stop()
		deadline = frameTimer.C
	}

	var asm Assembler
	byteTimer := time.NewTimer(timeout)
	defer byteTimer.Stop()
	timeoutErr := func() error {
		trace("timeout after %d of %d bytes", asm.Received(), FrameSize)
		return fmt.Errorf("%w: %d of %d bytes in %v", ErrTimeout, asm.Received(), FrameSize, timeout)
	}
	deadlineErr := func() error {
		trace("frame deadline after %d of %d bytes", asm.Received(), FrameSize)
		return fmt.Errorf("%w: frame deadline %v", ErrTimeout, c.config.FrameDeadline)
	}

	// a reader still blocked from an earlier receive owns the next byte:
	// it hands it over through carry when it retires.
	if h := c.last; h != nil && !h.isRetired() {
		select {
		case <-h.retired:
		case <-byteTimer.C:
			return Packet{}, timeoutErr()
		case <-deadline:
			return Packet{}, deadlineErr()
		}
	}
	select {
	case b := <-c.carry:
		trace("resume with carried 0x%02x", b)
		asm.Parse(b)
		byteTimer.Reset(timeout)
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newReaderHandle(cancel, func() {
		atomic.AddInt32(&c.readers, -1)
		trace("reader retired")
	})
	atomic.AddInt32(&c.readers, 1)
	c.last = h
	go h.run(ctx, c.transport, FrameSize-asm.Received(), c.carry, trace)
	defer h.stop()

	for {
		select {
		case b := <-h.bytes:
			if pkt, ok := asm.Parse(b); ok {
				trace("recv %s", pkt)
				return pkt, nil
			}
			byteTimer.Reset(timeout)
		case err := <-h.errs:
			return Packet{}, fmt.Errorf("read %s: %w", c.config.Port, err)
		case <-byteTimer.C:
			return Packet{}, timeoutErr()
		case <-deadline:
			return Packet{}, deadlineErr()
		}
	}
}

// IsTimeout indicates err was caused by a receive timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

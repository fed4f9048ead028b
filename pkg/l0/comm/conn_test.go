package comm_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/sim"
)

const testTimeout = 50 * time.Millisecond

type connTestEnv struct {
	t      *testing.T
	device *sim.Device
	conn   *comm.Conn
}

func newConnTestEnv(t *testing.T) *connTestEnv {
	env := &connTestEnv{t: t, device: sim.NewDevice()}
	env.conn = comm.NewConn(comm.Config{
		Port:     "sim0",
		BaudRate: 115200,
		Timeout:  testTimeout,
	}, env.device.Opener())
	return env
}

func (e *connTestEnv) open() *connTestEnv {
	require.NoError(e.t, e.conn.Open())
	require.Equal(e.t, comm.StateConnected, e.conn.State())
	return e
}

func (e *connTestEnv) commands() []comm.Command {
	var cmds []comm.Command
	for _, pkt := range e.device.Received() {
		cmds = append(cmds, pkt.Command())
	}
	return cmds
}

func (e *connTestEnv) waitReadersRetired() {
	deadline := time.Now().Add(time.Second)
	for e.conn.ActiveReaders() > 0 {
		if time.Now().After(deadline) {
			e.t.Fatalf("%d readers not retired", e.conn.ActiveReaders())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandshake(t *testing.T) {
	env := newConnTestEnv(t).open()
	require.Equal(t, []comm.Command{comm.CmdSYN, comm.CmdACK}, env.commands())
	require.Equal(t, 1, env.device.Opens())
	require.ErrorIs(t, env.conn.Open(), comm.ErrAlreadyConnected)
	require.Equal(t, 1, env.device.Opens())
	env.waitReadersRetired()
}

func TestHandshakeTimeout(t *testing.T) {
	env := newConnTestEnv(t)
	env.device.Respond = sim.Silent
	start := time.Now()
	err := env.conn.Open()
	elapsed := time.Since(start)
	require.ErrorIs(t, err, comm.ErrHandshake)
	require.Equal(t, comm.StateError, env.conn.State())
	require.True(t, elapsed >= testTimeout, "returned after %v", elapsed)
	require.True(t, elapsed < 10*testTimeout, "returned after %v", elapsed)
	env.waitReadersRetired()

	// a failed handshake leaves the link unusable until opened again
	require.ErrorIs(t, env.conn.Send(comm.FromUint64(comm.CmdSET, 1)), comm.ErrNotConnected)
	env.device.Respond = sim.Answer
	require.NoError(t, env.conn.Open())
	require.Equal(t, 2, env.device.Opens())
}

func TestHandshakeWrongReply(t *testing.T) {
	env := newConnTestEnv(t)
	env.device.Respond = func(comm.Packet) (comm.Packet, bool) {
		return comm.FromUint64(comm.CmdRSP, 0), true
	}
	require.ErrorIs(t, env.conn.Open(), comm.ErrHandshake)
	require.Equal(t, comm.StateError, env.conn.State())
}

func TestOpenFailures(t *testing.T) {
	env := newConnTestEnv(t)
	env.device.OpenErr = errors.New("no such port")
	require.Error(t, env.conn.Open())
	require.Equal(t, comm.StateDisconnected, env.conn.State())

	device := sim.NewDevice()
	conn := comm.NewConn(comm.Config{Port: "sim0", BaudRate: 12345, Timeout: testTimeout}, device.Opener())
	require.ErrorIs(t, conn.Open(), comm.ErrUnsupportedBaudRate)
	require.Equal(t, comm.StateDisconnected, conn.State())
	require.Equal(t, 0, device.Opens())
}

func TestGuardedOperations(t *testing.T) {
	env := newConnTestEnv(t)
	require.ErrorIs(t, env.conn.Send(comm.FromUint64(comm.CmdSET, 1)), comm.ErrNotConnected)
	_, err := env.conn.Get(testTimeout)
	require.ErrorIs(t, err, comm.ErrNotConnected)
	_, err = env.conn.Request(comm.FromUint64(comm.CmdGET, 1))
	require.ErrorIs(t, err, comm.ErrNotConnected)
	require.ErrorIs(t, env.conn.Close(false), comm.ErrNotConnected)
	reads, writes := env.device.IOCount()
	require.Zero(t, reads)
	require.Zero(t, writes)
	require.Equal(t, 0, env.conn.ActiveReaders())
}

func TestSend(t *testing.T) {
	env := newConnTestEnv(t).open()
	pkt := comm.FromFloat64(comm.CmdSET, 2.5)
	require.NoError(t, env.conn.Send(pkt))
	received := env.device.Received()
	require.Equal(t, pkt, received[len(received)-1])
}

func TestSendNotAcknowledged(t *testing.T) {
	env := newConnTestEnv(t).open()
	env.device.Drop(comm.CmdSET)
	err := env.conn.Send(comm.FromUint64(comm.CmdSET, 1))
	require.ErrorIs(t, err, comm.ErrTimeout)
	require.Equal(t, comm.StateConnected, env.conn.State())

	env.device.Respond = func(comm.Packet) (comm.Packet, bool) {
		return comm.FromUint64(comm.CmdRSP, 0), true
	}
	err = env.conn.Send(comm.FromUint64(comm.CmdGET, 1))
	require.ErrorIs(t, err, comm.ErrNotAcknowledged)
	var replyErr *comm.ReplyError
	require.True(t, errors.As(err, &replyErr))
	require.Equal(t, comm.CmdRSP, replyErr.Got)

	// no automatic retry
	var sets int
	for _, pkt := range env.device.Received() {
		if pkt.Command() == comm.CmdSET {
			sets++
		}
	}
	require.Equal(t, 1, sets)
}

func TestGetByteOrder(t *testing.T) {
	env := newConnTestEnv(t).open()
	frame := []byte{byte(comm.CmdRSP), 0xb0, 0xb1, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7}
	go func() {
		for _, b := range frame {
			time.Sleep(2 * time.Millisecond)
			env.device.Inject(b)
		}
	}()
	pkt, err := env.conn.Get(testTimeout)
	require.NoError(t, err)
	require.Equal(t, comm.CmdRSP, pkt.Command())
	require.Equal(t, [comm.PayloadSize]byte{0xb0, 0xb1, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7}, pkt.Payload())
}

func TestGetPerByteTimeout(t *testing.T) {
	env := newConnTestEnv(t).open()
	// each gap is below the timeout while the frame takes longer
	go func() {
		for _, b := range comm.FromUint64(comm.CmdRSP, 9).Bytes() {
			time.Sleep(testTimeout / 5)
			env.device.Inject(b)
		}
	}()
	pkt, err := env.conn.Get(testTimeout)
	require.NoError(t, err)
	require.Equal(t, uint64(9), pkt.AsUint64())
}

func TestGetPartialFrame(t *testing.T) {
	env := newConnTestEnv(t).open()
	env.device.Inject(byte(comm.CmdRSP), 1, 2, 3)
	pkt, err := env.conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))
	require.Equal(t, comm.Packet{}, pkt)
	require.Equal(t, comm.StateConnected, env.conn.State())
	env.waitReadersRetired()
}

func TestFrameDeadline(t *testing.T) {
	device := sim.NewDevice()
	conn := comm.NewConn(comm.Config{
		Port:          "sim0",
		BaudRate:      9600,
		Timeout:       testTimeout,
		FrameDeadline: testTimeout,
	}, device.Opener())
	require.NoError(t, conn.Open())
	go func() {
		for _, b := range comm.FromUint64(comm.CmdRSP, 9).Bytes() {
			time.Sleep(testTimeout / 4)
			device.Inject(b)
		}
	}()
	_, err := conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))
}

func TestRequest(t *testing.T) {
	env := newConnTestEnv(t).open()
	rsp, err := env.conn.Request(comm.FromInt64(comm.CmdGET, -7))
	require.NoError(t, err)
	require.Equal(t, comm.CmdRSP, rsp.Command())
	require.Equal(t, int64(-7), rsp.AsInt64())

	env.device.Respond = func(comm.Packet) (comm.Packet, bool) {
		return comm.FromUint64(comm.CmdACK, 0), true
	}
	_, err = env.conn.Request(comm.FromUint64(comm.CmdGET, 1))
	var replyErr *comm.ReplyError
	require.True(t, errors.As(err, &replyErr))
	require.Equal(t, comm.CmdRSP, replyErr.Expected)
}

func TestClose(t *testing.T) {
	env := newConnTestEnv(t).open()
	require.NoError(t, env.conn.Close(false))
	require.Equal(t, comm.StateDisconnected, env.conn.State())
	require.True(t, env.device.IsClosed())
	require.Equal(t, comm.CmdDISCON, env.commands()[2])
	require.ErrorIs(t, env.conn.Close(false), comm.ErrNotConnected)
}

func TestForcedClose(t *testing.T) {
	env := newConnTestEnv(t).open()
	env.device.Drop(comm.CmdDISCON)

	require.ErrorIs(t, env.conn.Close(false), comm.ErrTimeout)
	require.False(t, env.device.IsClosed())
	require.Equal(t, comm.StateError, env.conn.State())

	require.ErrorIs(t, env.conn.Close(true), comm.ErrTimeout)
	require.True(t, env.device.IsClosed())
	require.Equal(t, comm.StateForcedClosed, env.conn.State())
	env.waitReadersRetired()

	// a forced close can be followed by a fresh open
	env.device.Respond = sim.Answer
	require.NoError(t, env.conn.Open())
}

func TestProbe(t *testing.T) {
	env := newConnTestEnv(t)
	require.NoError(t, env.conn.Probe())
	require.True(t, env.device.IsClosed())
	require.Equal(t, comm.StateDisconnected, env.conn.State())
	require.Equal(t, []comm.Command{comm.CmdPROBE}, env.commands())

	env.device.Drop(comm.CmdPROBE)
	require.ErrorIs(t, env.conn.Probe(), comm.ErrTimeout)
	require.True(t, env.device.IsClosed())

	env.device.Respond = sim.Answer
	env.open()
	require.ErrorIs(t, env.conn.Probe(), comm.ErrAlreadyConnected)
}

// blockingTransport hides SetReadTimeout so reads block without limit.
type blockingTransport struct {
	io.ReadWriteCloser
}

func blockingOpener(device *sim.Device) comm.Opener {
	return func(port string, baudRate int) (comm.Transport, error) {
		tr, err := device.Opener()(port, baudRate)
		if err != nil {
			return nil, err
		}
		return &blockingTransport{tr}, nil
	}
}

func TestReaderBlockedWithoutReadTimeout(t *testing.T) {
	device := sim.NewDevice()
	conn := comm.NewConn(comm.Config{Port: "sim0", BaudRate: 9600, Timeout: testTimeout}, blockingOpener(device))
	require.NoError(t, conn.Open())

	// the handshake reader stops after a complete frame
	deadline := time.Now().Add(time.Second)
	for conn.ActiveReaders() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, conn.ActiveReaders())

	_, err := conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))
	// the reader cannot be interrupted inside Read
	time.Sleep(testTimeout)
	require.Equal(t, 1, conn.ActiveReaders())

	// closing the transport unblocks it
	conn.Close(true)
	require.True(t, device.IsClosed())
	deadline = time.Now().Add(time.Second)
	for conn.ActiveReaders() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, conn.ActiveReaders())
}

func TestReplyAfterBlockedReader(t *testing.T) {
	device := sim.NewDevice()
	conn := comm.NewConn(comm.Config{Port: "sim0", BaudRate: 9600, Timeout: testTimeout}, blockingOpener(device))
	require.NoError(t, conn.Open())

	_, err := conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))
	require.Equal(t, 1, conn.ActiveReaders())

	// the blocked reader takes the first byte of the ACK and hands it over
	require.NoError(t, conn.Send(comm.FromUint64(comm.CmdSET, 3)))
	rsp, err := conn.Request(comm.FromInt64(comm.CmdGET, -4))
	require.NoError(t, err)
	require.Equal(t, int64(-4), rsp.AsInt64())

	var sets int
	for _, pkt := range device.Received() {
		if pkt.Command() == comm.CmdSET {
			sets++
		}
	}
	require.Equal(t, 1, sets)

	deadline := time.Now().Add(time.Second)
	for conn.ActiveReaders() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, conn.ActiveReaders())
	require.NoError(t, conn.Close(false))
}

func TestBlockedReaderNoReply(t *testing.T) {
	device := sim.NewDevice()
	conn := comm.NewConn(comm.Config{Port: "sim0", BaudRate: 9600, Timeout: testTimeout}, blockingOpener(device))
	require.NoError(t, conn.Open())
	_, err := conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))

	// still nothing arrives: the next receive times out without a second reader
	_, err = conn.Get(testTimeout)
	require.True(t, comm.IsTimeout(err))
	require.Equal(t, 1, conn.ActiveReaders())

	device.Emit(comm.FromUint64(comm.CmdRSP, 11))
	pkt, err := conn.Get(testTimeout)
	require.NoError(t, err)
	require.Equal(t, uint64(11), pkt.AsUint64())
	conn.Close(true)
}

func TestSetTraceDuringExchange(t *testing.T) {
	env := newConnTestEnv(t).open()
	traces := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.conn.Get(testTimeout)
	}()
	env.conn.SetTrace(func(format string, args ...interface{}) {
		select {
		case traces <- format:
		default:
		}
	})
	<-done
	require.NoError(t, env.conn.Send(comm.FromUint64(comm.CmdSET, 1)))
	require.NotEmpty(t, traces)
	env.waitReadersRetired()
	env.conn.SetTrace(nil)
}

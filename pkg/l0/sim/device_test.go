package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

func readFrame(t *testing.T, d *Device) comm.Packet {
	var asm comm.Assembler
	buf := make([]byte, 1)
	for {
		n, err := d.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		if pkt, ok := asm.Parse(buf[0]); ok {
			return pkt
		}
	}
}

func TestDeviceAnswers(t *testing.T) {
	d := NewDevice()
	tr, err := d.Opener()("sim0", 9600)
	require.NoError(t, err)
	require.Equal(t, d, tr)

	testCases := []struct {
		req    comm.Packet
		expect comm.Command
	}{
		{comm.FromUint64(comm.CmdSYN, 0), comm.CmdSYNACK},
		{comm.FromUint64(comm.CmdDISCON, 0), comm.CmdDSCACK},
		{comm.FromUint64(comm.CmdPROBE, 0), comm.CmdPRBACK},
		{comm.FromUint64(comm.CmdGET, 3), comm.CmdRSP},
		{comm.FromUint64(comm.CmdSET, 3), comm.CmdACK},
	}
	for _, tc := range testCases {
		t.Run(tc.req.Command().String(), func(t *testing.T) {
			_, err := tc.req.WriteTo(d)
			require.NoError(t, err)
			rsp := readFrame(t, d)
			require.Equal(t, tc.expect, rsp.Command())
		})
	}
	require.Len(t, d.Received(), len(testCases))
}

func TestDeviceNoReplyToACK(t *testing.T) {
	d := NewDevice()
	require.NoError(t, d.SetReadTimeout(5*time.Millisecond))
	_, err := comm.FromUint64(comm.CmdACK, 0).WriteTo(d)
	require.NoError(t, err)
	n, err := d.Read(make([]byte, 1))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDeviceDropAndInject(t *testing.T) {
	d := NewDevice().Drop(comm.CmdSET)
	require.NoError(t, d.SetReadTimeout(5*time.Millisecond))
	_, err := comm.FromUint64(comm.CmdSET, 0).WriteTo(d)
	require.NoError(t, err)
	n, err := d.Read(make([]byte, 1))
	require.NoError(t, err)
	require.Zero(t, n)

	d.Emit(comm.FromInt64(comm.CmdRSP, -3))
	require.Equal(t, int64(-3), readFrame(t, d).AsInt64())
}

func TestDeviceCloseUnblocksRead(t *testing.T) {
	d := NewDevice()
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Read(make([]byte, 1))
		errCh <- err
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, d.Close())
	select {
	case err := <-errCh:
		require.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatal("read not unblocked")
	}
	require.True(t, d.IsClosed())
	_, err := d.Write([]byte{0})
	require.Equal(t, ErrClosed, err)
}

package env

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/sim"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadEnv(t *testing.T) {
	var c Config
	loadEnv(&c, envOf(map[string]string{
		"SCANLINK_PORT":    "/dev/ttyACM0",
		"SCANLINK_BAUD":    "115200",
		"SCANLINK_TIMEOUT": "250",
		"SCANLINK_TRACE":   "true",
	}))
	require.Empty(t, c.envErrs)
	require.Equal(t, "/dev/ttyACM0", c.Port)
	require.Equal(t, 115200, c.BaudRate)
	require.Equal(t, 250*time.Millisecond, c.Timeout)
	require.True(t, c.Trace)

	loadEnv(&c, envOf(map[string]string{"SCANLINK_TIMEOUT": "2s"}))
	require.Equal(t, 2*time.Second, c.Timeout)
}

func TestLoadEnvInvalid(t *testing.T) {
	c := Config{Config: comm.Config{BaudRate: 9600}}
	loadEnv(&c, envOf(map[string]string{"SCANLINK_BAUD": "fast"}))
	require.Equal(t, 9600, c.BaudRate)
	require.Len(t, c.envErrs, 1)
	require.Contains(t, c.Resolve(context.Background()).Error(), "SCANLINK_BAUD")
}

func TestConnectSim(t *testing.T) {
	c := NewConfig()
	c.envErrs = nil
	c.Port = ""
	c.BaudRate = 9600
	c.Timeout = 50 * time.Millisecond
	c.Sim = true
	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sim", conn.Port())
	require.Equal(t, comm.StateConnected, conn.State())
	require.NoError(t, conn.Close(false))
}

func TestNewConfigCopies(t *testing.T) {
	c := NewConfig()
	c.Port = "changed"
	require.NotEqual(t, "changed", Default().Port)
}

func TestMachineID(t *testing.T) {
	require.NotEmpty(t, MachineID())
}

func TestConnectClosesAfterFailedHandshake(t *testing.T) {
	device := sim.NewDevice()
	device.Respond = sim.Silent
	c := NewConfig()
	c.envErrs = nil
	c.Port = "sim0"
	c.BaudRate = 9600
	c.Timeout = 20 * time.Millisecond
	c.OpenWith = device.Opener()
	conn, err := c.Connect(context.Background())
	require.Nil(t, conn)
	require.ErrorIs(t, err, comm.ErrHandshake)
	require.Equal(t, 1, device.Opens())
	require.True(t, device.IsClosed())
}

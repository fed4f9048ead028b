// Package env sets up scanner connections from command line flags,
// environment variables and an optional TOML file.
package env

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/serial"
	"github.com/robotalks/scanlink/pkg/l0/sim"
)

// Config provides common options to connect a scanner.
type Config struct {
	comm.Config

	// Trace logs every packet at Info level regardless of -v.
	Trace bool
	// Sim connects an in-memory scanner instead of a serial port.
	Sim bool
	// OpenWith, if set, replaces the opener selected by Sim.
	OpenWith comm.Opener

	// errors from parsing environment variables.
	envErrs []error
}

var defaultConfig = Config{
	Config: comm.Config{
		BaudRate: comm.DefaultBaudRate,
		Timeout:  comm.DefaultTimeout,
	},
}

func init() {
	loadEnv(&defaultConfig, os.Getenv)
}

// loadEnv applies SCANLINK_CONFIG first so the other variables override
// keys from the file.
func loadEnv(c *Config, getenv func(string) string) {
	if path := getenv("SCANLINK_CONFIG"); path != "" {
		if err := c.LoadFile(path); err != nil {
			c.envErrs = append(c.envErrs, err)
		}
	}
	if val := getenv("SCANLINK_PORT"); val != "" {
		c.Port = val
	}
	if val := getenv("SCANLINK_BAUD"); val != "" {
		rate, err := strconv.Atoi(val)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid SCANLINK_BAUD %q: %v", val, err))
		} else {
			c.BaudRate = rate
		}
	}
	if val := getenv("SCANLINK_TIMEOUT"); val != "" {
		timeout, err := parseTimeout(val)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid SCANLINK_TIMEOUT %q: %v", val, err))
		} else {
			c.Timeout = timeout
		}
	}
	if val := getenv("SCANLINK_TRACE"); val != "" {
		trace, err := strconv.ParseBool(val)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid SCANLINK_TRACE %q: %v", val, err))
		} else {
			c.Trace = trace
		}
	}
}

// parseTimeout accepts a Go duration or plain milliseconds.
func parseTimeout(val string) (time.Duration, error) {
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(val)
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port of the scanner, empty to discover.")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Baud rate.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Timeout for each byte of a reply.")
	flag.DurationVar(&defaultConfig.FrameDeadline, "frame-deadline", defaultConfig.FrameDeadline, "Timeout for a whole reply, 0 to disable.")
	flag.BoolVar(&defaultConfig.Trace, "trace", defaultConfig.Trace, "Log every packet.")
	flag.BoolVar(&defaultConfig.Sim, "sim", defaultConfig.Sim, "Connect a simulated scanner.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Opener selects the transport opener.
func (c *Config) Opener() comm.Opener {
	if c.OpenWith != nil {
		return c.OpenWith
	}
	if c.Sim {
		return sim.NewDevice().Opener()
	}
	return serial.Opener
}

// Resolve fills in the port, discovering a scanner if none is configured,
// and validates the config.
func (c *Config) Resolve(ctx context.Context) error {
	if len(c.envErrs) > 0 {
		return c.envErrs[0]
	}
	if c.Port == "" {
		if c.Sim {
			c.Port = "sim"
		} else {
			port, err := serial.Discover(ctx, c.BaudRate, c.Timeout)
			if err != nil {
				return fmt.Errorf("discover scanner: %w", err)
			}
			c.Port = port
		}
	}
	return c.Config.Valid()
}

// NewConn creates a Conn without opening it.
func (c *Config) NewConn(ctx context.Context) (*comm.Conn, error) {
	if err := c.Resolve(ctx); err != nil {
		return nil, err
	}
	conn := comm.NewConn(c.Config, c.Opener())
	if c.Trace {
		conn.Trace = glog.Infof
	}
	return conn, nil
}

// Connect creates a Conn and opens it.
// A transport left open by a failed handshake is closed before returning.
func (c *Config) Connect(ctx context.Context) (*comm.Conn, error) {
	conn, err := c.NewConn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(); err != nil {
		if closeErr := conn.Close(true); closeErr != nil && !errors.Is(closeErr, comm.ErrNotConnected) {
			glog.V(2).Infof("close %s after failed open: %v", c.Port, closeErr)
		}
		return nil, fmt.Errorf("open %s: %w", c.Port, err)
	}
	return conn, nil
}

// MustConnect connects the scanner and fails on error.
func (c *Config) MustConnect() *comm.Conn {
	conn, err := c.Connect(context.Background())
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

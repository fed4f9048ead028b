package comm

import (
	"errors"
	"fmt"
	"time"
)

// Defaults and limits for Config.
const (
	DefaultBaudRate = 9600
	DefaultTimeout  = 500 * time.Millisecond
	TimeoutMin      = 1 * time.Millisecond
	TimeoutMax      = 60 * time.Second
)

// StandardBaudRates lists the rates a Conn accepts.
var StandardBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800,
	2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400,
}

// IsStandardBaudRate checks rate against StandardBaudRates.
func IsStandardBaudRate(rate int) bool {
	for _, r := range StandardBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Config defines a scanner link.
type Config struct {
	// Port is the serial port name, e.g. "/dev/ttyACM0" or "COM3".
	Port string
	// BaudRate must be one of StandardBaudRates. The link always uses
	// 8 data bits and no parity.
	BaudRate int
	// Timeout bounds the wait for each byte of a reply.
	Timeout time.Duration
	// FrameDeadline optionally bounds the wait for a whole reply frame.
	// Zero means only Timeout applies.
	FrameDeadline time.Duration
}

// Valid applies defaults and checks configuration validity.
// The baud rate is checked by Conn.Open so that a bad rate fails the
// open itself, before any transport is touched.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("invalid nil config")
	}
	if c.Port == "" {
		return errors.New("serial port must be configured")
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	} else if c.Timeout < TimeoutMin || c.Timeout > TimeoutMax {
		return fmt.Errorf("timeout %v out of range [%v, %v]", c.Timeout, TimeoutMin, TimeoutMax)
	}
	if c.FrameDeadline < 0 {
		return errors.New("frame deadline must not be negative")
	}
	return nil
}

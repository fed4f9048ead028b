// Package serial opens scanner transports on serial ports.
package serial

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// Mode returns the serial mode of the scanner link: 8 data bits, no
// parity, one stop bit.
func Mode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens a serial port as a comm.Transport.
// Rates outside comm.StandardBaudRates are rejected before the port is touched.
func Open(port string, baudRate int) (comm.Transport, error) {
	if !comm.IsStandardBaudRate(baudRate) {
		return nil, fmt.Errorf("%w: %d", comm.ErrUnsupportedBaudRate, baudRate)
	}
	p, err := serial.Open(port, Mode(baudRate))
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("serial port %s open at %d baud", port, baudRate)
	return p, nil
}

// Opener is the comm.Opener backed by real serial ports.
var Opener comm.Opener = Open

// Ports lists the serial ports of the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Dial creates and opens a Conn on a serial port.
// The Conn is returned even when Open fails so its state can be inspected.
func Dial(config comm.Config) (*comm.Conn, error) {
	if err := config.Valid(); err != nil {
		return nil, err
	}
	conn := comm.NewConn(config, Opener)
	if err := conn.Open(); err != nil {
		return conn, err
	}
	return conn, nil
}

// Discover probes every serial port with PROBE/PRBACK and returns the
// name of the first one a scanner answers on.
func Discover(ctx context.Context, baudRate int, timeout time.Duration) (string, error) {
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	return DiscoverOn(ctx, ports, Opener, baudRate, timeout)
}

// DiscoverOn is Discover over a given list of ports and opener.
func DiscoverOn(ctx context.Context, ports []string, opener comm.Opener, baudRate int, timeout time.Duration) (string, error) {
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		conn := comm.NewConn(comm.Config{Port: port, BaudRate: baudRate, Timeout: timeout}, opener)
		if err := conn.Probe(); err != nil {
			glog.V(2).Infof("probe %s: %v", port, err)
			continue
		}
		glog.Infof("scanner found on %s", port)
		return port, nil
	}
	return "", ErrNoDevice
}

package sh

import (
	"context"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/serial"
)

var (
	// OpenCmd opens the scanner and performs the handshake.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Open(); err != nil {
				c.Err(err)
				return
			}
			c.Printf("connected to %s at %d baud\n", s.Conn.Port(), s.Conn.BaudRate())
		},
	}

	// CloseCmd tears down the link.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"c"},
		Help:    "[-f]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Close(hasFlag(c.Args, "-f", "--force")); err != nil {
				c.Err(err)
			}
			if s.Conn != nil {
				c.Println(s.Conn.State().String())
			}
		},
	}

	// StateCmd prints the connection state.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustHaveConn(func(c *ishell.Context, conn *comm.Conn) {
			c.Printf("%s %s (readers=%d)\n", conn.Port(), conn.State(), conn.ActiveReaders())
		}),
	}

	// SendCmd sends a packet and waits for ACK.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "CMD [VALUE] (VALUE: 12 | -3 | 1.5 | s:text | x:0102)",
		Func: MustHaveConn(func(c *ishell.Context, conn *comm.Conn) {
			pkt, err := ParsePacketArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := conn.Send(pkt); err != nil {
				c.Err(err)
				return
			}
			c.Println("ACK")
		}),
	}

	// GetCmd waits for one packet.
	GetCmd = ishell.Cmd{
		Name:    "get",
		Aliases: []string{"g"},
		Help:    "[TIMEOUT]",
		Func: MustHaveConn(func(c *ishell.Context, conn *comm.Conn) {
			var timeout time.Duration
			if len(c.Args) > 0 {
				var err error
				if timeout, err = time.ParseDuration(c.Args[0]); err != nil {
					c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
					return
				}
			}
			pkt, err := conn.Get(timeout)
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).PrintPacket(c, pkt)
		}),
	}

	// RequestCmd sends a GET and prints the RSP.
	RequestCmd = ishell.Cmd{
		Name:    "request",
		Aliases: []string{"req", "r"},
		Help:    "[VALUE]",
		Func: MustHaveConn(func(c *ishell.Context, conn *comm.Conn) {
			pkt, err := ParsePacketArgs(append([]string{comm.CmdGET.String()}, c.Args...))
			if err != nil {
				c.Err(err)
				return
			}
			rsp, err := conn.Request(pkt)
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).PrintPacket(c, rsp)
		}),
	}

	// ProbeCmd checks for a scanner on the configured port.
	ProbeCmd = ishell.Cmd{
		Name:    "probe",
		Aliases: []string{"p"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Conn == nil {
				conn, err := s.Config.NewConn(context.Background())
				if err != nil {
					c.Err(err)
					return
				}
				s.Conn = conn
				s.updatePrompt()
			}
			if err := s.Conn.Probe(); err != nil {
				c.Err(err)
				return
			}
			c.Printf("scanner found on %s\n", s.Conn.Port())
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"ls"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// DumpCmd toggles hex dump of received packets.
	DumpCmd = ishell.Cmd{
		Name: "dump",
		Help: "[on|off]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			switch {
			case len(c.Args) == 0:
				s.DumpPackets = !s.DumpPackets
			case c.Args[0] == "on":
				s.DumpPackets = true
			case c.Args[0] == "off":
				s.DumpPackets = false
			default:
				c.Err(fmt.Errorf("on or off expected"))
				return
			}
			c.Printf("dump %v\n", s.DumpPackets)
		},
	}
)

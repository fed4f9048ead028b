// Package sh provides an interactive shell driving a scanner connection.
package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	AutoConnect bool
	// DumpPackets prints every payload byte of received packets.
	DumpPackets bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *comm.Conn
}

const (
	shellKey = "$shell"
)

var (
	// flags

	evalOnly    bool
	autoConnect bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&StateCmd,
		&SendCmd,
		&GetCmd,
		&RequestCmd,
		&ProbeCmd,
		&PortsCmd,
		&DumpCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&autoConnect, "connect", autoConnect, "Open the scanner on start.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		AutoConnect: autoConnect,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.updatePrompt()
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustHaveConn wraps command func requiring a Conn created by open.
func MustHaveConn(fn func(c *ishell.Context, conn *comm.Conn)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		conn := ShellFrom(c).Conn
		if conn == nil {
			c.Err(fmt.Errorf("not open"))
			return
		}
		fn(c, conn)
	}
}

func (s *Shell) updatePrompt() {
	if s.Conn == nil {
		s.Shell.SetPrompt("[none] > ")
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s(%s) > ", s.Conn.Port(), s.Conn.State()))
}

// Open creates the Conn on first use and opens it.
func (s *Shell) Open() error {
	if s.Conn == nil {
		conn, err := s.Config.NewConn(context.Background())
		if err != nil {
			return err
		}
		s.Conn = conn
	}
	defer s.updatePrompt()
	return s.Conn.Open()
}

// Close closes the Conn.
func (s *Shell) Close(force bool) error {
	if s.Conn == nil {
		return comm.ErrNotConnected
	}
	defer s.updatePrompt()
	return s.Conn.Close(force)
}

// PrintPacket prints a received packet.
func (s *Shell) PrintPacket(c *ishell.Context, pkt comm.Packet) {
	if s.DumpPackets {
		c.Print(pkt.Dump())
		return
	}
	c.Println(pkt.String())
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if err := s.Open(); err != nil {
			log.Fatalf("open scanner failed: %v", err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func hasFlag(args []string, flags ...string) bool {
	for _, arg := range args {
		for _, f := range flags {
			if strings.EqualFold(arg, f) {
				return true
			}
		}
	}
	return false
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).Run(flag.Args()...)
}

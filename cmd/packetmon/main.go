// Command packetmon opens a scanner link, reports its state and closes it.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/scanlink/pkg/l0/comm"
	"github.com/robotalks/scanlink/pkg/l0/serial"
	"github.com/robotalks/scanlink/pkg/l0/sim"
)

//go-build: CGO_ENABLED=0

var (
	baudRate  int
	port      string
	timeoutMs int
	useSim    bool
)

func init() {
	flag.IntVar(&baudRate, "b", 0, "Baud rate.")
	flag.StringVar(&port, "p", "", "Serial port.")
	flag.IntVar(&timeoutMs, "t", 0, "Timeout in milliseconds.")
	flag.BoolVar(&useSim, "sim", false, "Use a simulated scanner.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -b BAUD -p PORT -t TIMEOUT_MS\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if baudRate == 0 || port == "" || timeoutMs == 0 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run())
}

func run() int {
	defer glog.Flush()
	fmt.Println(port)

	opener := serial.Opener
	if useSim {
		opener = sim.NewDevice().Opener()
	}
	conn := comm.NewConn(comm.Config{
		Port:     port,
		BaudRate: baudRate,
		Timeout:  time.Duration(timeoutMs) * time.Millisecond,
	}, opener)

	if err := conn.Open(); err != nil {
		glog.Errorf("open: %v", err)
		fmt.Println("Connection down!")
	} else {
		fmt.Println("Connection up!")
	}
	fmt.Println(conn.State())

	fmt.Println("Trying to disconnect...")
	if conn.State() != comm.StateConnected {
		return 1
	}
	if err := conn.Close(false); err != nil {
		glog.Errorf("close: %v", err)
		conn.Close(true)
		fmt.Println("Forced disconnection")
		return 1
	}
	fmt.Println("Disconnected safely.")
	return 0
}

// Command scanbridge exposes a scanner to remote hosts over TCP,
// websocket and MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"net"

	"github.com/golang/glog"

	fx "github.com/robotalks/scanlink/pkg/framework"
	"github.com/robotalks/scanlink/pkg/l0/env"
	"github.com/robotalks/scanlink/pkg/l1/bridge"
	"github.com/robotalks/scanlink/pkg/l1/bridge/mqtt"
)

//go-build: CGO_ENABLED=0

var (
	tcpAddr  string
	httpAddr string
	httpPath = "/scanner"
	mqttURL  string
	deviceID string
)

func init() {
	env.SetupFlags()
	flag.StringVar(&tcpAddr, "tcp", tcpAddr, "TCP listen address, e.g. :7000.")
	flag.StringVar(&httpAddr, "http", httpAddr, "Websocket listen address, e.g. :8080.")
	flag.StringVar(&httpPath, "http-path", httpPath, "Websocket path.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, e.g. mqtt://localhost:1883/scanlink/.")
	flag.StringVar(&deviceID, "id", deviceID, "Device name on MQTT, defaults to the machine ID.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if tcpAddr == "" && httpAddr == "" && mqttURL == "" {
		log.Fatalln("at least one of -tcp, -http, -mqtt is required")
	}

	conn := env.Default().MustConnect()
	glog.Infof("scanner connected on %s", conn.Port())

	runner := fx.NewRunner().HandleSignals()
	if tcpAddr != "" {
		ln, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			log.Fatalln(err)
		}
		glog.Infof("bridge on tcp %s", ln.Addr())
		runner.Go(fx.NamedRun("tcp", fx.RunFunc(func(ctx context.Context) error {
			return bridge.Serve(ctx, ln, conn)
		})))
	}
	if httpAddr != "" {
		runner.Go(fx.NamedRun("websocket", fx.RunFunc(func(ctx context.Context) error {
			return bridge.ServeHTTP(ctx, httpAddr, httpPath, conn)
		})))
	}
	if mqttURL != "" {
		if deviceID == "" {
			deviceID = env.MachineID()
		}
		dev, err := mqtt.NewDevice(mqttURL, deviceID)
		if err != nil {
			log.Fatalln(err)
		}
		runner.Go(
			fx.NamedRun("mqtt", dev),
			fx.NamedRun("mqtt-bridge", bridge.New(conn, dev.ReadWriter)),
		)
	}

	err := runner.Wait()
	if closeErr := conn.Close(false); closeErr != nil {
		glog.Warningf("close scanner: %v", closeErr)
		conn.Close(true)
	}
	if err != nil {
		glog.Error(err)
		log.Fatalln(err)
	}
}

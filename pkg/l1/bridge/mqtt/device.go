package mqtt

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// Device publishes one scanner on the broker under TopicPrefix + Name.
type Device struct {
	Name       string
	Queue      *Queue
	ReadWriter *ReadWriter
}

// NewDevice creates a Device from a broker URL.
// Unless the URL carries a client-id, the client ID is derived from name.
// The broker publishes OfflineState when the connection is lost.
func NewDevice(brokerURL, name string) (*Device, error) {
	opts, topicPrefix, qos, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	rw := NewPacketReadWriter(nil).ForDevice(name)
	opts.SetBinaryWill(topicPrefix+rw.StateTopic, []byte(OfflineState), 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("scanlink:" + name)
	}
	q := NewQueue(opts, topicPrefix)
	q.QoS = qos
	rw.Queue = q
	return &Device{Name: name, Queue: q, ReadWriter: rw}, nil
}

// Run implements Runnable. It connects the broker and keeps ReadWriter
// subscribed until ctx is done.
func (d *Device) Run(ctx context.Context) error {
	token := d.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect MQTT broker: %w", err)
	}
	glog.Infof("device %q on topic %q", d.Name, d.Queue.TopicPrefix+d.Name)
	defer d.Queue.Close()
	err := d.ReadWriter.Run(ctx)
	d.Queue.PubWith(d.ReadWriter.StateTopic, []byte(OfflineState), 1, true).Wait()
	return err
}

package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// Topic suffixes under the device name.
const (
	CmdTopic   = "cmd"
	RspTopic   = "rsp"
	StateTopic = "state"
)

// OfflineState is published to StateTopic when the bridge is gone.
const OfflineState = "offline"

// ReadWriter implements PacketReadWriter and StateWriter.
type ReadWriter struct {
	Queue      *Queue
	SubTopic   string
	PubTopic   string
	StateTopic string

	packetCh  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 1),
		done:     make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub, state string) *ReadWriter {
	p.SubTopic, p.PubTopic, p.StateTopic = sub, pub, state
	return p
}

// ForDevice sets topics using the default convention for a device:
// SubTopic = device/cmd
// PubTopic = device/rsp
// StateTopic = device/state
func (p *ReadWriter) ForDevice(device string) *ReadWriter {
	return p.WithTopics(device+"/"+CmdTopic, device+"/"+RspTopic, device+"/"+StateTopic)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.done:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// WriteState implements StateWriter. The state is retained so late
// subscribers see the current one.
func (p *ReadWriter) WriteState(state comm.ConnectionState) error {
	if p.StateTopic == "" {
		return nil
	}
	token := p.Queue.PubWith(p.StateTopic, []byte(state.String()), 1, true)
	token.Wait()
	return token.Error()
}

// Run implements Runnable.
// It subscribes SubTopic and forwards payloads to ReadPacket until ctx is
// done or the ReadWriter is closed.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer sub.Close()
	select {
	case <-ctx.Done():
		p.Close()
		return ctx.Err()
	case <-p.done:
		return nil
	}
}

// Close implements io.Closer. Pending and future ReadPacket calls return
// io.EOF.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.done:
	}
}

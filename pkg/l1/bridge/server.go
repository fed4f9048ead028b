package bridge

import (
	"context"
	"net"
	"net/http"

	"github.com/golang/glog"
	xws "golang.org/x/net/websocket"

	fx "github.com/robotalks/scanlink/pkg/framework"
	"github.com/robotalks/scanlink/pkg/l1/bridge/stream"
	"github.com/robotalks/scanlink/pkg/l1/bridge/websocket"
)

// Serve runs a Bridge for each connection accepted from ln until ctx is
// done. Clients are served concurrently while the Device serializes the
// exchanges.
func Serve(ctx context.Context, ln net.Listener, dev Device) error {
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			glog.Infof("bridge: client %s connected", conn.RemoteAddr())
			go func() {
				err := New(dev, stream.New(conn)).Run(ctx)
				glog.Infof("bridge: client %s disconnected: %v", conn.RemoteAddr(), err)
			}()
		}
	})
}

// WebsocketHandler serves a Bridge on each websocket connection.
func WebsocketHandler(ctx context.Context, dev Device) http.Handler {
	return xws.Handler(func(conn *xws.Conn) {
		glog.Infof("bridge: websocket client %s connected", conn.Request().RemoteAddr)
		err := New(dev, websocket.New(conn)).Run(ctx)
		glog.Infof("bridge: websocket client %s disconnected: %v", conn.Request().RemoteAddr, err)
	})
}

// ServeHTTP serves WebsocketHandler at path on addr until ctx is done.
func ServeHTTP(ctx context.Context, addr, path string, dev Device) error {
	mux := http.NewServeMux()
	mux.Handle(path, WebsocketHandler(ctx, dev))
	server := &http.Server{Addr: addr, Handler: mux}
	return fx.RunWithContextCancel(ctx, func() { server.Close() }, func() error {
		glog.Infof("bridge: websocket on %s%s", addr, path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

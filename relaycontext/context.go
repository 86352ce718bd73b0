// Package relaycontext implements the external control surface (§6): the
// single type an embedding (a CLI, a mobile FFI binding, a desktop shell)
// drives to install rules, start the local proxy, manage the tunnel, and
// pump packets through an attached TUN device.
package relaycontext

import (
	"time"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
	"relaytunnel/muxctx"
	"relaytunnel/proxyhandlers"
	"relaytunnel/tunengine"
)

// Context is the embedding-facing handle. There is no separate "runtime"
// type: the cooperative scheduler spec.md §6 asks new_runtime() to create
// is the Go runtime itself, so construction collapses straight to a
// Context (see DESIGN.md's Open Question notes).
type Context struct {
	mux    *muxctx.Context
	proxy  *proxyhandlers.Handler
	engine *tunengine.Engine
	log    application.Logger

	tun application.TunDevice
}

// New creates a Context with the given default proxy mode (used when no
// installed rule matches a destination) and logger.
func New(fallback wire.Action, log application.Logger) *Context {
	mux := muxctx.New(fallback, log)
	return &Context{
		mux:    mux,
		proxy:  proxyhandlers.New(mux, log),
		engine: tunengine.New(mux, log),
		log:    log,
	}
}

// SetDomainRule implements set_domain_rule: install the rule JSON array.
func (c *Context) SetDomainRule(jsonText []byte) error {
	return c.mux.SetRules(jsonText)
}

// StartProxy implements start_proxy: bind 0.0.0.0:port and accept
// HTTP/SOCKS5 clients.
func (c *Context) StartProxy(port int) error {
	return c.proxy.ListenAndServe(port)
}

// StopProxy stops accepting new local proxy clients.
func (c *Context) StopProxy() error {
	return c.proxy.Close()
}

// ProxyAddr returns the local proxy's bound listen address, useful when
// StartProxy was called with port 0.
func (c *Context) ProxyAddr() (string, bool) {
	return c.proxy.Addr()
}

// ConnectTunnel implements connect_tunnel.
func (c *Context) ConnectTunnel(host string, port int, password string) error {
	return c.mux.ConnectTunnel(host, port, password)
}

// CloseTunnel implements close_tunnel.
func (c *Context) CloseTunnel() error {
	return c.mux.CloseTunnel()
}

// SetDialTimeout bounds subsequent ConnectTunnel dials; zero dials without
// a timeout.
func (c *Context) SetDialTimeout(d time.Duration) {
	c.mux.SetDialTimeout(d)
}

// TunnelUpload implements get_tunnel_upload: delta-since-last-call.
func (c *Context) TunnelUpload() int64 { return c.mux.TunnelUpload() }

// TunnelDownload implements get_tunnel_download: delta-since-last-call.
func (c *Context) TunnelDownload() int64 { return c.mux.TunnelDownload() }

// TunnelPingDelay implements get_tunnel_ping_delay.
func (c *Context) TunnelPingDelay() int32 { return c.mux.TunnelPingDelay() }

// TunnelStatus implements get_tunnel_status.
func (c *Context) TunnelStatus() wire.Status { return c.mux.TunnelStatus() }

// NewTun implements new_tun: attaches dev and starts the pumps that drive
// raw IP bytes between it and the TUN engine (C7). Call at most once per
// Context; a second call starts another pair of pumps, and the pumps of
// the first device keep running until its Read or Write fails.
func (c *Context) NewTun(dev application.TunDevice) {
	c.tun = dev
	go c.tunReadPump(dev)
	go c.tunWritePump(dev)
}

func (c *Context) tunReadPump(dev application.TunDevice) {
	buf := make([]byte, 65535)
	for {
		n, err := dev.Read(buf)
		if n > 0 {
			packet := make([]byte, n)
			copy(packet, buf[:n])
			c.engine.Ingest(packet)
		}
		if err != nil {
			return
		}
	}
}

func (c *Context) tunWritePump(dev application.TunDevice) {
	for packet := range c.engine.Outbound() {
		if _, err := dev.Write(packet); err != nil {
			return
		}
	}
}

// SendToTun implements send_to_tun (host→engine) for embeddings that pull
// bytes from their own platform TUN API instead of handing it to NewTun.
func (c *Context) SendToTun(rawIPBytes []byte) {
	c.engine.Ingest(rawIPBytes)
}

// TunData implements get_tun_data (engine→host, blocking).
func (c *Context) TunData() []byte {
	return <-c.engine.Outbound()
}

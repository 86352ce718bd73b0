// Package muxctx implements the C5 flow multiplexer: the process-wide hub
// that owns the tunnel, demultiplexes inbound tunnel frames back to
// per-flow mailboxes, and routes outbound frames from every proxy handler.
package muxctx

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"relaytunnel/application"
	"relaytunnel/classify"
	"relaytunnel/domain/wire"
	"relaytunnel/relayerr"
	"relaytunnel/tunnel"
)

// Context is the Multiplexer singleton an embedding owns one instance of
// per running proxy ("process-wide in the ergonomic sense", SPEC_FULL.md
// §9 — not a package-level static; callers hold it explicitly).
type Context struct {
	*classify.Set

	log application.Logger

	mu      sync.RWMutex
	active  application.Tunnel
	routing map[string]*mailbox

	dialGroup   singleflight.Group
	dialTimeout time.Duration
}

// SetDialTimeout bounds subsequent ConnectTunnel dials; zero (the default)
// dials without a timeout.
func (c *Context) SetDialTimeout(d time.Duration) {
	c.mu.Lock()
	c.dialTimeout = d
	c.mu.Unlock()
}

var _ application.Multiplexer = (*Context)(nil)
var _ application.InboundSink = (*Context)(nil)

// New creates a Context with the given default proxy mode and logger.
func New(fallback wire.Action, log application.Logger) *Context {
	return &Context{
		Set:     classify.New(fallback),
		log:     log,
		routing: make(map[string]*mailbox),
	}
}

// ConnectTunnel implements application.Multiplexer. If a tunnel is already
// active it is closed first and every existing mailbox is dropped, per the
// invariant in SPEC_FULL.md §4.5: mailboxes are never carried across
// tunnels. Concurrent callers targeting the same host:port share one dial
// attempt via singleflight (SPEC_FULL.md §5).
func (c *Context) ConnectTunnel(host string, port int, password string) error {
	c.teardownLocked()

	c.mu.RLock()
	dialTimeout := c.dialTimeout
	c.mu.RUnlock()

	key := fmt.Sprintf("%s:%d", host, port)
	_, err, _ := c.dialGroup.Do(key, func() (any, error) {
		t, dialErr := tunnel.Open(host, port, password, dialTimeout, c, c.log)
		if dialErr != nil {
			return nil, dialErr
		}
		c.mu.Lock()
		c.active = t
		c.mu.Unlock()
		return t, nil
	})
	return err
}

// CloseTunnel implements application.Multiplexer. Every live mailbox is
// closed so its owning handler notices within one scheduling tick (§8
// scenario 5); TunnelStatus reports Logout as soon as this returns.
func (c *Context) CloseTunnel() error {
	return c.teardownLocked()
}

// teardownLocked drops the active tunnel (if any) and every routed mailbox,
// closing each mailbox's channel so blocked receivers wake up and exit. Used
// both by CloseTunnel and by ConnectTunnel before dialing a new tunnel.
func (c *Context) teardownLocked() error {
	c.mu.Lock()
	old := c.active
	c.active = nil
	oldRouting := c.routing
	c.routing = make(map[string]*mailbox)
	c.mu.Unlock()

	for _, mb := range oldRouting {
		mb.close()
	}
	if old != nil {
		return old.Close()
	}
	return nil
}

// AddMailbox implements application.Multiplexer.
func (c *Context) AddMailbox(flowKey string) (application.Mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.routing[flowKey]; exists {
		return nil, fmt.Errorf("%w: mailbox already registered for %s", relayerr.ErrFlow, flowKey)
	}
	mb := newMailbox()
	c.routing[flowKey] = mb
	return mb, nil
}

// RemoveMailbox implements application.Multiplexer.
func (c *Context) RemoveMailbox(flowKey string) {
	c.mu.Lock()
	mb, exists := c.routing[flowKey]
	if exists {
		delete(c.routing, flowKey)
	}
	c.mu.Unlock()
	if exists {
		mb.close()
	}
}

// Deliver implements application.InboundSink: the tunnel reader's dispatch
// hands CloseConnect/TData records here, keyed by rec.SourceAddress.
// Unknown keys are silently dropped (SPEC_FULL.md §4.5).
func (c *Context) Deliver(rec wire.Record) {
	c.mu.RLock()
	mb, ok := c.routing[rec.SourceAddress]
	c.mu.RUnlock()
	if !ok {
		return
	}
	if !mb.deliver(rec) && c.log != nil {
		c.log.Printf("muxctx: dropped frame for %s, mailbox full", rec.SourceAddress)
	}
}

func (c *Context) tunnelOrErr() (application.Tunnel, error) {
	c.mu.RLock()
	t := c.active
	c.mu.RUnlock()
	if t == nil {
		return nil, fmt.Errorf("%w: no active tunnel", relayerr.ErrConnect)
	}
	return t, nil
}

// SendNewConnect implements application.Multiplexer.
func (c *Context) SendNewConnect(flowKey, target string, proto wire.Protocol) error {
	t, err := c.tunnelOrErr()
	if err != nil {
		return err
	}
	return t.Write(wire.NewConnectRecord(flowKey, target, proto))
}

// SendData implements application.Multiplexer.
func (c *Context) SendData(flowKey, target string, proto wire.Protocol, data []byte) error {
	t, err := c.tunnelOrErr()
	if err != nil {
		return err
	}
	return t.Write(wire.NewDataRecord(flowKey, target, proto, data))
}

// SendClose implements application.Multiplexer.
func (c *Context) SendClose(flowKey string) error {
	t, err := c.tunnelOrErr()
	if err != nil {
		return err
	}
	return t.Write(wire.NewCloseRecord(flowKey))
}

// TunnelUpload implements application.Multiplexer.
func (c *Context) TunnelUpload() int64 {
	c.mu.RLock()
	t := c.active
	c.mu.RUnlock()
	if t == nil {
		return 0
	}
	return t.Upload()
}

// TunnelDownload implements application.Multiplexer.
func (c *Context) TunnelDownload() int64 {
	c.mu.RLock()
	t := c.active
	c.mu.RUnlock()
	if t == nil {
		return 0
	}
	return t.Download()
}

// TunnelPingDelay implements application.Multiplexer.
func (c *Context) TunnelPingDelay() int32 {
	c.mu.RLock()
	t := c.active
	c.mu.RUnlock()
	if t == nil {
		return -1
	}
	return t.PingDelay()
}

// TunnelStatus implements application.Multiplexer.
func (c *Context) TunnelStatus() wire.Status {
	c.mu.RLock()
	t := c.active
	c.mu.RUnlock()
	if t == nil {
		return wire.StatusLogout
	}
	return t.Status()
}

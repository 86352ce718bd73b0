// Package tunnel implements the C4 tunnel transport: one long-lived
// encrypted TCP connection to a remote relay, with login handshake,
// ping/pong RTT measurement, traffic counters, and a framed reader loop.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
	"relaytunnel/relayerr"
	"relaytunnel/tunnelwire"
)

// PingInterval is the fixed interval between liveness/RTT pings, left
// "implementation-chosen" by SPEC_FULL.md §5.
const PingInterval = 15 * time.Second

// Transport implements application.Tunnel.
type Transport struct {
	conn  net.Conn
	codec *tunnelwire.Codec
	sink  application.InboundSink
	log   application.Logger

	status atomic.Int32

	uploadDelta   atomic.Int64
	downloadDelta atomic.Int64

	lastPingSentMs atomic.Int64
	lastRTTMs      atomic.Int32

	closeOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group

	writeMu sync.Mutex
}

var _ application.Tunnel = (*Transport)(nil)

// Open dials host:port (bounded by dialTimeout, or no bound when zero),
// logs in with password, and starts the reader and ping goroutines. sink
// receives CloseConnect/TData records decoded off the wire (SPEC_FULL.md
// §4.4 step 4).
func Open(host string, port int, password string, dialTimeout time.Duration, sink application.InboundSink, log application.Logger) (*Transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var conn net.Conn
	var err error
	if dialTimeout > 0 {
		conn, err = net.DialTimeout("tcp", addr, dialTimeout)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relayerr.ErrConnect, err)
	}
	return newTransport(conn, password, sink, log)
}

// newTransport wires an already-established connection, so tests can drive
// the handshake over an in-memory pipe instead of a real socket.
func newTransport(conn net.Conn, password string, sink application.InboundSink, log application.Logger) (*Transport, error) {
	t := &Transport{
		conn:  conn,
		codec: tunnelwire.NewCodec(password),
		sink:  sink,
		log:   log,
	}
	t.status.Store(int32(wire.StatusWaitLogin))
	t.lastRTTMs.Store(-1)

	// errgroup ties the reader and ping loops together: either returning
	// (a framing error, a dead socket) cancels the other's context, so a
	// tunnel-level failure invalidates the whole transport in one step
	// (SPEC_FULL.md §7's "tunnel-level errors invalidate every flow").
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	t.cancel = cancel
	t.group = g
	g.Go(func() error { return t.readLoop(gctx) })
	g.Go(func() error { return t.pingLoop(gctx) })

	keyHex := tunnelwire.DeriveKey(password)
	if err := t.Write(wire.NewLogin(string(keyHex))); err != nil {
		_ = t.Close()
		return nil, err
	}
	if err := t.sendPing(); err != nil {
		_ = t.Close()
		return nil, err
	}

	return t, nil
}

// Write implements application.Tunnel.
func (t *Transport) Write(rec wire.Record) error {
	encoded, err := t.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", relayerr.ErrConnect, err)
	}

	t.writeMu.Lock()
	_, err = t.conn.Write(encoded)
	t.writeMu.Unlock()
	if err != nil {
		t.setStatus(wire.StatusLogout)
		return fmt.Errorf("%w: write: %v", relayerr.ErrConnect, err)
	}
	t.uploadDelta.Add(int64(len(encoded)))
	return nil
}

// Status implements application.Tunnel.
func (t *Transport) Status() wire.Status {
	return wire.Status(t.status.Load())
}

func (t *Transport) setStatus(s wire.Status) { t.status.Store(int32(s)) }

// Close implements application.Tunnel.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.setStatus(wire.StatusLogout)
		t.cancel()
		err = t.conn.Close()
		_ = t.group.Wait()
	})
	return err
}

// Upload implements application.Tunnel: sample-and-reset.
func (t *Transport) Upload() int64 { return t.uploadDelta.Swap(0) }

// Download implements application.Tunnel: sample-and-reset.
func (t *Transport) Download() int64 { return t.downloadDelta.Swap(0) }

// PingDelay implements application.Tunnel.
func (t *Transport) PingDelay() int32 { return t.lastRTTMs.Load() }

func (t *Transport) sendPing() error {
	t.lastPingSentMs.Store(time.Now().UnixMilli())
	return t.Write(wire.NewPing())
}

func (t *Transport) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.Status() == wire.StatusLogout {
				return nil
			}
			if err := t.sendPing(); err != nil {
				return err
			}
		}
	}
}

func (t *Transport) readLoop(ctx context.Context) error {
	defer t.setStatus(wire.StatusLogout)

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)

	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			t.downloadDelta.Add(int64(n))

			records, consumed, decErr := t.codec.Decode(buf)
			buf = append(buf[:0], buf[consumed:]...)
			for _, rec := range records {
				t.dispatch(rec)
			}
			if decErr != nil {
				if t.log != nil {
					t.log.Printf("tunnel: framing error, closing: %v", decErr)
				}
				return fmt.Errorf("%w: %v", relayerr.ErrFraming, decErr)
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if t.log != nil {
				t.log.Printf("tunnel: reader closed: %v", err)
			}
			return fmt.Errorf("%w: %v", relayerr.ErrConnect, err)
		}
	}
}

func (t *Transport) dispatch(rec wire.Record) {
	switch rec.Cmd {
	case wire.LoginSuccess:
		t.setStatus(wire.StatusSuccess)
	case wire.LoginFail, wire.ProtocolError:
		t.setStatus(wire.StatusLogout)
	case wire.Pong:
		sent := t.lastPingSentMs.Load()
		if sent > 0 {
			t.lastRTTMs.Store(int32(time.Now().UnixMilli() - sent))
		}
	case wire.CloseConnect, wire.TData:
		if t.sink != nil {
			t.sink.Deliver(rec)
		}
	default:
		// discard
	}
}

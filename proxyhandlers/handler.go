// Package proxyhandlers implements the C8 HTTP/SOCKS5 handlers: the local
// listener a client (browser, curl, the OS SOCKS resolver) connects to,
// and the per-connection dispatch into a direct dial, a rejection, or a
// proxied flow relayed through the flow multiplexer.
package proxyhandlers

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
)

// Handler is the C8 proxy listener: one instance serves both HTTP and
// SOCKS5 clients on the same port, dispatched by sniffing the first byte.
type Handler struct {
	mux application.Multiplexer
	log application.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a Handler driving mux for every proxied flow.
func New(mux application.Multiplexer, log application.Logger) *Handler {
	return &Handler{mux: mux, log: log}
}

// ListenAndServe implements start_proxy (SPEC_FULL.md §6): binds
// 0.0.0.0:port and accepts HTTP/SOCKS5 clients in the background. It
// returns once the bind has either succeeded or failed.
func (h *Handler) ListenAndServe(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go h.handleConn(conn)
		}
	}()
	return nil
}

// Addr returns the bound listen address and true, or ("", false) if the
// handler is not currently listening.
func (h *Handler) Addr() (string, bool) {
	h.mu.Lock()
	ln := h.ln
	h.mu.Unlock()
	if ln == nil {
		return "", false
	}
	return ln.Addr().String(), true
}

// Close stops accepting new connections.
func (h *Handler) Close() error {
	h.mu.Lock()
	ln := h.ln
	h.ln = nil
	h.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (h *Handler) handleConn(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		return
	}

	if first[0] == socks5Version {
		h.handleSocks5(conn, br)
		return
	}
	h.handleHTTP(conn, br)
}

// dispatch resolves target against the classifier and runs the direct or
// proxy path; it returns nil on a clean handled-to-completion flow.
func (h *Handler) dispatch(conn net.Conn, flowKey, target string, proto wire.Protocol, firstPayload []byte) error {
	host := target
	if hostOnly, _, err := net.SplitHostPort(target); err == nil {
		host = hostOnly
	}
	switch h.mux.Classify(host) {
	case wire.ActionReject:
		return nil
	case wire.ActionDirect:
		return relayDirect(conn, target, firstPayload)
	default: // wire.ActionProxy
		return relayProxy(h.mux, h.log, conn, flowKey, target, proto, firstPayload)
	}
}

func defaultPortIfMissing(hostport string, defaultPort string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	if !strings.Contains(hostport, ":") {
		return net.JoinHostPort(hostport, defaultPort)
	}
	return hostport
}

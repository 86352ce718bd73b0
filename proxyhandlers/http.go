package proxyhandlers

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"

	"relaytunnel/domain/wire"
)

const httpConnectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// handleHTTP recognises CONNECT and plain proxied HTTP requests from the
// first client packet, per SPEC_FULL.md §4.8.
func (h *Handler) handleHTTP(conn net.Conn, br *bufio.Reader) {
	var raw bytes.Buffer
	req, err := http.ReadRequest(bufio.NewReader(io.TeeReader(br, &raw)))
	if err != nil {
		return
	}

	flowKey := conn.RemoteAddr().String()

	if req.Method == http.MethodConnect {
		target := defaultPortIfMissing(req.Host, "443")
		host := target
		if hostOnly, _, err := net.SplitHostPort(target); err == nil {
			host = hostOnly
		}
		action := h.mux.Classify(host)
		if action == wire.ActionReject {
			return
		}
		if _, err := conn.Write([]byte(httpConnectEstablished)); err != nil {
			return
		}
		if action == wire.ActionDirect {
			_ = relayDirect(conn, target, nil)
			return
		}
		_ = relayProxy(h.mux, h.log, conn, flowKey, target, wire.TCP, nil)
		return
	}

	if req.URL.Host == "" {
		return // not a proxy-form request; nothing this listener can serve
	}
	target := defaultPortIfMissing(req.URL.Host, "80")
	_ = h.dispatch(conn, flowKey, target, wire.TCP, raw.Bytes())
}

package proxyhandlers

import (
	"bufio"
	"net"

	"relaytunnel/domain/wire"
)

// handleSocks5 implements the CONNECT and UDP ASSOCIATE commands of
// SPEC_FULL.md §4.8's SOCKS5 parser (RFC 1928, no-auth only).
func (h *Handler) handleSocks5(conn net.Conn, br *bufio.Reader) {
	ok, err := negotiateSocks5Method(br, conn)
	if err != nil || !ok {
		return
	}

	req, err := readSocks5Request(br)
	if err != nil {
		return
	}

	switch req.cmd {
	case cmdConnect:
		h.handleSocks5Connect(conn, req)
	case cmdUDPAssociate:
		h.handleSocks5UDPAssociate(conn, req)
	default:
		_, _ = conn.Write(socks5Reply(replyFailure, "0.0.0.0", 0))
	}
}

func (h *Handler) handleSocks5Connect(conn net.Conn, req socks5Request) {
	if _, err := conn.Write(socks5Reply(replySucceeded, "0.0.0.0", 0)); err != nil {
		return
	}
	flowKey := conn.RemoteAddr().String()
	_ = h.dispatch(conn, flowKey, req.target(), wire.TCP, nil)
}

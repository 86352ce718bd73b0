package proxyhandlers

import (
	"net"
	"strconv"
	"sync"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
)

// handleSocks5UDPAssociate implements SPEC_FULL.md §4.8's UDP ASSOCIATE
// path: bind a local UDP relay port, reply with its address, then pump
// datagrams between the client and the tunnel for the life of the TCP
// control connection.
func (h *Handler) handleSocks5UDPAssociate(conn net.Conn, req socks5Request) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_, _ = conn.Write(socks5Reply(replyFailure, "0.0.0.0", 0))
		return
	}
	defer udpConn.Close()

	localAddr := udpConn.LocalAddr().(*net.UDPAddr)
	if _, err := conn.Write(socks5Reply(replySucceeded, localAddr.IP.String(), uint16(localAddr.Port))); err != nil {
		return
	}

	flowKey := udpConn.LocalAddr().String()
	mb, err := h.mux.AddMailbox(flowKey)
	if err != nil {
		return
	}
	defer h.mux.RemoveMailbox(flowKey)
	defer func() { _ = h.mux.SendClose(flowKey) }()

	assoc := &udpAssociation{
		conn:          udpConn,
		targetToClient: make(map[string]*net.UDPAddr),
	}

	done := make(chan struct{})
	go assoc.pumpInbound(h, flowKey, mb, done)
	go assoc.pumpDatagrams(h, flowKey, done)

	// The association lives for as long as the TCP control connection
	// stays open (RFC 1928 §7); a read here just detects its closure.
	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
	close(done)
}

type udpAssociation struct {
	conn *net.UDPConn

	mu             sync.Mutex
	targetToClient map[string]*net.UDPAddr
}

func (a *udpAssociation) pumpDatagrams(h *Handler, flowKey string, done <-chan struct{}) {
	buf := make([]byte, 65535)
	for {
		n, clientAddr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}

		host, port, payload, err := parseSocks5UDPDatagram(buf[:n])
		if err != nil {
			continue
		}
		target := net.JoinHostPort(host, strconv.Itoa(int(port)))

		a.mu.Lock()
		a.targetToClient[target] = clientAddr
		a.mu.Unlock()

		dataCopy := make([]byte, len(payload))
		copy(dataCopy, payload)
		if err := h.mux.SendData(flowKey, target, wire.UDP, dataCopy); err != nil {
			if h.log != nil {
				h.log.Printf("proxyhandlers: SendData(udp %s): %v", flowKey, err)
			}
			return
		}
	}
}

func (a *udpAssociation) pumpInbound(h *Handler, flowKey string, mb application.Mailbox, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case rec, ok := <-mb.Receive():
			if !ok {
				return
			}
			if rec.Cmd != wire.TData {
				continue
			}
			a.mu.Lock()
			clientAddr, known := a.targetToClient[rec.TargetAddress]
			a.mu.Unlock()
			if !known {
				continue
			}

			host, portStr, err := net.SplitHostPort(rec.TargetAddress)
			if err != nil {
				continue
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				continue
			}

			datagram := append(socks5UDPHeader(host, uint16(port)), rec.Data...)
			_, _ = a.conn.WriteToUDP(datagram, clientAddr)
		}
	}
}

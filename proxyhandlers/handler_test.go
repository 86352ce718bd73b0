package proxyhandlers

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
)

// fakeMux is a minimal application.Multiplexer whose Classify is
// configurable and whose proxy-path methods record calls without needing a
// real tunnel.
type fakeMux struct {
	action wire.Action

	mailboxes map[string]*fakeMailbox
}

type fakeMailbox struct{ ch chan wire.Record }

func (m *fakeMailbox) Receive() <-chan wire.Record { return m.ch }

func newFakeMux(action wire.Action) *fakeMux {
	return &fakeMux{action: action, mailboxes: make(map[string]*fakeMailbox)}
}

func (f *fakeMux) Classify(string) wire.Action { return f.action }
func (f *fakeMux) SetRules([]byte) error       { return nil }
func (f *fakeMux) ConnectTunnel(string, int, string) error { return nil }
func (f *fakeMux) CloseTunnel() error          { return nil }

func (f *fakeMux) AddMailbox(flowKey string) (application.Mailbox, error) {
	mb := &fakeMailbox{ch: make(chan wire.Record, 16)}
	f.mailboxes[flowKey] = mb
	return mb, nil
}
func (f *fakeMux) RemoveMailbox(flowKey string) { delete(f.mailboxes, flowKey) }

func (f *fakeMux) SendNewConnect(string, string, wire.Protocol) error { return nil }
func (f *fakeMux) SendData(string, string, wire.Protocol, []byte) error { return nil }
func (f *fakeMux) SendClose(string) error                              { return nil }

func (f *fakeMux) TunnelUpload() int64       { return 0 }
func (f *fakeMux) TunnelDownload() int64     { return 0 }
func (f *fakeMux) TunnelPingDelay() int32    { return 0 }
func (f *fakeMux) TunnelStatus() wire.Status { return wire.StatusSuccess }

var _ application.Multiplexer = (*fakeMux)(nil)

func startEchoServer(t *testing.T) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestHTTPConnectDirectRelay(t *testing.T) {
	echoAddr, stop := startEchoServer(t)
	defer stop()

	client, server := net.Pipe()
	defer client.Close()

	h := New(newFakeMux(wire.ActionDirect), nil)
	go h.handleConn(server)

	if _, err := client.Write([]byte("CONNECT " + echoAddr + " HTTP/1.1\r\nHost: " + echoAddr + "\r\n\r\n")); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	resp := make([]byte, len(httpConnectEstablished))
	if _, err := io.ReadFull(client, resp); err != nil {
		t.Fatalf("read CONNECT reply: %v", err)
	}
	if string(resp) != httpConnectEstablished {
		t.Fatalf("reply = %q, want %q", resp, httpConnectEstablished)
	}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	echoed := make([]byte, 4)
	if _, err := io.ReadFull(client, echoed); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(echoed) != "ping" {
		t.Fatalf("echoed = %q, want ping", echoed)
	}
}

// TestRuleHotSwapLeavesOpenFlowUnaffected covers scenario 6: a flow already
// dispatched under one classifier outcome keeps running unchanged when the
// mux's rules flip for everyone else, because dispatch classifies once up
// front and the relay loop never re-queries it.
func TestRuleHotSwapLeavesOpenFlowUnaffected(t *testing.T) {
	echoAddr, stop := startEchoServer(t)
	defer stop()

	client, server := net.Pipe()
	defer client.Close()

	mux := newFakeMux(wire.ActionDirect)
	h := New(mux, nil)
	go h.handleConn(server)

	if _, err := client.Write([]byte("CONNECT " + echoAddr + " HTTP/1.1\r\nHost: " + echoAddr + "\r\n\r\n")); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	resp := make([]byte, len(httpConnectEstablished))
	if _, err := io.ReadFull(client, resp); err != nil {
		t.Fatalf("read CONNECT reply: %v", err)
	}

	// Flip what the mux would classify new flows as; the already-open flow
	// above captured ActionDirect at dispatch time and never re-asks.
	mux.action = wire.ActionReject

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("still alive")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	echoed := make([]byte, len("still alive"))
	if _, err := io.ReadFull(client, echoed); err != nil {
		t.Fatalf("read echo after rule swap: %v", err)
	}
	if string(echoed) != "still alive" {
		t.Fatalf("echoed = %q, want %q", echoed, "still alive")
	}
}

func TestPlainHTTPDirectRelayForwardsOriginalRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			received <- ""
			return
		}
		received <- req.URL.Path
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	}()

	client, server := net.Pipe()
	defer client.Close()

	h := New(newFakeMux(wire.ActionDirect), nil)
	go h.handleConn(server)

	target := ln.Addr().String()
	request := "GET http://" + target + "/hello HTTP/1.1\r\nHost: " + target + "\r\n\r\n"
	if _, err := client.Write([]byte(request)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case path := <-received:
		if path != "/hello" {
			t.Fatalf("upstream saw path %q, want /hello", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received the forwarded request")
	}
}

func TestSocks5RejectTerminatesWithoutDialing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	mux := newFakeMux(wire.ActionReject)
	h := New(mux, nil)
	go h.handleConn(server)

	if _, err := client.Write([]byte{socks5Version, 1, methodNoAuth}); err != nil {
		t.Fatalf("write method selection: %v", err)
	}
	methodReply := make([]byte, 2)
	if _, err := io.ReadFull(client, methodReply); err != nil {
		t.Fatalf("read method reply: %v", err)
	}

	reqBytes := append([]byte{socks5Version, cmdConnect, 0x00}, encodeSocks5Address(nil, "ads.example.com")...)
	reqBytes = append(reqBytes, 0, 80)
	if _, err := client.Write(reqBytes); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	connectReply := make([]byte, 10)
	if _, err := io.ReadFull(client, connectReply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}

	// The handler must terminate without relaying any payload and without
	// ever asking the multiplexer to open a tunnel flow.
	client.SetDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := client.Write([]byte("should not be relayed")); err == nil {
		if n, _ := client.Read(make([]byte, 1)); n != 0 {
			t.Fatal("expected connection to be closed, got data")
		}
	}
	if len(mux.mailboxes) != 0 {
		t.Fatalf("expected no mailbox/tunnel frame for a rejected flow, got %d", len(mux.mailboxes))
	}
}

func TestSocks5ConnectDirectRelay(t *testing.T) {
	echoAddr, stop := startEchoServer(t)
	defer stop()

	client, server := net.Pipe()
	defer client.Close()

	h := New(newFakeMux(wire.ActionDirect), nil)
	go h.handleConn(server)

	if _, err := client.Write([]byte{socks5Version, 1, methodNoAuth}); err != nil {
		t.Fatalf("write method selection: %v", err)
	}
	methodReply := make([]byte, 2)
	if _, err := io.ReadFull(client, methodReply); err != nil {
		t.Fatalf("read method reply: %v", err)
	}
	if methodReply[0] != socks5Version || methodReply[1] != methodNoAuth {
		t.Fatalf("method reply = % x, want 05 00", methodReply)
	}

	host, portStr, _ := net.SplitHostPort(echoAddr)
	p, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse echo port: %v", err)
	}
	portBuf := [2]byte{byte(p >> 8), byte(p)}

	reqBytes := append([]byte{socks5Version, cmdConnect, 0x00}, encodeSocks5Address(nil, host)...)
	reqBytes = append(reqBytes, portBuf[:]...)
	if _, err := client.Write(reqBytes); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	connectReply := make([]byte, 10)
	if _, err := io.ReadFull(client, connectReply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	want := []byte{socks5Version, replySucceeded, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	for i := range want {
		if connectReply[i] != want[i] {
			t.Fatalf("connect reply = % x, want % x", connectReply, want)
		}
	}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("pong")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	echoed := make([]byte, 4)
	if _, err := io.ReadFull(client, echoed); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(echoed) != "pong" {
		t.Fatalf("echoed = %q, want pong", echoed)
	}
}

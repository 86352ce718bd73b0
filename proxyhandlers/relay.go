package proxyhandlers

import (
	"io"
	"net"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
)

// relayDirect dials target and splices bytes both ways until either side
// EOFs, per SPEC_FULL.md §4.8 step 3. firstPayload, if non-empty, is
// written to upstream first — bytes already consumed from conn while
// parsing the request (the plain-HTTP path) that must still reach the
// origin server.
func relayDirect(conn net.Conn, target string, firstPayload []byte) error {
	upstream, err := net.Dial("tcp", target)
	if err != nil {
		return err
	}
	defer upstream.Close()

	if len(firstPayload) > 0 {
		if _, err := upstream.Write(firstPayload); err != nil {
			return err
		}
	}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(upstream, conn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, upstream)
		done <- struct{}{}
	}()
	<-done
	return nil
}

// relayProxy implements SPEC_FULL.md §4.8 step 4: register a mailbox,
// announce the flow, pump client bytes into TData frames, and drain the
// mailbox back to the client until the flow or the client socket ends.
// firstPayload, if non-empty, is sent as the first TData (the HTTP
// CONNECT path has none; the plain-HTTP path forwards the request bytes
// read during parsing).
func relayProxy(mux application.Multiplexer, log application.Logger, conn net.Conn, flowKey, target string, proto wire.Protocol, firstPayload []byte) error {
	mb, err := mux.AddMailbox(flowKey)
	if err != nil {
		return err
	}
	defer mux.RemoveMailbox(flowKey)
	defer func() { _ = mux.SendClose(flowKey) }()

	if err := mux.SendNewConnect(flowKey, target, proto); err != nil {
		return err
	}
	if len(firstPayload) > 0 {
		if err := mux.SendData(flowKey, target, proto, firstPayload); err != nil {
			return err
		}
	}

	clientGone := make(chan struct{})
	go pumpClientToTunnel(mux, log, conn, flowKey, target, proto, clientGone)

	for {
		select {
		case rec, ok := <-mb.Receive():
			if !ok {
				return nil
			}
			switch rec.Cmd {
			case wire.TData:
				if _, err := conn.Write(rec.Data); err != nil {
					return err
				}
			case wire.CloseConnect, wire.LoginFail, wire.ProtocolError:
				return nil
			}
		case <-clientGone:
			return nil
		}
	}
}

func pumpClientToTunnel(mux application.Multiplexer, log application.Logger, conn net.Conn, flowKey, target string, proto wire.Protocol, done chan<- struct{}) {
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := mux.SendData(flowKey, target, proto, chunk); sendErr != nil {
				if log != nil {
					log.Printf("proxyhandlers: SendData(%s): %v", flowKey, sendErr)
				}
				close(done)
				return
			}
		}
		if err != nil {
			close(done)
			return
		}
	}
}

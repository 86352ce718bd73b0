// Package telemetry implements an optional localhost WebSocket endpoint
// that pushes the control-surface telemetry (upload, download, ping delay,
// status) a local UI would otherwise have to poll via relaycontext's
// getters.
package telemetry

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Snapshot is one telemetry sample, emitted over the WebSocket as JSON.
type Snapshot struct {
	Upload    int64  `json:"upload"`
	Download  int64  `json:"download"`
	PingDelay int32  `json:"pingDelayMs"`
	Status    string `json:"status"`
}

// Source supplies the telemetry a Server samples on each push tick.
type Source interface {
	TunnelUpload() int64
	TunnelDownload() int64
	TunnelPingDelay() int32
	TunnelStatus() wire.Status
}

// Server is a WebSocket endpoint, bound to whatever address
// ListenAndServe is given, streaming periodic Snapshots to every
// connected client.
type Server struct {
	source Source
	log    application.Logger
	period time.Duration

	mu      sync.Mutex
	ln      net.Listener
	clients map[*websocket.Conn]chan Snapshot
}

// New creates a Server sampling source every period (e.g. 1s) for push.
func New(source Source, period time.Duration, log application.Logger) *Server {
	return &Server{
		source:  source,
		log:     log,
		period:  period,
		clients: make(map[*websocket.Conn]chan Snapshot),
	}
}

// ListenAndServe binds addr (e.g. "127.0.0.1:9999") and serves the /ws
// endpoint, broadcasting a Snapshot every period until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go s.broadcastLoop()
	go http.Serve(ln, mux) //nolint:errcheck // Accept errors surface via ln.Close

	return nil
}

// Close stops the listener and disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Printf("telemetry: upgrade failed: %v", err)
		}
		return
	}

	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for snap := range ch {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for range ticker.C {
		snap := Snapshot{
			Upload:    s.source.TunnelUpload(),
			Download:  s.source.TunnelDownload(),
			PingDelay: s.source.TunnelPingDelay(),
			Status:    s.source.TunnelStatus().String(),
		}

		s.mu.Lock()
		for conn, ch := range s.clients {
			select {
			case ch <- snap:
			default:
				if s.log != nil {
					s.log.Printf("telemetry: client %s is slow, dropping a snapshot", conn.RemoteAddr())
				}
			}
		}
		s.mu.Unlock()
	}
}

// marshalForTest exposes Snapshot's JSON form for tests without pulling in
// the websocket wire format.
func marshalForTest(s Snapshot) ([]byte, error) { return json.Marshal(s) }

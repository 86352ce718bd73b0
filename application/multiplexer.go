package application

import "relaytunnel/domain/wire"

// Multiplexer is the C5 flow multiplexer port: owns the tunnel and the
// flow-key → mailbox routing map, and accepts outbound frames from every
// proxy handler and TUN pipe.
type Multiplexer interface {
	Classifier

	ConnectTunnel(host string, port int, password string) error
	CloseTunnel() error

	// AddMailbox registers a mailbox for flowKey. It is an error to
	// register a second mailbox for a key already present (I1).
	AddMailbox(flowKey string) (Mailbox, error)
	RemoveMailbox(flowKey string)

	SendNewConnect(flowKey, target string, proto wire.Protocol) error
	SendData(flowKey, target string, proto wire.Protocol, data []byte) error
	SendClose(flowKey string) error

	TunnelUpload() int64
	TunnelDownload() int64
	TunnelPingDelay() int32
	TunnelStatus() wire.Status
}

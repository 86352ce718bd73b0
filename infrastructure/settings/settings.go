// Package settings holds the process-wide configuration cmd/relaytun
// loads at startup: the tunnel endpoint to dial, the local proxy/TUN
// setup, and where to write logs.
package settings

// Settings is the typed configuration cmd/relaytun builds from
// environment variables (see config.go) before constructing a
// relaycontext.Context.
type Settings struct {
	Host          Host          `json:"Host"`
	Port          int           `json:"Port"`
	Password      string        `json:"-"`
	ProxyPort     int           `json:"ProxyPort"`
	TunName       string        `json:"TunName"`
	TunIP         string        `json:"TunIP"`
	TunPrefixLen  int           `json:"TunPrefixLen"`
	MTU           int           `json:"MTU"`
	LogPath       string        `json:"LogPath"`
	TelemetryAddr string        `json:"TelemetryAddr"`
	DialTimeoutMs DialTimeoutMs `json:"DialTimeoutMs"`
}

package settings

import (
	"fmt"
	"os"
	"strconv"
)

// FromEnv builds Settings from environment variables, following the same
// flat-env-var convention as the rest of the retrieval pack's cmd/ entries.
// Call godotenv.Load() before FromEnv to pick up a local .env file.
func FromEnv() (*Settings, error) {
	host, err := NewHost(os.Getenv("RELAYTUN_HOST"))
	if err != nil {
		return nil, fmt.Errorf("RELAYTUN_HOST: %w", err)
	}
	if host.IsZero() {
		return nil, fmt.Errorf("RELAYTUN_HOST is not set")
	}

	port, err := envInt("RELAYTUN_PORT", 0)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, fmt.Errorf("RELAYTUN_PORT is not set")
	}

	password := os.Getenv("RELAYTUN_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("RELAYTUN_PASSWORD is not set")
	}

	proxyPort, err := envInt("RELAYTUN_PROXY_PORT", 1080)
	if err != nil {
		return nil, err
	}

	mtu, err := envInt("RELAYTUN_MTU", DefaultMTU)
	if err != nil {
		return nil, err
	}

	dialTimeoutMs, err := envInt("RELAYTUN_DIAL_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}

	tunPrefixLen, err := envInt("RELAYTUN_TUN_PREFIX_LEN", 24)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Host:          host,
		Port:          port,
		Password:      password,
		ProxyPort:     proxyPort,
		TunName:       envOr("RELAYTUN_TUN_NAME", "relaytun0"),
		TunIP:         envOr("RELAYTUN_TUN_IP", "10.50.0.2"),
		TunPrefixLen:  tunPrefixLen,
		MTU:           mtu,
		LogPath:       envOr("RELAYTUN_LOG_PATH", "relaytun.log"),
		TelemetryAddr: os.Getenv("RELAYTUN_TELEMETRY_ADDR"),
		DialTimeoutMs: DialTimeoutMs(dialTimeoutMs),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

// Command relaytun is the client-side encrypted tunneling proxy: it opens
// a TUN device, starts a local HTTP/SOCKS5 proxy, and relays classified
// traffic through an encrypted tunnel to a remote relay.
package main

import (
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"relaytunnel/domain/wire"
	"relaytunnel/infrastructure/logging"
	"relaytunnel/infrastructure/settings"
	"relaytunnel/infrastructure/telemetry"
	"relaytunnel/infrastructure/tundevice"
	"relaytunnel/relaycontext"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("relaytun: no .env file found, using process environment: %v", err)
	}

	cfg, err := settings.FromEnv()
	if err != nil {
		log.Fatalf("relaytun: config error: %v", err)
	}

	zlog := logging.NewZapLogger(cfg.LogPath)
	defer zlog.Sync()

	rc := relaycontext.New(wire.ActionDirect, zlog)
	rc.SetDialTimeout(cfg.DialTimeoutMs.Duration())

	tunIP, err := netip.ParseAddr(cfg.TunIP)
	if err != nil {
		zlog.Printf("relaytun: invalid RELAYTUN_TUN_IP %q: %v", cfg.TunIP, err)
		os.Exit(1)
	}
	tun, err := tundevice.New(cfg.TunName, tunIP, cfg.TunPrefixLen, settings.ResolveMTU(cfg.MTU))
	if err != nil {
		zlog.Printf("relaytun: failed to open tun device: %v", err)
		os.Exit(1)
	}
	defer tun.Close()
	rc.NewTun(tun)
	zlog.Printf("relaytun: tun device %s up at %s/%d", tun.Name(), cfg.TunIP, cfg.TunPrefixLen)

	if err := rc.ConnectTunnel(cfg.Host.String(), cfg.Port, cfg.Password); err != nil {
		zlog.Printf("relaytun: failed to connect tunnel: %v", err)
		os.Exit(1)
	}
	defer rc.CloseTunnel()
	zlog.Printf("relaytun: tunnel connected to %s:%d", cfg.Host.String(), cfg.Port)

	if err := rc.StartProxy(cfg.ProxyPort); err != nil {
		zlog.Printf("relaytun: failed to start local proxy: %v", err)
		os.Exit(1)
	}
	defer rc.StopProxy()
	zlog.Printf("relaytun: local proxy listening on :%d", cfg.ProxyPort)

	if cfg.TelemetryAddr != "" {
		tsrv := telemetry.New(rc, time.Second, zlog)
		if err := tsrv.ListenAndServe(cfg.TelemetryAddr); err != nil {
			zlog.Printf("relaytun: failed to start telemetry endpoint: %v", err)
		} else {
			defer tsrv.Close()
			zlog.Printf("relaytun: telemetry endpoint listening on %s", cfg.TelemetryAddr)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Printf("relaytun: shutting down")
}

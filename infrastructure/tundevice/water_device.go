// Package tundevice opens the real platform TUN interface and assigns it
// an address so the kernel routes classified traffic into relaytun.
package tundevice

import (
	"fmt"
	"net/netip"

	"github.com/songgao/water"

	"relaytunnel/infrastructure/PAL/exec_commander"
)

// WaterDevice adapts a songgao/water TUN interface to application.TunDevice.
type WaterDevice struct {
	dev *water.Interface
	cmd exec_commander.Commander
	ip  netip.Addr
}

// New opens a TUN interface named name, assigns it ip/prefixLen, sets its
// MTU, and brings it up. Requires elevated privileges.
func New(name string, ip netip.Addr, prefixLen int, mtu int) (*WaterDevice, error) {
	dev, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open tun device %q: %w", name, err)
	}

	d := &WaterDevice{
		dev: dev,
		cmd: exec_commander.NewExecCommander(),
		ip:  ip,
	}

	if err := d.configure(dev.Name(), prefixLen, mtu); err != nil {
		dev.Close()
		return nil, fmt.Errorf("configure tun device %q: %w", dev.Name(), err)
	}
	return d, nil
}

func (d *WaterDevice) configure(name string, prefixLen, mtu int) error {
	addr := fmt.Sprintf("%s/%d", d.ip.String(), prefixLen)
	cmds := [][]string{
		{"ip", "addr", "add", addr, "dev", name},
		{"ip", "link", "set", name, "mtu", fmt.Sprintf("%d", mtu)},
		{"ip", "link", "set", name, "up"},
	}
	for _, args := range cmds {
		if out, err := d.cmd.CombinedOutput(args[0], args[1:]...); err != nil {
			return fmt.Errorf("%v: %w (%s)", args, err, out)
		}
	}
	return nil
}

// Read implements application.TunDevice.
func (d *WaterDevice) Read(buf []byte) (int, error) { return d.dev.Read(buf) }

// Write implements application.TunDevice.
func (d *WaterDevice) Write(buf []byte) (int, error) { return d.dev.Write(buf) }

// Close implements application.TunDevice.
func (d *WaterDevice) Close() error { return d.dev.Close() }

// Name returns the kernel-assigned interface name.
func (d *WaterDevice) Name() string { return d.dev.Name() }

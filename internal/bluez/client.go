// Package bluez talks to the BlueZ Bluetooth daemon over the D-Bus system
// bus.
//
// Client discovers AirPods accessories and connects to them through the
// org.bluez.Adapter1 and org.bluez.Device1 interfaces. BatteryProvider
// publishes battery levels through org.bluez.BatteryProviderManager1 so
// they show up in the desktop's Bluetooth settings.
//
// Every Client holds its own system bus connection; close it when done.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService      = "org.bluez"
	adapterIface      = "org.bluez.Adapter1"
	deviceIface       = "org.bluez.Device1"
	propertiesIface   = "org.freedesktop.DBus.Properties"
	objectManagerIfce = "org.freedesktop.DBus.ObjectManager"

	propertiesChanged = propertiesIface + ".PropertiesChanged"
	interfacesAdded   = objectManagerIfce + ".InterfacesAdded"
)

// ErrNotFound is returned when no accessory shows up before the deadline.
var ErrNotFound = errors.New("no AirPods accessory found")

// Client is a BlueZ client bound to one adapter.
type Client struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	key     []byte
}

// NewClient connects to the system bus. adapter is the controller name,
// e.g. "hci0". key is the optional proximity encryption key.
func NewClient(adapter string, key []byte) (*Client, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	return &Client{
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + adapter),
		key:     key,
	}, nil
}

// Devices returns every device BlueZ knows about on this adapter, connected
// devices first.
func (c *Client) Devices(ctx context.Context) ([]*Device, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

	obj := c.conn.Object(bluezService, "/")
	if err := obj.CallWithContext(ctx, objectManagerIfce+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to get managed objects: %w", err)
	}

	var devices []*Device
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || !c.owns(path) {
			continue
		}
		devices = append(devices, deviceFromProperties(path, props, c.key))
	}

	sortDevices(devices)
	return devices, nil
}

// sortDevices orders connected devices first, then paired ones, then by
// path.
func sortDevices(devices []*Device) {
	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Connected != b.Connected {
			return a.Connected
		}
		if a.Paired != b.Paired {
			return a.Paired
		}
		return a.Path < b.Path
	})
}

// selectDevice returns the first candidate accessory in devices, which
// must be sorted. Without discovery only connected accessories qualify;
// during discovery paired accessories that are in range do too.
func selectDevice(devices []*Device, discovering bool) *Device {
	for _, d := range devices {
		if !d.Candidate() {
			continue
		}
		if d.Connected || (discovering && d.InRange()) {
			return d
		}
	}
	return nil
}

func (c *Client) owns(path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(c.adapter)+"/")
}

// Scan looks for a paired AirPods accessory. Known devices are checked
// first, preferring connected ones; otherwise discovery runs until a paired
// accessory advertises or ctx is done.
func (c *Client) Scan(ctx context.Context) (*Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if d := selectDevice(devices, false); d != nil {
		return d, nil
	}

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	rules := []string{
		"type='signal',interface='" + propertiesIface + "',member='PropertiesChanged',arg0='" + deviceIface + "'",
		"type='signal',interface='" + objectManagerIfce + "',member='InterfacesAdded'",
	}
	for _, rule := range rules {
		if err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return nil, fmt.Errorf("failed to add match rule: %w", err)
		}
		defer c.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)
	}

	if err := c.startDiscovery(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.stopDiscovery(); err != nil {
			slog.Debug("stop discovery", "error", err)
		}
	}()

	// Devices already in range do not necessarily emit new signals.
	if d := selectDevice(devices, true); d != nil {
		return d, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())

		case sig := <-signals:
			path, ok := changedDevice(sig)
			if !ok || !c.owns(path) {
				continue
			}
			d, err := c.device(ctx, path)
			if err != nil {
				slog.Debug("read device properties", "device", path, "error", err)
				continue
			}
			if d.Candidate() {
				return d, nil
			}
		}
	}
}

// changedDevice extracts the device path from a discovery signal.
func changedDevice(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	switch sig.Name {
	case propertiesChanged:
		if len(sig.Body) < 1 {
			return "", false
		}
		if iface, ok := sig.Body[0].(string); !ok || iface != deviceIface {
			return "", false
		}
		return sig.Path, true

	case interfacesAdded:
		if len(sig.Body) < 2 {
			return "", false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return "", false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return "", false
		}
		if _, ok := ifaces[deviceIface]; !ok {
			return "", false
		}
		return path, true
	}
	return "", false
}

func (c *Client) startDiscovery(ctx context.Context) error {
	obj := c.conn.Object(bluezService, c.adapter)

	filter := map[string]interface{}{
		"Transport":     "auto",
		"DuplicateData": true,
	}
	if err := obj.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("failed to set discovery filter: %w", err)
	}
	if err := obj.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	return nil
}

func (c *Client) stopDiscovery() error {
	return c.conn.Object(bluezService, c.adapter).Call(adapterIface+".StopDiscovery", 0).Err
}

func (c *Client) device(ctx context.Context, path dbus.ObjectPath) (*Device, error) {
	var props map[string]dbus.Variant
	obj := c.conn.Object(bluezService, path)
	if err := obj.CallWithContext(ctx, propertiesIface+".GetAll", 0, deviceIface).Store(&props); err != nil {
		return nil, err
	}
	return deviceFromProperties(path, props, c.key), nil
}

// Refresh re-reads the device's properties.
func (c *Client) Refresh(ctx context.Context, d *Device) (*Device, error) {
	fresh, err := c.device(ctx, d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.Path, err)
	}
	return fresh, nil
}

// Connect connects the device's profiles. Already connected devices are
// left alone.
func (c *Client) Connect(ctx context.Context, d *Device) error {
	if d.Connected {
		return nil
	}
	obj := c.conn.Object(bluezService, d.Path)
	if err := obj.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		return fmt.Errorf("failed to connect %s: %w", d.DisplayName(), err)
	}
	d.Connected = true
	return nil
}

// Disconnect disconnects all of the device's profiles.
func (c *Client) Disconnect(ctx context.Context, d *Device) error {
	obj := c.conn.Object(bluezService, d.Path)
	if err := obj.CallWithContext(ctx, deviceIface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", d.DisplayName(), err)
	}
	d.Connected = false
	return nil
}

// Close closes the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

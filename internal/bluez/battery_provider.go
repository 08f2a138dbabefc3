package bluez

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// BlueZ only shows batteries from a provider that implements the
// ObjectManager pattern: every battery object must be announced with
// InterfacesAdded on the provider root, and the provider must use the same
// bus connection for export, registration and signals.
const (
	batteryProviderManagerIface = "org.bluez.BatteryProviderManager1"
	batteryProviderIface        = "org.bluez.BatteryProvider1"
	providerPath                = "/org/podcompanion/battery"
	batterySource               = "podcompanion"
)

const providerIntrospection = `
<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
	<interface name="org.freedesktop.DBus.ObjectManager">
		<method name="GetManagedObjects">
			<arg name="objects" type="a{oa{sa{sv}}}" direction="out"/>
		</method>
		<signal name="InterfacesAdded">
			<arg name="object_path" type="o"/>
			<arg name="interfaces_and_properties" type="a{sa{sv}}"/>
		</signal>
		<signal name="InterfacesRemoved">
			<arg name="object_path" type="o"/>
			<arg name="interfaces" type="as"/>
		</signal>
	</interface>
</node>`

const batteryIntrospection = `
<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
	<interface name="org.bluez.BatteryProvider1">
		<property name="Percentage" type="y" access="read"/>
		<property name="Device" type="o" access="read"/>
		<property name="Source" type="s" access="read"/>
	</interface>
	<interface name="org.freedesktop.DBus.Properties">
		<method name="Get">
			<arg name="interface_name" type="s" direction="in"/>
			<arg name="property_name" type="s" direction="in"/>
			<arg name="value" type="v" direction="out"/>
		</method>
		<method name="GetAll">
			<arg name="interface_name" type="s" direction="in"/>
			<arg name="properties" type="a{sv}" direction="out"/>
		</method>
	</interface>
</node>`

// Battery is one battery object exported to BlueZ.
type Battery struct {
	mu         sync.RWMutex
	path       dbus.ObjectPath
	device     dbus.ObjectPath
	percentage uint8
}

func (b *Battery) properties() map[string]dbus.Variant {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]dbus.Variant{
		"Percentage": dbus.MakeVariant(b.percentage),
		"Device":     dbus.MakeVariant(b.device),
		"Source":     dbus.MakeVariant(batterySource),
	}
}

// Get implements org.freedesktop.DBus.Properties.Get.
func (b *Battery) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	if iface != batteryProviderIface {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
	}
	v, ok := b.properties()[property]
	if !ok {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []interface{}{property})
	}
	return v, nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll.
func (b *Battery) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != batteryProviderIface {
		return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
	}
	return b.properties(), nil
}

// Set implements org.freedesktop.DBus.Properties.Set. All properties are
// read-only.
func (b *Battery) Set(iface, property string, value dbus.Variant) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []interface{}{property})
}

// BatteryProvider exports battery levels through BlueZ's
// BatteryProviderManager1.
type BatteryProvider struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath

	mu        sync.RWMutex
	batteries map[string]*Battery
}

// NewBatteryProvider opens a bus connection, exports the provider root and
// registers it with the adapter.
func NewBatteryProvider(adapter string) (*BatteryProvider, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	bp := &BatteryProvider{
		conn:      conn,
		adapter:   dbus.ObjectPath("/org/bluez/" + adapter),
		batteries: make(map[string]*Battery),
	}

	if err := bp.export(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export provider: %w", err)
	}

	obj := conn.Object(bluezService, bp.adapter)
	if err := obj.Call(batteryProviderManagerIface+".RegisterBatteryProvider", 0, dbus.ObjectPath(providerPath)).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register battery provider: %w", err)
	}

	return bp, nil
}

func (bp *BatteryProvider) export() error {
	if err := bp.conn.Export(bp, providerPath, objectManagerIfce); err != nil {
		return err
	}
	return bp.conn.Export(introspect.Introspectable(providerIntrospection), providerPath, "org.freedesktop.DBus.Introspectable")
}

// GetManagedObjects implements org.freedesktop.DBus.ObjectManager.
func (bp *BatteryProvider) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()

	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(bp.batteries))
	for _, b := range bp.batteries {
		objects[b.path] = map[string]map[string]dbus.Variant{
			batteryProviderIface: b.properties(),
		}
	}
	return objects, nil
}

// Set publishes the battery level for a device, adding the battery object
// on first use.
func (bp *BatteryProvider) Set(name string, percentage uint8, device dbus.ObjectPath) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if b, ok := bp.batteries[name]; ok && b.device == device {
		return bp.update(b, percentage)
	}
	if _, ok := bp.batteries[name]; ok {
		if err := bp.remove(name); err != nil {
			return err
		}
	}
	return bp.add(name, percentage, device)
}

func (bp *BatteryProvider) add(name string, percentage uint8, device dbus.ObjectPath) error {
	b := &Battery{
		path:       dbus.ObjectPath(providerPath + "/" + name),
		device:     device,
		percentage: percentage,
	}

	if err := bp.conn.Export(b, b.path, propertiesIface); err != nil {
		return err
	}
	if err := bp.conn.Export(introspect.Introspectable(batteryIntrospection), b.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return err
	}
	bp.batteries[name] = b

	ifaces := map[string]map[string]dbus.Variant{batteryProviderIface: b.properties()}
	if err := bp.conn.Emit(providerPath, objectManagerIfce+".InterfacesAdded", b.path, ifaces); err != nil {
		return fmt.Errorf("failed to emit InterfacesAdded signal: %w", err)
	}
	return nil
}

func (bp *BatteryProvider) update(b *Battery, percentage uint8) error {
	b.mu.Lock()
	unchanged := b.percentage == percentage
	b.percentage = percentage
	b.mu.Unlock()
	if unchanged {
		return nil
	}

	changes := map[string]dbus.Variant{"Percentage": dbus.MakeVariant(percentage)}
	return bp.conn.Emit(b.path, propertiesChanged, batteryProviderIface, changes, []string{})
}

// Remove withdraws a battery object.
func (bp *BatteryProvider) Remove(name string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.remove(name)
}

func (bp *BatteryProvider) remove(name string) error {
	b, ok := bp.batteries[name]
	if !ok {
		return nil
	}

	if err := bp.conn.Emit(providerPath, objectManagerIfce+".InterfacesRemoved", b.path, []string{batteryProviderIface}); err != nil {
		return fmt.Errorf("failed to emit InterfacesRemoved signal: %w", err)
	}
	bp.conn.Export(nil, b.path, propertiesIface)
	bp.conn.Export(nil, b.path, "org.freedesktop.DBus.Introspectable")
	delete(bp.batteries, name)
	return nil
}

// Close unregisters the provider and closes the bus connection.
func (bp *BatteryProvider) Close() error {
	obj := bp.conn.Object(bluezService, bp.adapter)
	err := obj.Call(batteryProviderManagerIface+".UnregisterBatteryProvider", 0, dbus.ObjectPath(providerPath)).Err
	if cerr := bp.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

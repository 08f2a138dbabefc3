package bluez

import (
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"

	"podcompanion/internal/ble"
	"podcompanion/internal/model"
)

// Device is a snapshot of an org.bluez.Device1 object.
type Device struct {
	Path      dbus.ObjectPath
	Address   string
	Alias     string
	Name      string
	Connected bool
	Paired    bool
	RSSI      int16

	// ManufacturerData maps company IDs to advertisement payloads.
	ManufacturerData map[uint16][]byte

	// Proximity holds the decoded Apple proximity message, nil if the device
	// does not advertise one.
	Proximity *ble.Proximity
}

// DisplayName returns the alias, falling back to the name and address.
func (d *Device) DisplayName() string {
	switch {
	case d.Alias != "":
		return d.Alias
	case d.Name != "":
		return d.Name
	default:
		return d.Address
	}
}

// Discovered converts the snapshot into the resolver's input.
func (d *Device) Discovered() model.DiscoveredDevice {
	return model.DiscoveredDevice{
		Name:             d.DisplayName(),
		ManufacturerData: d.ManufacturerData,
	}
}

// IsAccessory reports whether the device is an AirPods accessory: it
// broadcasts a proximity pairing message or its name says AirPods. Any
// Apple device carries company 0x004C data, so that alone does not count,
// and the model resolver is only consulted once this holds.
func (d *Device) IsAccessory() bool {
	if d.Proximity != nil {
		return true
	}
	return strings.Contains(strings.ToLower(d.DisplayName()), "airpods")
}

// Candidate reports whether Scan may pick the device: an accessory that is
// connected or paired. Unpaired AirPods nearby belong to someone else;
// connecting them would start pairing.
func (d *Device) Candidate() bool {
	return d.IsAccessory() && (d.Connected || d.Paired)
}

// InRange reports whether BlueZ has seen the device advertise or is
// connected to it.
func (d *Device) InRange() bool {
	return d.Connected || d.RSSI != 0
}

// deviceFromProperties builds a Device from Device1 properties. The
// encryption key is optional; with a key the accurate battery block is
// decrypted.
func deviceFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant, key []byte) *Device {
	d := &Device{
		Path:             path,
		Address:          stringProp(props, "Address"),
		Alias:            stringProp(props, "Alias"),
		Name:             stringProp(props, "Name"),
		Connected:        boolProp(props, "Connected"),
		Paired:           boolProp(props, "Paired"),
		ManufacturerData: manufacturerData(props),
	}
	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			d.RSSI = rssi
		}
	}

	if data, ok := d.ManufacturerData[model.AppleCompanyID]; ok {
		p, err := ble.ParseProximity(data)
		if err == nil {
			if key != nil {
				if err := p.Decrypt(key); err != nil {
					slog.Debug("proximity decrypt failed", "device", path, "error", err)
				}
			}
			d.Proximity = p
		}
	}

	return d
}

func manufacturerData(props map[string]dbus.Variant) map[uint16][]byte {
	v, ok := props["ManufacturerData"]
	if !ok {
		return nil
	}
	raw, ok := v.Value().(map[uint16]dbus.Variant)
	if !ok {
		return nil
	}

	out := make(map[uint16][]byte, len(raw))
	for id, payload := range raw {
		if b, ok := payload.Value().([]byte); ok {
			out[id] = b
		}
	}
	return out
}

func stringProp(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

package model

import "strings"

// AppleCompanyID is the Bluetooth SIG company identifier for Apple.
const AppleCompanyID uint16 = 0x004C

// DiscoveredDevice is what a discovery step observed about an accessory.
type DiscoveredDevice struct {
	// Name is the advertised name or alias, e.g. "Sasha's AirPods Pro".
	Name string
	// ManufacturerData maps a company ID to its manufacturer-specific
	// advertisement payload. May be nil.
	ManufacturerData map[uint16][]byte
}

// VendorData returns the payload advertised under Apple's company ID.
func (d DiscoveredDevice) VendorData() ([]byte, bool) {
	data, ok := d.ManufacturerData[AppleCompanyID]
	return data, ok && len(data) > 0
}

// VendorDecoder inspects Apple manufacturer data for an explicit product
// code. It reports ok=false when the payload carries no usable code, in
// which case name matching decides.
type VendorDecoder func(data []byte) (m Model, ok bool)

// Resolver maps discovered devices to models.
//
// The zero value only matches on the advertised name.
type Resolver struct {
	// Vendor is consulted before name matching when the device carries Apple
	// manufacturer data. The byte layout of the product code is not pinned
	// down, so no decoder is installed by default.
	Vendor VendorDecoder
}

type nameRule struct {
	match func(name string) bool
	model Model
}

func containsAny(subs ...string) func(string) bool {
	return func(name string) bool {
		for _, s := range subs {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
}

// nameRules are evaluated in order and the first match wins. Every AirPods
// name contains "airpods", so the generic rule must stay last.
var nameRules = []nameRule{
	{containsAny("max"), Max},
	{containsAny("pro"), Pro},
	{containsAny("3rd", "gen 3"), Gen3},
	{containsAny("airpods"), Gen1or2},
}

// Resolve classifies the device. It never fails; unrecognized devices are
// Unknown.
func (r Resolver) Resolve(device DiscoveredDevice) Model {
	if r.Vendor != nil {
		if data, ok := device.VendorData(); ok {
			if m, ok := r.Vendor(data); ok {
				return m
			}
		}
	}
	return resolveName(device.Name)
}

// Resolve classifies the device by its advertised name.
func Resolve(device DiscoveredDevice) Model {
	return Resolver{}.Resolve(device)
}

func resolveName(name string) Model {
	name = strings.ToLower(name)
	for _, rule := range nameRules {
		if rule.match(name) {
			return rule.model
		}
	}
	return Unknown
}

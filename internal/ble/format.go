package ble

import (
	"fmt"
	"strings"
)

// FormatLevel renders a battery level for display, "--" when unknown.
func FormatLevel(level *uint8, charging bool) string {
	if level == nil {
		return "--"
	}
	s := fmt.Sprintf("%d%%", *level)
	if charging {
		s += " (Charging)"
	}
	return s
}

// String returns a multi-line human-readable summary.
func (p *Proximity) String() string {
	var b strings.Builder

	accuracy := "approximate, ~10%"
	if p.Accurate {
		accuracy = "decrypted, 1%"
	}
	fmt.Fprintf(&b, "Battery (%s):\n", accuracy)

	left := FormatLevel(p.LeftBattery, p.LeftCharging)
	if p.LeftInEar {
		left += " [In Ear]"
	}
	right := FormatLevel(p.RightBattery, p.RightCharging)
	if p.RightInEar {
		right += " [In Ear]"
	}
	fmt.Fprintf(&b, "  Left:  %s\n", left)
	fmt.Fprintf(&b, "  Right: %s\n", right)
	fmt.Fprintf(&b, "  Case:  %s\n", FormatLevel(p.CaseBattery, p.CaseCharging))

	lid := "Closed"
	if p.LidOpen {
		lid = "Open"
	}
	fmt.Fprintf(&b, "  Lid:   %s\n", lid)
	fmt.Fprintf(&b, "  Product: 0x%04X\n", p.ProductCode)
	fmt.Fprintf(&b, "  Color: %s\n", ColorName(p.Color))

	primary := "Left"
	if p.Flipped {
		primary = "Right"
	}
	fmt.Fprintf(&b, "  Primary pod: %s\n", primary)
	fmt.Fprintf(&b, "  Raw: % x", p.Raw)

	return b.String()
}

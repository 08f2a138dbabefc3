package session

import (
	"time"

	"github.com/google/uuid"

	"podcompanion/internal/ble"
	"podcompanion/internal/model"
)

// Status is the connection status shown to the user.
type Status int

const (
	Disconnected Status = iota
	Scanning
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Scanning:
		return "Scanning..."
	case Connecting:
		return "Connecting..."
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// NoiseMode is the noise control mode.
type NoiseMode string

const (
	NoiseOff          NoiseMode = "off"
	Transparency      NoiseMode = "transparency"
	NoiseCancellation NoiseMode = "noise_cancelling"
)

// Supported reports whether a model with caps can use the mode.
func (m NoiseMode) Supported(caps model.Capabilities) bool {
	switch m {
	case NoiseOff:
		return true
	case Transparency:
		return caps.Transparency
	case NoiseCancellation:
		return caps.NoiseCancellation
	default:
		return false
	}
}

// SpatialMode is the spatial audio mode.
type SpatialMode string

const (
	SpatialOff         SpatialMode = "off"
	SpatialFixed       SpatialMode = "fixed"
	SpatialHeadTracked SpatialMode = "head_tracked"
)

// Supported reports whether a model with caps can use the mode.
func (m SpatialMode) Supported(caps model.Capabilities) bool {
	switch m {
	case SpatialOff:
		return true
	case SpatialFixed, SpatialHeadTracked:
		return caps.SpatialAudio
	default:
		return false
	}
}

// Battery is the battery state of the connected accessory.
type Battery struct {
	Left  *uint8 // nil if unknown
	Right *uint8 // nil if unknown
	Case  *uint8 // nil if unknown

	LeftCharging  bool
	RightCharging bool
	CaseCharging  bool

	// Accurate is true for 1% readings, false for the 10% steps of the
	// plain advertisement.
	Accurate bool
}

func batteryFrom(p *ble.Proximity) *Battery {
	if p == nil {
		return nil
	}
	return &Battery{
		Left:          copyLevel(p.LeftBattery),
		Right:         copyLevel(p.RightBattery),
		Case:          copyLevel(p.CaseBattery),
		LeftCharging:  p.LeftCharging,
		RightCharging: p.RightCharging,
		CaseCharging:  p.CaseCharging,
		Accurate:      p.Accurate,
	}
}

func (b *Battery) clone() *Battery {
	if b == nil {
		return nil
	}
	out := *b
	out.Left = copyLevel(b.Left)
	out.Right = copyLevel(b.Right)
	out.Case = copyLevel(b.Case)
	return &out
}

func copyLevel(level *uint8) *uint8 {
	if level == nil {
		return nil
	}
	v := *level
	return &v
}

// Lowest returns the lowest known earbud level. The case is ignored since
// it is not worn.
func (b *Battery) Lowest() (uint8, bool) {
	switch {
	case b.Left == nil && b.Right == nil:
		return 0, false
	case b.Left == nil:
		return *b.Right, true
	case b.Right == nil:
		return *b.Left, true
	default:
		return min(*b.Left, *b.Right), true
	}
}

// Session describes one successful connection.
type Session struct {
	ID           uuid.UUID
	Name         string
	Address      string
	Path         string
	Model        model.Model
	Capabilities model.Capabilities
	ConnectedAt  time.Time
}

// State is a snapshot of the coordinator.
type State struct {
	Status  Status
	Session *Session // nil unless connected
	// LastModel is the model of the most recent successful connection. It
	// survives disconnects.
	LastModel model.Model
	Noise     NoiseMode
	Spatial   SpatialMode
	Battery   *Battery // nil if unknown
}

// Capabilities returns the capabilities of the connected model; nothing is
// supported while disconnected.
func (s State) Capabilities() model.Capabilities {
	if s.Session == nil {
		return model.Capabilities{}
	}
	return s.Session.Capabilities
}

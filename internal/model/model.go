// Package model identifies AirPods hardware variants and the audio controls
// each variant supports.
//
// Identification works from what a discovery step can observe about an
// accessory: its advertised name and, optionally, manufacturer-specific
// advertisement data. The result is always one of the Model constants;
// anything that cannot be classified is Unknown, which exposes no advanced
// controls.
package model

// Model is the canonical hardware variant of an accessory.
// The zero value is Unknown.
type Model int

const (
	Unknown Model = iota
	Gen1or2
	Gen3
	Pro // covers Pro 1st and 2nd gen
	Max
)

// Models lists every defined identifier.
var Models = []Model{Gen1or2, Gen3, Pro, Max, Unknown}

// String returns the stable key for the model. It is safe to persist and
// can be turned back into a Model with ParseModel.
func (m Model) String() string {
	switch m {
	case Gen1or2:
		return "gen1_2"
	case Gen3:
		return "gen3"
	case Pro:
		return "pro"
	case Max:
		return "max"
	default:
		return "unknown"
	}
}

// ParseModel returns the model for a key produced by String.
// Unrecognized keys yield Unknown.
func ParseModel(key string) Model {
	for _, m := range Models {
		if m.String() == key {
			return m
		}
	}
	return Unknown
}

// DisplayName returns the user-facing name of the model.
func (m Model) DisplayName() string {
	switch m {
	case Gen1or2:
		return "AirPods (Gen 1/2)"
	case Gen3:
		return "AirPods (Gen 3)"
	case Pro:
		return "AirPods Pro"
	case Max:
		return "AirPods Max"
	default:
		return "AirPods"
	}
}

// IconName returns the freedesktop icon name used to represent the model.
func (m Model) IconName() string {
	switch m {
	case Max:
		return "audio-headphones-symbolic"
	case Gen1or2, Gen3, Pro:
		return "audio-headset-symbolic"
	default:
		return "bluetooth-symbolic"
	}
}

package model

// Capabilities lists the audio controls a model supports.
type Capabilities struct {
	NoiseCancellation bool
	Transparency      bool
	SpatialAudio      bool
}

// NoiseControl reports whether any noise control mode besides Off is
// available.
func (c Capabilities) NoiseControl() bool {
	return c.NoiseCancellation || c.Transparency
}

var capabilities = map[Model]Capabilities{
	Gen1or2: {},
	Gen3:    {SpatialAudio: true},
	Pro:     {NoiseCancellation: true, Transparency: true, SpatialAudio: true},
	Max:     {NoiseCancellation: true, Transparency: true, SpatialAudio: true},
	Unknown: {},
}

// CapabilitiesOf returns the capability record for m. Values outside the
// defined models get the Unknown record.
func CapabilitiesOf(m Model) Capabilities {
	if c, ok := capabilities[m]; ok {
		return c
	}
	return capabilities[Unknown]
}

// Package ble decodes the Apple Continuity proximity pairing message that
// AirPods broadcast in their BLE manufacturer data (company ID 0x004C).
//
// The plaintext part of the message carries approximate status: battery
// levels in 10% steps, charging and in-ear flags and the lid state. A
// trailing 16-byte block is AES encrypted and carries 1% accurate battery
// levels; it can be read with the accessory's encryption key (see
// DecryptBlock).
//
// Layout of the payload following the type (0x07) and length bytes:
//
//	0     prefix (0x01)
//	1-2   product code
//	3     status: primary pod, pod in case, in-ear bits
//	4     pod battery nibbles
//	5     charging bits | case battery nibble
//	6     lid open counter
//	7     color
//	8     lid byte
//	9...  encrypted block (last 16 bytes)
//
// Based on the reverse engineering done by LibrePods and OpenPods.
package ble

import (
	"errors"
	"fmt"
)

const (
	proximityType   = 0x07
	proximityPrefix = 0x01

	minPayloadLen = 10
	// EncryptedLen is the size of the encrypted battery block.
	EncryptedLen = 16
)

var (
	// ErrNotProximity is returned for manufacturer data that is not a
	// proximity pairing message.
	ErrNotProximity = errors.New("not a proximity pairing message")
	// ErrTruncated is returned when the message is shorter than its header
	// or the minimum payload.
	ErrTruncated = errors.New("proximity message truncated")
)

// Proximity is a decoded proximity pairing message.
//
// Left and right always refer to the physical pods, independent of which
// pod is currently primary.
type Proximity struct {
	ProductCode uint16
	Status      uint8

	LeftBattery  *uint8 // nil if unknown
	RightBattery *uint8 // nil if unknown
	CaseBattery  *uint8 // nil if unknown

	LeftCharging  bool
	RightCharging bool
	CaseCharging  bool

	LeftInEar  bool
	RightInEar bool
	LidOpen    bool

	Color           uint8
	ConnectionState uint8
	Flipped         bool // right pod is primary

	// Accurate is set once the decrypted block has been applied.
	Accurate bool

	Raw []byte
}

// ParseProximity decodes Apple manufacturer data holding a proximity
// pairing message.
func ParseProximity(data []byte) (*Proximity, error) {
	if len(data) < 2 {
		return nil, ErrTruncated
	}
	if data[0] != proximityType {
		return nil, fmt.Errorf("%w: type 0x%02X", ErrNotProximity, data[0])
	}

	n := int(data[1])
	if len(data) < 2+n || n < minPayloadLen {
		return nil, fmt.Errorf("%w: %d of %d payload bytes", ErrTruncated, len(data)-2, n)
	}
	payload := data[2 : 2+n]
	if payload[0] != proximityPrefix {
		return nil, fmt.Errorf("%w: prefix 0x%02X", ErrNotProximity, payload[0])
	}

	status := payload[3]
	primaryLeft := status>>5&0x01 == 1
	thisInCase := status>>6&0x01 == 1

	p := &Proximity{
		ProductCode:     uint16(payload[1])<<8 | uint16(payload[2]),
		Status:          status,
		Color:           payload[7],
		LidOpen:         payload[8]>>3&0x01 == 0,
		ConnectionState: payload[9],
		Flipped:         !primaryLeft,
		Raw:             append([]byte(nil), payload...),
	}

	pods := payload[4]
	hi, lo := pods>>4&0x0F, pods&0x0F
	if p.Flipped {
		hi, lo = lo, hi
	}
	p.LeftBattery = DecodeBattery(hi)
	p.RightBattery = DecodeBattery(lo)

	// | ? | case | left | right | case battery nibble |
	flags := payload[5]
	p.CaseBattery = DecodeBattery(flags & 0x0F)
	p.CaseCharging = flags>>6&0x01 == 1
	p.RightCharging = flags>>5&0x01 == 1
	p.LeftCharging = flags>>4&0x01 == 1
	if p.Flipped {
		p.LeftCharging, p.RightCharging = p.RightCharging, p.LeftCharging
	}

	p.LeftInEar = status&0x08 != 0
	p.RightInEar = status&0x02 != 0
	if primaryLeft != thisInCase {
		p.LeftInEar, p.RightInEar = p.RightInEar, p.LeftInEar
	}

	return p, nil
}

// EncryptedBlock returns the trailing encrypted block, or nil if the
// message is too short to carry one.
func (p *Proximity) EncryptedBlock() []byte {
	if len(p.Raw) < minPayloadLen-1+EncryptedLen {
		return nil
	}
	return p.Raw[len(p.Raw)-EncryptedLen:]
}

// DecodeBattery decodes a battery nibble:
// 0x0-0x9 are 0-90% in 10% steps, 0xA-0xE are 100% and 0xF is unknown.
func DecodeBattery(nibble uint8) *uint8 {
	var level uint8
	switch {
	case nibble <= 0x9:
		level = nibble * 10
	case nibble <= 0xE:
		level = 100
	default:
		return nil
	}
	return &level
}

var colorNames = map[uint8]string{
	0x00: "White",
	0x01: "Black",
	0x02: "Red",
	0x03: "Blue",
	0x04: "Pink",
	0x05: "Gray",
	0x06: "Silver",
	0x07: "Gold",
	0x08: "Rose Gold",
	0x09: "Space Gray",
	0x0A: "Dark Blue",
	0x0B: "Light Blue",
	0x0C: "Yellow",
}

// ColorName returns the name of a color code.
func ColorName(color uint8) string {
	if name, ok := colorNames[color]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", color)
}

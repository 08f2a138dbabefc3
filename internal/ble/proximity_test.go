package ble

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Captured from AirPods Pro 3.
var capturedAdvertisement = []byte{
	0x07, 0x19,
	0x01, 0x27, 0x20, 0x0b, 0x99, 0x8f, 0x11, 0x00, 0x05,
	0x63, 0xfc, 0xfb, 0xb4, 0x39, 0x01, 0x1c, 0x61, 0xe7,
	0xe4, 0xaa, 0x95, 0x83, 0x2c, 0x5b, 0x57,
}

func message(status, pods, flags byte) []byte {
	return []byte{0x07, 0x0a, 0x01, 0x0e, 0x20, status, pods, flags, 0x00, 0x02, 0x00, 0x00}
}

func level(v uint8) *uint8 { return &v }

func TestParseProximityCaptured(t *testing.T) {
	p, err := ParseProximity(capturedAdvertisement)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x2720), p.ProductCode)
	assert.True(t, p.Flipped)
	assert.Equal(t, level(90), p.LeftBattery)
	assert.Equal(t, level(90), p.RightBattery)
	assert.Nil(t, p.CaseBattery)
	assert.False(t, p.LeftCharging)
	assert.False(t, p.RightCharging)
	assert.False(t, p.CaseCharging)
	assert.True(t, p.LeftInEar)
	assert.True(t, p.RightInEar)
	assert.True(t, p.LidOpen)
	assert.Equal(t, "White", ColorName(p.Color))
	assert.False(t, p.Accurate)
	assert.Len(t, p.Raw, 25)
	assert.Len(t, p.EncryptedBlock(), EncryptedLen)
}

func TestParseProximityOrientation(t *testing.T) {
	t.Run("left primary", func(t *testing.T) {
		p, err := ParseProximity(message(0x20, 0x35, 0x10))
		require.NoError(t, err)
		assert.False(t, p.Flipped)
		assert.Equal(t, level(30), p.LeftBattery)
		assert.Equal(t, level(50), p.RightBattery)
		assert.True(t, p.LeftCharging)
		assert.False(t, p.RightCharging)
	})

	t.Run("right primary", func(t *testing.T) {
		p, err := ParseProximity(message(0x00, 0x35, 0x10))
		require.NoError(t, err)
		assert.True(t, p.Flipped)
		assert.Equal(t, level(50), p.LeftBattery)
		assert.Equal(t, level(30), p.RightBattery)
		assert.False(t, p.LeftCharging)
		assert.True(t, p.RightCharging)
	})

	t.Run("case", func(t *testing.T) {
		p, err := ParseProximity(message(0x20, 0xff, 0x47))
		require.NoError(t, err)
		assert.Nil(t, p.LeftBattery)
		assert.Nil(t, p.RightBattery)
		assert.Equal(t, level(70), p.CaseBattery)
		assert.True(t, p.CaseCharging)
	})

	t.Run("in ear swap", func(t *testing.T) {
		// left primary, this pod out of the case: bits are swapped
		p, err := ParseProximity(message(0x20|0x08, 0x00, 0x00))
		require.NoError(t, err)
		assert.False(t, p.LeftInEar)
		assert.True(t, p.RightInEar)
	})
}

func TestParseProximityErrors(t *testing.T) {
	_, err := ParseProximity([]byte{0x07})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ParseProximity([]byte{0x10, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05})
	assert.ErrorIs(t, err, ErrNotProximity)

	_, err = ParseProximity([]byte{0x07, 0x19, 0x01, 0x27})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ParseProximity([]byte{0x07, 0x03, 0x01, 0x27, 0x20})
	assert.ErrorIs(t, err, ErrTruncated)

	bad := message(0x20, 0x00, 0x00)
	bad[2] = 0x02
	_, err = ParseProximity(bad)
	assert.ErrorIs(t, err, ErrNotProximity)
}

func TestShortMessageHasNoEncryptedBlock(t *testing.T) {
	p, err := ParseProximity(message(0x20, 0x00, 0x00))
	require.NoError(t, err)
	assert.Nil(t, p.EncryptedBlock())
	assert.ErrorIs(t, p.Decrypt(make([]byte, 16)), ErrTruncated)
}

func TestDecodeBattery(t *testing.T) {
	for n := uint8(0); n <= 9; n++ {
		assert.Equal(t, level(n*10), DecodeBattery(n))
	}
	for n := uint8(0xA); n <= 0xE; n++ {
		assert.Equal(t, level(100), DecodeBattery(n))
	}
	assert.Nil(t, DecodeBattery(0xF))
}

func encryptBlock(t *testing.T, key, plain []byte) []byte {
	t.Helper()
	c, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(plain))
	c.Encrypt(out, plain)
	return out
}

func TestDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef")
	plain := []byte{0x01, 0x80 | 57, 83, 0x80 | 100, 0x2D, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	adv := append([]byte{0x07, 0x19, 0x01, 0x24, 0x20, 0x00, 0x99, 0x8f, 0x11, 0x00, 0x05}, encryptBlock(t, key, plain)...)

	p, err := ParseProximity(adv)
	require.NoError(t, err)
	require.True(t, p.Flipped)

	require.NoError(t, p.Decrypt(key))
	assert.True(t, p.Accurate)
	// flipped: first pod is the right one
	assert.Equal(t, level(83), p.LeftBattery)
	assert.False(t, p.LeftCharging)
	assert.Equal(t, level(57), p.RightBattery)
	assert.True(t, p.RightCharging)
	assert.Equal(t, level(100), p.CaseBattery)
	assert.True(t, p.CaseCharging)
}

func TestDecryptWrongKey(t *testing.T) {
	plain := []byte{0x01, 50, 50, 50, 0x2D, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	block := encryptBlock(t, []byte("0123456789abcdef"), plain)

	_, err := DecryptBlock(block, []byte("fedcba9876543210"))
	assert.ErrorIs(t, err, ErrBadKey)

	_, err = DecryptBlock(block[:8], []byte("0123456789abcdef"))
	assert.Error(t, err)
	_, err = DecryptBlock(block, []byte("short"))
	assert.Error(t, err)
}

func TestApplyDecryptedUnknownCase(t *testing.T) {
	p := &Proximity{}
	require.NoError(t, p.ApplyDecrypted([]byte{0, 40, 60, 0xFF, 0x2D, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, level(40), p.LeftBattery)
	assert.Equal(t, level(60), p.RightBattery)
	assert.Nil(t, p.CaseBattery)
	assert.False(t, p.CaseCharging)

	assert.Error(t, p.ApplyDecrypted([]byte{0, 1}))
}

func TestFormatLevel(t *testing.T) {
	assert.Equal(t, "--", FormatLevel(nil, true))
	assert.Equal(t, "40%", FormatLevel(level(40), false))
	assert.Equal(t, "40% (Charging)", FormatLevel(level(40), true))
}

func TestString(t *testing.T) {
	p, err := ParseProximity(capturedAdvertisement)
	require.NoError(t, err)
	s := p.String()
	assert.Contains(t, s, "Left:  90% [In Ear]")
	assert.Contains(t, s, "Case:  --")
	assert.Contains(t, s, "Product: 0x2720")
	assert.Contains(t, s, "Primary pod: Right")
}

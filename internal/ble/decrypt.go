package ble

import (
	"crypto/aes"
	"errors"
	"fmt"
)

// ErrBadKey is returned when a block decrypts to data that fails the magic
// byte check. AES itself cannot tell a wrong key apart.
var ErrBadKey = errors.New("decrypted block failed validation, wrong key")

// DecryptBlock decrypts the 16-byte encrypted block of a proximity message
// with the accessory's encryption key (ENC_KEY).
//
// The block is a single AES-ECB block. A correct decryption has a zero
// upper nibble in byte 0 and 0x2D in byte 4.
func DecryptBlock(block, key []byte) ([]byte, error) {
	if len(block) != EncryptedLen {
		return nil, fmt.Errorf("encrypted block must be %d bytes, got %d", EncryptedLen, len(block))
	}
	if len(key) != aes.BlockSize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", aes.BlockSize, len(key))
	}

	cipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	plain := make([]byte, EncryptedLen)
	cipher.Decrypt(plain, block)

	if plain[0]&0xF0 != 0 || plain[4] != 0x2D {
		return nil, ErrBadKey
	}
	return plain, nil
}

// ApplyDecrypted replaces the approximate battery state with the values
// from a decrypted block.
//
//	byte 1  first pod:  bit 7 charging, bits 0-6 level
//	byte 2  second pod: bit 7 charging, bits 0-6 level
//	byte 3  case:       bit 7 charging, bits 0-6 level
//
// The first pod is the left one unless the message is flipped. Levels
// above 100 mean unknown.
func (p *Proximity) ApplyDecrypted(plain []byte) error {
	if len(plain) != EncryptedLen {
		return fmt.Errorf("decrypted block must be %d bytes, got %d", EncryptedLen, len(plain))
	}

	first, firstCharging := decodeAccurate(plain[1])
	second, secondCharging := decodeAccurate(plain[2])
	if p.Flipped {
		first, second = second, first
		firstCharging, secondCharging = secondCharging, firstCharging
	}
	p.LeftBattery, p.LeftCharging = first, firstCharging
	p.RightBattery, p.RightCharging = second, secondCharging

	p.CaseBattery, p.CaseCharging = decodeAccurate(plain[3])
	if p.CaseBattery == nil {
		p.CaseCharging = false
	}

	p.Accurate = true
	return nil
}

func decodeAccurate(b byte) (*uint8, bool) {
	level := b & 0x7F
	if level > 100 {
		return nil, false
	}
	return &level, b&0x80 != 0
}

// Decrypt decrypts the message's encrypted block with key and applies it.
func (p *Proximity) Decrypt(key []byte) error {
	block := p.EncryptedBlock()
	if block == nil {
		return fmt.Errorf("%w: no encrypted block", ErrTruncated)
	}
	plain, err := DecryptBlock(block, key)
	if err != nil {
		return err
	}
	return p.ApplyDecrypted(plain)
}

// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// KEM/KDF/AEAD codepoints (spec §4.1). Any other u16 value decodes to an
// Unimplemented variant rather than an error, so peers can negotiate.
const (
	KemX25519HkdfSha256 uint16 = 0x0020
	KdfHkdfSha256        uint16 = 0x0001
	AeadAes128Gcm        uint16 = 0x0001
)

// HpkeConfig is an aggregator's published HPKE receiver configuration.
type HpkeConfig struct {
	ID        uint8
	KemID     uint16
	KdfID     uint16
	AeadID    uint16
	PublicKey []byte
}

// KemRecognized reports whether KemID is a codepoint this adapter
// implements, as opposed to an Unimplemented value a peer sent.
func (c HpkeConfig) KemRecognized() bool  { return c.KemID == KemX25519HkdfSha256 }
func (c HpkeConfig) KdfRecognized() bool  { return c.KdfID == KdfHkdfSha256 }
func (c HpkeConfig) AeadRecognized() bool { return c.AeadID == AeadAes128Gcm }

func (c HpkeConfig) Encode() []byte {
	p := codec.NewPacker(64)
	p.PackByte(c.ID)
	p.PackUint16(c.KemID)
	p.PackUint16(c.KdfID)
	p.PackUint16(c.AeadID)
	p.PackVarBytes(c.PublicKey)
	return p.Bytes
}

func DecodeHpkeConfig(b []byte) (HpkeConfig, error) {
	u := codec.NewUnpacker(b)
	id := u.UnpackByte()
	kemID := u.UnpackUint16()
	kdfID := u.UnpackUint16()
	aeadID := u.UnpackUint16()
	pub := u.UnpackVarBytes()
	if u.Err != nil {
		return HpkeConfig{}, u.Err
	}
	if !u.Done() {
		return HpkeConfig{}, codec.ErrUnexpectedValue
	}
	return HpkeConfig{ID: id, KemID: kemID, KdfID: kdfID, AeadID: aeadID, PublicKey: pub}, nil
}

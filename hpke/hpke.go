// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hpke adapts github.com/cloudflare/circl/hpke to spec §4.2's
// seal/open contract: KEM X25519-HKDF-SHA256 (0x0020), KDF HKDF-SHA256
// (0x0001), AEAD AES-128-GCM (0x0001). A config whose codepoints this
// package doesn't recognize decodes to an Unimplemented variant rather
// than an error, so peers can negotiate a shared config instead of one
// side aborting outright.
package hpke

import (
	"crypto/rand"
	"errors"

	circlhpke "github.com/cloudflare/circl/hpke"

	"github.com/luxfi/dap-aggregator/messages"
)

// ErrUnimplementedConfig is returned when a config names a KEM/KDF/AEAD
// codepoint this build doesn't recognize (spec §4.1 Unimplemented).
var ErrUnimplementedConfig = errors.New("hpke: unimplemented codepoint")

// ErrConfigMismatch is returned by Open when a ciphertext's config id
// doesn't match the receiver config it's being opened against.
var ErrConfigMismatch = errors.New("hpke: ciphertext config id does not match receiver config")

func suiteFor(cfg messages.HpkeConfig) (circlhpke.Suite, error) {
	if !cfg.KemRecognized() || !cfg.KdfRecognized() || !cfg.AeadRecognized() {
		return circlhpke.Suite{}, ErrUnimplementedConfig
	}
	return circlhpke.NewSuite(circlhpke.KEM(cfg.KemID), circlhpke.KDF(cfg.KdfID), circlhpke.AEAD(cfg.AeadID)), nil
}

// KeyPair is a generated HPKE receiver config plus its private key, the
// unit the HPKE config registry hands out and looks decryption keys up
// by.
type KeyPair struct {
	Config     messages.HpkeConfig
	PrivateKey []byte
}

// GenerateKeyPair creates a fresh X25519-HKDF-SHA256/HKDF-SHA256/AES-128-GCM
// key pair, registered under id.
func GenerateKeyPair(id uint8) (KeyPair, error) {
	suite := circlhpke.NewSuite(circlhpke.KEM_X25519_HKDF_SHA256, circlhpke.KDF_HKDF_SHA256, circlhpke.AEAD_AES128GCM)
	scheme := suite.KEM.Scheme()
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return KeyPair{}, err
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Config: messages.HpkeConfig{
			ID:        id,
			KemID:     messages.KemX25519HkdfSha256,
			KdfID:     messages.KdfHkdfSha256,
			AeadID:    messages.AeadAes128Gcm,
			PublicKey: pkBytes,
		},
		PrivateKey: skBytes,
	}, nil
}

// Seal encrypts plaintext to cfg's public key, returning the wire
// HpkeCiphertext (spec §4.2 seal).
func Seal(cfg messages.HpkeConfig, info, aad, plaintext []byte) (messages.HpkeCiphertext, error) {
	suite, err := suiteFor(cfg)
	if err != nil {
		return messages.HpkeCiphertext{}, err
	}
	pk, err := suite.KEM.Scheme().UnmarshalBinaryPublicKey(cfg.PublicKey)
	if err != nil {
		return messages.HpkeCiphertext{}, err
	}
	sender, err := suite.NewSender(pk, info)
	if err != nil {
		return messages.HpkeCiphertext{}, err
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return messages.HpkeCiphertext{}, err
	}
	payload, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return messages.HpkeCiphertext{}, err
	}
	return messages.HpkeCiphertext{ConfigID: cfg.ID, Enc: enc, Payload: payload}, nil
}

// Open decrypts ct using the receiver's cfg and private key, returning
// HpkeDecryptError-worthy errors on any AEAD/info/aad mismatch (spec
// §4.2 open, §4.3 rejection reason 3). The caller maps a non-nil error
// to TransitionFailure HpkeDecryptError, never a DapAbort.
func Open(cfg messages.HpkeConfig, privateKey []byte, ct messages.HpkeCiphertext, info, aad []byte) ([]byte, error) {
	if ct.ConfigID != cfg.ID {
		return nil, ErrConfigMismatch
	}
	suite, err := suiteFor(cfg)
	if err != nil {
		return nil, err
	}
	sk, err := suite.KEM.Scheme().UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	receiver, err := suite.NewReceiver(sk, info)
	if err != nil {
		return nil, err
	}
	opener, err := receiver.Setup(ct.Enc)
	if err != nil {
		return nil, err
	}
	return opener.Open(ct.Payload, aad)
}

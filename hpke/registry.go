// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hpke

import (
	"errors"
	"sync"

	"github.com/luxfi/dap-aggregator/messages"
)

// ErrConfigNotFound is returned when a registry lookup names an id with
// no registered key pair.
var ErrConfigNotFound = errors.New("hpke: config id not found")

// Registry holds an aggregator's HPKE receiver key pairs, indexed by
// config id, and serves the GET /hpke_config endpoint (spec §6) plus
// Open() lookups during report initialization.
type Registry struct {
	mu   sync.RWMutex
	keys map[uint8]KeyPair
	// active is the config id advertised to new clients; older ids are
	// kept around so in-flight reports sealed under them still decrypt.
	active uint8
	hasActive bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[uint8]KeyPair)}
}

// Add registers kp, making it the active config.
func (r *Registry) Add(kp KeyPair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[kp.Config.ID] = kp
	r.active = kp.Config.ID
	r.hasActive = true
}

// Config returns the registered config for id.
func (r *Registry) Config(id uint8) (messages.HpkeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kp, ok := r.keys[id]
	return kp.Config, ok
}

// ActiveConfig returns the config served to clients fetching
// GET /hpke_config.
func (r *Registry) ActiveConfig() (messages.HpkeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasActive {
		return messages.HpkeConfig{}, false
	}
	kp, ok := r.keys[r.active]
	return kp.Config, ok
}

// Open decrypts ct using the private key registered under ct.ConfigID.
// A config id with no registered key is reported as
// HpkeUnknownConfigId territory by the caller (spec §4.3 rejection
// reason 2), distinct from ErrUnimplementedConfig (a config that exists
// but names codepoints this build can't run).
func (r *Registry) Open(ct messages.HpkeCiphertext, info, aad []byte) ([]byte, error) {
	r.mu.RLock()
	kp, ok := r.keys[ct.ConfigID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrConfigNotFound
	}
	return Open(kp.Config, kp.PrivateKey, ct, info, aad)
}

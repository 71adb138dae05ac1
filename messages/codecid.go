// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messages

import "github.com/luxfi/dap-aggregator/codec"

// packID/unpackID encode the 32 raw bytes shared by every opaque identifier
// type; generics avoid writing the same four lines per ID type.
func packID[T ~[32]byte](p *codec.Packer, id T) {
	b := [32]byte(id)
	p.PackFixedBytes(b[:])
}

func unpackID[T ~[32]byte](u *codec.Unpacker) T {
	b := u.UnpackFixedBytes(32)
	var out [32]byte
	if u.Err == nil {
		copy(out[:], b)
	}
	return T(out)
}

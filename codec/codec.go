// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the deterministic, big-endian TLS-presentation-
// language framing used by every protocol message: fixed-width integers,
// 16-bit length-prefixed byte strings, and 16-bit count-prefixed vectors.
//
// Encoding is always canonical: encoding a decoded message reproduces the
// original bytes exactly, so peers can compare wire bytes instead of
// re-parsing when checking idempotency (see driver.Helper).
package codec

import "errors"

// Error is the sentinel family returned by Unpacker methods.
var (
	// ErrShortRead is returned when fewer bytes remain than the field requires.
	ErrShortRead = errors.New("codec: short read")
	// ErrUnexpectedValue is returned for an unrecognized discriminant tag,
	// for bytes left over after a message is decoded, and by Packer for a
	// byte string or vector too long for its 16-bit prefix. A length
	// prefix that claims more bytes than remain is ErrShortRead.
	ErrUnexpectedValue = errors.New("codec: unexpected value")
)

// Packer accumulates bytes for a single message. Once Err is set, every
// further Pack call is a no-op so callers can chain packs without checking
// errors after every field and test Err once at the end.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with capacity preallocated for size bytes.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

// PackByte packs a single byte.
func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

// PackFixedBytes packs raw bytes with no length prefix — used for the
// fixed-32-byte opaque identifiers and 32-byte checksums.
func (p *Packer) PackFixedBytes(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

// PackUint16 packs a big-endian u16.
func (p *Packer) PackUint16(v uint16) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(v>>8), byte(v))
}

// PackUint64 packs a big-endian u64, the canonical encoding of Time and of
// report_count in AggregateShareReq.
func (p *Packer) PackUint64(v uint64) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PackVarBytes packs a u16 length prefix followed by the bytes.
func (p *Packer) PackVarBytes(b []byte) {
	if p.Err != nil {
		return
	}
	if len(b) > 0xffff {
		p.Err = ErrUnexpectedValue
		return
	}
	p.PackUint16(uint16(len(b)))
	p.PackFixedBytes(b)
}

// PackVector packs a u16 element count followed by calling pack(i) for each
// element index in [0, n) — used for the vectors of HpkeCiphertext,
// ReportShare and Transition.
func (p *Packer) PackVector(n int, pack func(i int)) {
	if p.Err != nil {
		return
	}
	if n > 0xffff {
		p.Err = ErrUnexpectedValue
		return
	}
	p.PackUint16(uint16(n))
	for i := 0; i < n && p.Err == nil; i++ {
		pack(i)
	}
}

// Unpacker consumes bytes from a single message in order.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker wraps b for sequential decoding.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) need(n int) ([]byte, bool) {
	if u.Err != nil {
		return nil, false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrShortRead
		return nil, false
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b, true
}

// UnpackByte unpacks a single byte.
func (u *Unpacker) UnpackByte() byte {
	b, ok := u.need(1)
	if !ok {
		return 0
	}
	return b[0]
}

// UnpackFixedBytes unpacks exactly n raw bytes with no length prefix.
func (u *Unpacker) UnpackFixedBytes(n int) []byte {
	b, ok := u.need(n)
	if !ok {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// UnpackUint16 unpacks a big-endian u16.
func (u *Unpacker) UnpackUint16() uint16 {
	b, ok := u.need(2)
	if !ok {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// UnpackUint64 unpacks a big-endian u64.
func (u *Unpacker) UnpackUint64() uint64 {
	b, ok := u.need(8)
	if !ok {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// UnpackVarBytes unpacks a u16-length-prefixed byte string.
func (u *Unpacker) UnpackVarBytes() []byte {
	n := int(u.UnpackUint16())
	if u.Err != nil {
		return nil
	}
	return u.UnpackFixedBytes(n)
}

// UnpackVector unpacks a u16 element count and calls unpack(i) for each
// element index in [0, n).
func (u *Unpacker) UnpackVector(unpack func(i int)) int {
	n := int(u.UnpackUint16())
	if u.Err != nil {
		return 0
	}
	for i := 0; i < n && u.Err == nil; i++ {
		unpack(i)
	}
	return n
}

// Done reports whether every byte was consumed; a non-empty remainder after
// a top-level decode indicates trailing garbage, which callers should treat
// as ErrUnexpectedValue.
func (u *Unpacker) Done() bool {
	return u.Offset == len(u.Bytes)
}

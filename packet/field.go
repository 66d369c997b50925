// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type is the declared numeric type of a field.
type Type uint8

const (
	Int8 Type = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
)

var typeNames = [...]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Float32: "float32",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType returns the type named s.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name != "" && name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("packet: unknown field type %q", s)
}

// Bits returns the natural width of the type, in bits.
func (t Type) Bits() int {
	switch t {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	}
	return 0
}

func (t Type) signed() bool {
	return t == Int8 || t == Int16 || t == Int32
}

// Order is the byte (and bit) order of a packet stream.
//
// Big-endian streams pack fields MSB-first, little-endian streams pack
// fields LSB-first. A byte-aligned field of 8, 16 or 32 bits thus ends up
// in the natural byte order of the stream.
type Order uint8

const (
	BigEndian Order = iota
	LittleEndian
)

func (o Order) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// Field describes a single typed value inside a block.
type Field struct {
	Name   string
	Type   Type
	Offset int // bit offset from the start of the enclosing block
	Width  int // width in bits

	def    uint64 // default raw value, if hasDef
	hasDef bool
	role   role
}

func (f Field) mask() uint64 {
	return 1<<uint(f.Width) - 1
}

// Pack range-checks the integer v against the width of the field and
// returns its raw bit pattern.
// Values that do not fit fail with ErrRange; they are never wrapped.
func (f Field) Pack(v int64) (uint64, error) {
	if f.Type == Float32 {
		return 0, fmt.Errorf("packet: field %q holds a float32: %w", f.Name, ErrTypeMismatch)
	}
	w := uint(f.Width)
	if f.Type.signed() {
		var (
			lo = -int64(1) << (w - 1)
			hi = int64(1)<<(w-1) - 1
		)
		if v < lo || v > hi {
			return 0, fmt.Errorf(
				"packet: value %d does not fit in %d-bit signed field %q: %w",
				v, w, f.Name, ErrRange,
			)
		}
		return uint64(v) & f.mask(), nil
	}
	if v < 0 || uint64(v) > f.mask() {
		return 0, fmt.Errorf(
			"packet: value %d does not fit in %d-bit unsigned field %q: %w",
			v, w, f.Name, ErrRange,
		)
	}
	return uint64(v), nil
}

// Unpack returns the integer value of the raw bit pattern, sign-extended
// for signed fields.
func (f Field) Unpack(raw uint64) int64 {
	raw &= f.mask()
	if f.Type.signed() && raw&(1<<uint(f.Width-1)) != 0 {
		return int64(raw) - int64(1)<<uint(f.Width)
	}
	return int64(raw)
}

// EncodeField writes the raw value of f into buf, at the bit offset of f.
func EncodeField(buf []byte, f Field, raw uint64, order Order) error {
	if f.Width <= 0 || f.Width > 32 {
		return fmt.Errorf("packet: invalid width %d for field %q: %w", f.Width, f.Name, ErrRange)
	}
	if raw&^f.mask() != 0 {
		return fmt.Errorf(
			"packet: raw value 0x%x does not fit in %d-bit field %q: %w",
			raw, f.Width, f.Name, ErrRange,
		)
	}
	if f.Offset < 0 || f.Offset+f.Width > 8*len(buf) {
		return fmt.Errorf(
			"packet: field %q [%d:%d] overflows %d-byte buffer: %w",
			f.Name, f.Offset, f.Offset+f.Width, len(buf), ErrRange,
		)
	}
	putBits(buf, f.Offset, f.Width, raw, order)
	return nil
}

// DecodeField reads the raw value of f from buf.
func DecodeField(buf []byte, f Field, order Order) (uint64, error) {
	if f.Width <= 0 || f.Width > 32 {
		return 0, fmt.Errorf("packet: invalid width %d for field %q: %w", f.Width, f.Name, ErrRange)
	}
	if f.Offset < 0 || f.Offset+f.Width > 8*len(buf) {
		return 0, fmt.Errorf(
			"packet: field %q [%d:%d] overflows %d-byte buffer: %w",
			f.Name, f.Offset, f.Offset+f.Width, len(buf), ErrRange,
		)
	}
	return getBits(buf, f.Offset, f.Width, order), nil
}

func putBits(buf []byte, off, w int, v uint64, order Order) {
	if off%8 == 0 {
		i := off / 8
		switch w {
		case 8:
			buf[i] = byte(v)
			return
		case 16:
			if order == BigEndian {
				binary.BigEndian.PutUint16(buf[i:], uint16(v))
			} else {
				binary.LittleEndian.PutUint16(buf[i:], uint16(v))
			}
			return
		case 32:
			if order == BigEndian {
				binary.BigEndian.PutUint32(buf[i:], uint32(v))
			} else {
				binary.LittleEndian.PutUint32(buf[i:], uint32(v))
			}
			return
		}
	}

	for j := 0; j < w; j++ {
		var (
			pos   = off + j
			bit   byte
			shift uint
		)
		switch order {
		case BigEndian:
			bit = byte(v>>uint(w-1-j)) & 1
			shift = uint(7 - pos%8)
		default:
			bit = byte(v>>uint(j)) & 1
			shift = uint(pos % 8)
		}
		buf[pos/8] = buf[pos/8]&^(1<<shift) | bit<<shift
	}
}

func getBits(buf []byte, off, w int, order Order) uint64 {
	if off%8 == 0 {
		i := off / 8
		switch w {
		case 8:
			return uint64(buf[i])
		case 16:
			if order == BigEndian {
				return uint64(binary.BigEndian.Uint16(buf[i:]))
			}
			return uint64(binary.LittleEndian.Uint16(buf[i:]))
		case 32:
			if order == BigEndian {
				return uint64(binary.BigEndian.Uint32(buf[i:]))
			}
			return uint64(binary.LittleEndian.Uint32(buf[i:]))
		}
	}

	var v uint64
	for j := 0; j < w; j++ {
		pos := off + j
		switch order {
		case BigEndian:
			bit := uint64(buf[pos/8]>>uint(7-pos%8)) & 1
			v |= bit << uint(w-1-j)
		default:
			bit := uint64(buf[pos/8]>>uint(pos%8)) & 1
			v |= bit << uint(j)
		}
	}
	return v
}

func float32Raw(v float32) uint64 {
	return uint64(math.Float32bits(v))
}

func rawFloat32(raw uint64) float32 {
	return math.Float32frombits(uint32(raw))
}

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import "errors"

var (
	// ErrRange indicates a value that does not fit in the bit width of its
	// field, or a field or count that lies outside its allowed range.
	ErrRange = errors.New("packet: value out of range")

	// ErrIndex indicates an access to a block replica past its repeat count,
	// or through a handle whose replica has been released.
	ErrIndex = errors.New("packet: index out of range")

	// ErrUnknownField indicates a lookup of a field name that is not
	// declared in the block.
	ErrUnknownField = errors.New("packet: unknown field")

	// ErrTypeMismatch indicates a typed accessor used on a field declared
	// with another type.
	ErrTypeMismatch = errors.New("packet: field type mismatch")

	// ErrUnknownPacketType indicates a packet type name missing from the
	// schema, or an access to a section of a packet that was not recognized.
	ErrUnknownPacketType = errors.New("packet: unknown packet type")

	// ErrEncoding indicates a packet that could not be encoded.
	ErrEncoding = errors.New("packet: encoding error")

	// ErrCompression indicates a corrupt or truncated compressed payload,
	// or an unusable compression setting.
	ErrCompression = errors.New("packet: compression error")

	// ErrIO indicates a failure of the underlying byte device, or a stream
	// used before being bound to a device.
	ErrIO = errors.New("packet: I/O error")

	// ErrMalformed indicates bytes that could not be framed or decoded as a
	// packet.
	ErrMalformed = errors.New("packet: malformed packet")

	// ErrSchema indicates an invalid packet description.
	ErrSchema = errors.New("packet: invalid schema")
)

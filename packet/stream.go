// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPacketSize is the default bound on the size of read packets.
const DefaultMaxPacketSize = 64 << 20

// Config configures packet streams.
type Config struct {
	Schema        string // path to the XML schema description
	MaxPacketSize int    // maximum size of a read packet, in bytes. 0 selects DefaultMaxPacketSize.
}

type state uint8

const (
	unbound state = iota
	bound
	streaming
	exhausted
)

// Stats holds the counters of a stream.
type Stats struct {
	Packets int64 // number of packets transferred
	Bytes   int64 // number of bytes transferred
}

// OutputStream writes packets of one schema to a byte device.
type OutputStream struct {
	sch   *Schema
	w     io.Writer
	state state
	stats Stats
}

// NewOutputStream creates an unbound output stream for the schema named
// by cfg.
func NewOutputStream(cfg Config) (*OutputStream, error) {
	sch, err := Open(cfg.Schema)
	if err != nil {
		return nil, err
	}
	return NewOutputStreamFrom(sch), nil
}

// NewOutputStreamFrom creates an unbound output stream for sch.
func NewOutputStreamFrom(sch *Schema) *OutputStream {
	return &OutputStream{sch: sch}
}

// Schema returns the schema of the stream.
func (s *OutputStream) Schema() *Schema { return s.sch }

// IsBigEndian reports whether the stream writes big-endian packets.
func (s *OutputStream) IsBigEndian() bool { return s.sch.BigEndian() }

// PacketType returns a new packet of the named type.
func (s *OutputStream) PacketType(name string) (*Packet, error) {
	return s.sch.NewPacket(name)
}

// Stats returns the counters of the stream.
func (s *OutputStream) Stats() Stats { return s.stats }

// SetOutput binds the stream to w.
// The stream does not take ownership of w.
func (s *OutputStream) SetOutput(w io.Writer) {
	s.w = w
	if s.state == unbound {
		s.state = bound
	}
}

// WritePacket writes p to the output device, encoding it first if needed.
// On failure, the stream is left unchanged and the write may be retried.
func (s *OutputStream) WritePacket(p *Packet) error {
	if s.state == unbound {
		return fmt.Errorf("packet: output stream has no device: %w", ErrIO)
	}
	if p.sch != s.sch {
		return fmt.Errorf("packet: packet of schema %q written to stream of schema %q: %w", p.sch.Name, s.sch.Name, ErrEncoding)
	}
	if !p.encoded {
		err := p.Encode()
		if err != nil {
			return err
		}
	}

	n, err := s.w.Write(p.raw)
	switch {
	case err != nil:
		return fmt.Errorf("packet: could not write packet: %w: %w", ErrIO, err)
	case n != len(p.raw):
		return fmt.Errorf("packet: short write (n=%d, want=%d): %w: %w", n, len(p.raw), ErrIO, io.ErrShortWrite)
	}

	s.state = streaming
	s.stats.Packets++
	s.stats.Bytes += int64(n)
	return nil
}

// InputStream reads packets of one schema from a byte device.
type InputStream struct {
	sch   *Schema
	r     io.Reader
	max   int
	state state
	stats Stats
	hdr   []byte
}

// NewInputStream creates an unbound input stream for the schema named by
// cfg.
func NewInputStream(cfg Config) (*InputStream, error) {
	sch, err := Open(cfg.Schema)
	if err != nil {
		return nil, err
	}
	s := NewInputStreamFrom(sch)
	if cfg.MaxPacketSize > 0 {
		s.max = cfg.MaxPacketSize
	}
	return s, nil
}

// NewInputStreamFrom creates an unbound input stream for sch.
func NewInputStreamFrom(sch *Schema) *InputStream {
	return &InputStream{
		sch: sch,
		max: DefaultMaxPacketSize,
		hdr: make([]byte, sch.Header.Size),
	}
}

// Schema returns the schema of the stream.
func (s *InputStream) Schema() *Schema { return s.sch }

// IsBigEndian reports whether the stream reads big-endian packets.
func (s *InputStream) IsBigEndian() bool { return s.sch.BigEndian() }

// PacketType returns a new packet of the named type.
func (s *InputStream) PacketType(name string) (*Packet, error) {
	return s.sch.NewPacket(name)
}

// Stats returns the counters of the stream.
func (s *InputStream) Stats() Stats { return s.stats }

// SetInput binds the stream to r.
// The stream does not take ownership of r.
func (s *InputStream) SetInput(r io.Reader) {
	s.r = r
	s.state = bound
}

// ReadPacket reads and decodes the next packet.
// ReadPacket returns io.EOF at the end of the device, and keeps returning
// it afterwards. Packets that match no packet type of the schema carry the
// PacketNotRecognized ID.
func (s *InputStream) ReadPacket() (*Packet, error) {
	switch s.state {
	case unbound:
		return nil, fmt.Errorf("packet: input stream has no device: %w", ErrIO)
	case exhausted:
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.r, s.hdr)
	switch {
	case errors.Is(err, io.EOF):
		s.state = exhausted
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("packet: truncated packet header: %w", ErrMalformed)
	case err != nil:
		return nil, fmt.Errorf("packet: could not read packet header: %w: %w", ErrIO, err)
	}

	var (
		fld  = s.sch.Header.Fields[s.sch.length]
		size = int64(len(s.hdr))
	)
	v, err := DecodeField(s.hdr, fld, s.sch.order)
	if err != nil {
		return nil, fmt.Errorf("packet: could not decode packet length: %w: %w", ErrMalformed, err)
	}
	size += fld.Unpack(v)
	if size < int64(len(s.hdr)) {
		return nil, fmt.Errorf("packet: invalid packet size %d (header=%d bytes): %w", size, len(s.hdr), ErrMalformed)
	}
	if size > int64(s.max) {
		return nil, fmt.Errorf("packet: packet size %d exceeds maximum %d: %w", size, s.max, ErrMalformed)
	}

	raw := make([]byte, size)
	copy(raw, s.hdr)
	_, err = io.ReadFull(s.r, raw[len(s.hdr):])
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("packet: truncated packet (want=%d bytes): %w", size, ErrMalformed)
	case err != nil:
		return nil, fmt.Errorf("packet: could not read packet: %w: %w", ErrIO, err)
	}

	p, err := s.sch.Decode(raw)
	if err != nil {
		return nil, err
	}

	s.state = streaming
	s.stats.Packets++
	s.stats.Bytes += size
	return p, nil
}

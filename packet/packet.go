// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"errors"
	"fmt"

	"github.com/go-lpc/rta/compr"
	"github.com/go-lpc/rta/internal/crc16"
)

const (
	crcSize  = 2 // size of the CRC-16 trailer
	rawLenSz = 4 // size of the uncompressed length prefix of compressed payloads

	// maxRawLen bounds the declared uncompressed size of a payload.
	maxRawLen = 1 << 28
)

// Packet holds the values of one packet of a schema, with its header,
// data field header and source data field, and its encoded form.
//
// Packets are not safe for concurrent use.
type Packet struct {
	sch *Schema
	def *PacketDef // nil for packets that were not recognized

	a   arena
	hdr int32
	dfh int32
	sdf int32

	raw     []byte // encoded packet, valid when encoded is set
	encoded bool
	compr   bool   // whether raw holds a compressed source data field
	data    []byte // uncompressed source data field of raw

	// decoding state of the source data field.
	lazy bool
	body []byte // source data field payload, as found on the wire
	algo compr.Algorithm
	err  error
}

func newPacket(sch *Schema, def *PacketDef) *Packet {
	p := &Packet{
		sch: sch,
		def: def,
		hdr: -1,
		dfh: -1,
		sdf: -1,
	}
	p.init(def)
	return p
}

func (p *Packet) init(def *PacketDef) {
	p.a.reset()
	p.def = def
	p.hdr = p.a.alloc(p.sch.Header, -1, false)
	p.dfh = -1
	p.sdf = -1
	p.raw = nil
	p.encoded = false
	p.compr = false
	p.data = nil
	p.lazy = false
	p.body = nil
	p.algo = compr.None
	p.err = nil

	if def == nil {
		return
	}
	p.dfh = p.a.alloc(def.DataFieldHeader, -1, false)
	p.sdf = p.a.alloc(def.SourceDataField, -1, false)
	for _, id := range def.idents {
		nd := &p.a.nodes[p.hdr]
		if id.sec == secDataFieldHeader {
			nd = &p.a.nodes[p.dfh]
		}
		nd.vals[id.field] = id.raw
		nd.set[id.field] = true
	}
}

func (p *Packet) dirty() {
	p.encoded = false
	p.compr = false
}

// Schema returns the schema of the packet.
func (p *Packet) Schema() *Schema { return p.sch }

// ID returns the ID of the packet type, or PacketNotRecognized.
func (p *Packet) ID() int {
	if p.def == nil {
		return PacketNotRecognized
	}
	return p.def.ID
}

// Name returns the name of the packet type, or the empty string when the
// packet was not recognized.
func (p *Packet) Name() string {
	if p.def == nil {
		return ""
	}
	return p.def.Name
}

// Header returns the packet header.
func (p *Packet) Header() Block {
	return p.block(p.hdr)
}

// DataFieldHeader returns the data field header of the packet.
func (p *Packet) DataFieldHeader() Block {
	if p.def == nil {
		return Block{err: p.unknown()}
	}
	return p.block(p.dfh)
}

// SourceDataField returns the source data field of the packet.
// The source data field of a decoded packet is decompressed and decoded
// on first access; a failure is reported by all the methods of the
// returned block.
func (p *Packet) SourceDataField() Block {
	if p.def == nil {
		return Block{err: p.unknown()}
	}
	err := p.load()
	if err != nil {
		return Block{err: err}
	}
	return p.block(p.sdf)
}

func (p *Packet) unknown() error {
	return fmt.Errorf("packet: packet of schema %q was not recognized: %w", p.sch.Name, ErrUnknownPacketType)
}

func (p *Packet) headerValue(i int) int64 {
	nd := &p.a.nodes[p.hdr]
	return nd.def.Fields[i].Unpack(nd.vals[i])
}

func (p *Packet) setHeaderValue(i int, v int64) error {
	nd := &p.a.nodes[p.hdr]
	raw, err := nd.def.Fields[i].Pack(v)
	if err != nil {
		return err
	}
	nd.vals[i] = raw
	nd.set[i] = true
	return nil
}

// setCompression records the compression algorithm and level in the
// header fields holding them.
func (p *Packet) setCompression(algo compr.Algorithm, level int) error {
	err := p.setHeaderValue(p.sch.algo, int64(algo))
	if err != nil {
		return fmt.Errorf("packet: compression algorithm %v does not fit its header field: %w: %w", algo, ErrCompression, err)
	}
	err = p.setHeaderValue(p.sch.level, int64(level))
	if err != nil {
		return fmt.Errorf("packet: compression level %d does not fit its header field: %w: %w", level, ErrCompression, err)
	}
	return nil
}

// PacketLength returns the value of the packet length field of the header:
// the number of bytes following the header.
func (p *Packet) PacketLength() int {
	return int(p.headerValue(p.sch.length))
}

// Size returns the size of the encoded packet, in bytes.
// Size is only valid after a successful Encode or Decode, and returns
// zero otherwise.
func (p *Packet) Size() int {
	if !p.encoded {
		return 0
	}
	return len(p.raw)
}

// Bytes returns the encoded packet, or nil if the packet has not been
// encoded since its last modification.
// The returned slice is only valid until the next modification.
func (p *Packet) Bytes() []byte {
	if !p.encoded {
		return nil
	}
	return p.raw
}

// IsCompressed reports whether the encoded packet holds a compressed
// source data field.
func (p *Packet) IsCompressed() bool {
	return p.encoded && p.compr
}

// Encode encodes the header, the data field header and the source data
// field, in that order, and computes the packet length.
func (p *Packet) Encode() error {
	if p.def == nil {
		return p.unknown()
	}
	err := p.load()
	if err != nil {
		return err
	}

	dfhSize, err := p.a.size(p.dfh)
	if err != nil {
		return err
	}
	sdfSize, err := p.a.size(p.sdf)
	if err != nil {
		return err
	}

	var (
		hsize = p.sch.Header.Size
		total = hsize + dfhSize + sdfSize
	)
	if p.sch.crc {
		total += crcSize
	}

	err = p.setHeaderValue(p.sch.length, int64(total-hsize))
	if err != nil {
		return fmt.Errorf("packet: packet of %d bytes too large for its length field: %w: %w", total, ErrEncoding, err)
	}
	if p.sch.algo >= 0 {
		err = p.setCompression(compr.None, 0)
		if err != nil {
			return err
		}
	}

	raw := make([]byte, total)
	n := 0
	for _, id := range []int32{p.hdr, p.dfh, p.sdf} {
		m, err := p.a.encode(raw[n:], id, p.sch.order)
		if err != nil {
			return err
		}
		n += m
	}
	p.sealCRC(raw)

	p.raw = raw
	p.data = raw[hsize+dfhSize : hsize+dfhSize+sdfSize]
	p.encoded = true
	p.compr = false
	return nil
}

func (p *Packet) sealCRC(raw []byte) {
	if !p.sch.crc {
		return
	}
	var (
		n   = len(raw) - crcSize
		crc = crc16.Checksum(raw[:n])
	)
	putBits(raw[n:], 0, 16, uint64(crc), p.sch.order)
}

// CompressData compresses the source data field of the encoded packet
// with algo, and records algo and level in the header.
// A level of 0 leaves the packet unchanged. So does a source data field
// that does not compress.
func (p *Packet) CompressData(algo compr.Algorithm, level int) error {
	if level == 0 {
		return nil
	}
	if p.sch.algo < 0 {
		return fmt.Errorf("packet: schema %q has no compression fields: %w", p.sch.Name, ErrCompression)
	}
	if p.IsCompressed() {
		return fmt.Errorf("packet: packet is already compressed: %w", ErrCompression)
	}
	if !p.encoded {
		err := p.Encode()
		if err != nil {
			return err
		}
	}
	data, err := p.Data()
	if err != nil {
		return err
	}

	hdr := p.sch.Header.Fields
	if _, err := hdr[p.sch.algo].Pack(int64(algo)); err != nil {
		return fmt.Errorf("packet: invalid compression algorithm %v: %w: %w", algo, ErrCompression, err)
	}
	if _, err := hdr[p.sch.level].Pack(int64(level)); err != nil {
		return fmt.Errorf("packet: invalid compression level %d: %w: %w", level, ErrCompression, err)
	}

	out, err := compr.Compress(algo, level, data, nil)
	switch {
	case errors.Is(err, compr.ErrIncompressible):
		return nil
	case err != nil:
		return fmt.Errorf("packet: could not compress source data field: %w: %w", ErrCompression, err)
	}
	if rawLenSz+len(out) >= len(data) {
		return nil
	}

	// header and data field header are kept as is.
	pre := len(p.raw) - len(data)
	if p.sch.crc {
		pre -= crcSize
	}
	total := pre + rawLenSz + len(out)
	if p.sch.crc {
		total += crcSize
	}

	raw := make([]byte, total)
	copy(raw, p.raw[:pre])
	putBits(raw[pre:], 0, 32, uint64(len(data)), p.sch.order)
	copy(raw[pre+rawLenSz:], out)

	hsize := p.sch.Header.Size
	err = p.setHeaderValue(p.sch.length, int64(total-hsize))
	if err != nil {
		return fmt.Errorf("packet: packet of %d bytes too large for its length field: %w: %w", total, ErrEncoding, err)
	}
	err = p.setCompression(algo, level)
	if err != nil {
		return err
	}
	_, err = p.a.encode(raw[:hsize], p.hdr, p.sch.order)
	if err != nil {
		return err
	}
	p.sealCRC(raw)

	p.raw = raw
	p.compr = true
	return nil
}

// Decompress decompresses and decodes the source data field of a packet
// and re-encodes the packet without compression.
// Decompress is a no-op on uncompressed packets.
func (p *Packet) Decompress() error {
	if p.def == nil {
		return p.unknown()
	}
	err := p.load()
	if err != nil {
		return err
	}
	if !p.IsCompressed() {
		return nil
	}
	return p.Encode()
}

// Data returns the uncompressed source data field of the encoded packet,
// as raw bytes in the byte order of the schema.
// Compressed packets are decompressed transparently.
func (p *Packet) Data() ([]byte, error) {
	if p.def == nil {
		return nil, p.unknown()
	}
	if !p.encoded {
		return nil, fmt.Errorf("packet: packet was not encoded: %w", ErrEncoding)
	}
	if p.data == nil {
		data, err := p.payload()
		if err != nil {
			return nil, err
		}
		p.data = data
	}
	return p.data, nil
}

// Decode decodes raw into a new packet.
// Packets matching no packet type of the schema are returned with the
// PacketNotRecognized ID and only their header decoded.
func (sch *Schema) Decode(raw []byte) (*Packet, error) {
	p := newPacket(sch, nil)
	err := p.Decode(raw)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Decode decodes the raw packet bytes into p, possibly changing its packet
// type. The source data field is only decoded once accessed.
// Decode keeps a reference to raw.
func (p *Packet) Decode(raw []byte) error {
	p.init(nil)

	hsize := p.sch.Header.Size
	if len(raw) < hsize {
		return fmt.Errorf(
			"packet: truncated header (got=%d bytes, want=%d): %w",
			len(raw), hsize, ErrMalformed,
		)
	}

	hdr := &p.a.nodes[p.hdr]
	for i, f := range p.sch.Header.Fields {
		v, err := DecodeField(raw[:hsize], f, p.sch.order)
		if err != nil {
			return fmt.Errorf("packet: could not decode header field %q: %w: %w", f.Name, ErrMalformed, err)
		}
		hdr.vals[i] = v
		hdr.set[i] = true
	}

	if n := hsize + p.PacketLength(); n != len(raw) {
		return fmt.Errorf(
			"packet: invalid packet length (got=%d bytes, want=%d): %w",
			len(raw), n, ErrMalformed,
		)
	}

	body := raw[hsize:]
	if p.sch.crc {
		if len(body) < crcSize {
			return fmt.Errorf("packet: missing CRC-16: %w", ErrMalformed)
		}
		var (
			n    = len(raw) - crcSize
			comp = crc16.Checksum(raw[:n])
			recv = uint16(getBits(raw[n:], 0, 16, p.sch.order))
		)
		if comp != recv {
			return fmt.Errorf(
				"packet: inconsistent CRC: recv=0x%04x comp=0x%04x: %w",
				recv, comp, ErrMalformed,
			)
		}
		body = body[:len(body)-crcSize]
	}

	p.raw = raw
	p.encoded = true

	def := p.sch.Identify(raw)
	if def == nil {
		return nil
	}

	var (
		vals = append([]uint64(nil), hdr.vals...)
		dfh  = def.DataFieldHeader
	)
	p.init(def)
	p.raw = raw
	p.encoded = true
	copy(p.a.nodes[p.hdr].vals, vals)
	for i := range p.a.nodes[p.hdr].set {
		p.a.nodes[p.hdr].set[i] = true
	}

	a := &p.a
	a.release(p.dfh)
	id, n, err := a.decode(body, dfh, -1, p.sch.order)
	if err != nil {
		p.init(nil)
		return err
	}
	p.dfh = id

	p.body = body[n:]
	p.lazy = true
	if p.sch.algo >= 0 {
		p.algo = compr.Algorithm(p.headerValue(p.sch.algo))
		p.compr = p.algo != compr.None
	}
	return nil
}

// load decodes the source data field of a decoded packet.
func (p *Packet) load() error {
	if !p.lazy {
		return p.err
	}
	p.lazy = false

	if p.data == nil {
		data, err := p.payload()
		if err != nil {
			p.err = err
			return err
		}
		p.data = data
	}

	a := &p.a
	a.release(p.sdf)
	id, n, err := a.decode(p.data, p.def.SourceDataField, -1, p.sch.order)
	if err != nil {
		p.err = err
		return err
	}
	p.sdf = id
	if n != len(p.data) {
		p.err = fmt.Errorf(
			"packet: %d trailing bytes after source data field: %w",
			len(p.data)-n, ErrMalformed,
		)
		return p.err
	}
	return nil
}

// payload returns the uncompressed source data field found on the wire.
func (p *Packet) payload() ([]byte, error) {
	if p.algo == compr.None {
		return p.body, nil
	}
	if len(p.body) < rawLenSz {
		return nil, fmt.Errorf("packet: truncated compressed payload: %w", ErrCompression)
	}
	n := int(getBits(p.body, 0, 32, p.sch.order))
	if n > maxRawLen {
		return nil, fmt.Errorf("packet: invalid uncompressed size %d: %w", n, ErrCompression)
	}
	data := make([]byte, n)
	err := compr.Decompress(p.algo, p.body[rawLenSz:], data)
	if err != nil {
		return nil, fmt.Errorf("packet: could not decompress source data field: %w: %w", ErrCompression, err)
	}
	return data, nil
}

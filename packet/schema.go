// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PacketNotRecognized is the ID of packets that match no packet type of
// their schema.
const PacketNotRecognized = 0

type role uint8

const (
	roleNone role = iota
	roleLength
	roleComprAlgo
	roleComprLevel
)

var roleNames = map[string]role{
	"":                      roleNone,
	"length":                roleLength,
	"compression-algorithm": roleComprAlgo,
	"compression-level":     roleComprLevel,
}

// BlockDef describes the layout of a block: its fixed part, made of
// fields, followed by the replicas of each of its child block kinds.
type BlockDef struct {
	Name   string
	Fields []Field
	Blocks []*BlockDef // child block kinds, in wire order
	Size   int         // size of the fixed part, in bytes

	Counter string // name of the field holding the repeat count, if any
	Repeat  int    // fixed repeat count, when Counter is empty
	Max     int    // maximum repeat count, 0 when unbounded

	parent *BlockDef
	index  map[string]int
	cnt    counterRef
}

// counterRef locates the counter field of a block kind, relative to the
// block holding the replicas.
type counterRef struct {
	up    int // number of parent links to follow
	field int // field index in that block
}

// Field returns the index of the named field.
func (def *BlockDef) Field(name string) (int, error) {
	i, ok := def.index[name]
	if !ok {
		return -1, fmt.Errorf("packet: no field %q in block %q: %w", name, def.Name, ErrUnknownField)
	}
	return i, nil
}

// Kind returns the child block kind index of the named block.
func (def *BlockDef) Kind(name string) (int, error) {
	for i, child := range def.Blocks {
		if child.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("packet: no block %q in block %q: %w", name, def.Name, ErrUnknownField)
}

func (def *BlockDef) fixedRepeat() bool { return def.Counter == "" }

type section uint8

const (
	secHeader section = iota
	secDataFieldHeader
)

type ident struct {
	sec   section
	field int
	raw   uint64
}

// PacketDef describes one packet type of a schema.
type PacketDef struct {
	Name            string
	ID              int
	DataFieldHeader *BlockDef
	SourceDataField *BlockDef

	idents []ident
}

// Schema is an immutable set of packet types sharing the same header
// layout and byte order.
// A Schema may be shared by many streams and packets.
type Schema struct {
	Name   string
	Header *BlockDef

	order   Order
	crc     bool
	packets []*PacketDef
	byName  map[string]*PacketDef

	length int // index of the packet length field in the header
	algo   int // index of the compression algorithm field, or -1
	level  int // index of the compression level field, or -1
}

// Open loads a schema from the named XML description file.
func Open(fname string) (*Schema, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("packet: could not open schema: %w", err)
	}
	defer f.Close()

	sch, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("packet: could not load schema %q: %w", fname, err)
	}
	return sch, nil
}

// Load loads a schema from an XML description.
func Load(r io.Reader) (*Schema, error) {
	var doc xmlStream
	err := xml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("packet: could not decode XML description: %w", err)
	}
	return newSchema(doc)
}

// Order returns the byte order of the schema.
func (sch *Schema) Order() Order { return sch.order }

// BigEndian reports whether packets are encoded in big-endian byte order.
func (sch *Schema) BigEndian() bool { return sch.order == BigEndian }

// HasCRC reports whether packets carry a CRC-16 trailer.
func (sch *Schema) HasCRC() bool { return sch.crc }

// HeaderSize returns the size of the packet header, in bytes.
func (sch *Schema) HeaderSize() int { return sch.Header.Size }

// PacketNames returns the names of the packet types, in ID order.
func (sch *Schema) PacketNames() []string {
	names := make([]string, len(sch.packets))
	for i, def := range sch.packets {
		names[i] = def.Name
	}
	return names
}

// Packet returns the definition of the named packet type.
func (sch *Schema) Packet(name string) (*PacketDef, error) {
	def, ok := sch.byName[name]
	if !ok {
		return nil, fmt.Errorf("packet: no packet type %q in schema %q: %w", name, sch.Name, ErrUnknownPacketType)
	}
	return def, nil
}

// NewPacket returns a new packet of the named type.
func (sch *Schema) NewPacket(name string) (*Packet, error) {
	def, err := sch.Packet(name)
	if err != nil {
		return nil, err
	}
	return newPacket(sch, def), nil
}

// Identify returns the packet type of the raw packet, matching the
// identifier fields of each packet type in ID order, or nil when no packet
// type matches.
func (sch *Schema) Identify(raw []byte) *PacketDef {
	if len(raw) < sch.Header.Size {
		return nil
	}
	hdr := raw[:sch.Header.Size]
	body := raw[sch.Header.Size:]

loop:
	for _, def := range sch.packets {
		for _, id := range def.idents {
			var (
				buf = hdr
				fld Field
			)
			switch id.sec {
			case secHeader:
				fld = sch.Header.Fields[id.field]
			case secDataFieldHeader:
				buf = body
				fld = def.DataFieldHeader.Fields[id.field]
			}
			v, err := DecodeField(buf, fld, sch.order)
			if err != nil || v != id.raw {
				continue loop
			}
		}
		return def
	}
	return nil
}

type xmlStream struct {
	XMLName   xml.Name    `xml:"stream"`
	Name      string      `xml:"name,attr"`
	BigEndian string      `xml:"bigendian,attr"`
	CRC       bool        `xml:"crc,attr"`
	Header    *xmlBlock   `xml:"header"`
	Packets   []xmlPacket `xml:"packet"`
}

type xmlPacket struct {
	Name   string     `xml:"name,attr"`
	Idents []xmlIdent `xml:"identifier"`
	DFH    *xmlBlock  `xml:"datafieldheader"`
	SDF    *xmlBlock  `xml:"sourcedatafield"`
}

type xmlIdent struct {
	Section string `xml:"section,attr"`
	Field   string `xml:"field,attr"`
	Value   string `xml:"value,attr"`
}

type xmlBlock struct {
	Name    string     `xml:"name,attr"`
	Counter string     `xml:"counter,attr"`
	Repeat  string     `xml:"repeat,attr"`
	Max     int        `xml:"max,attr"`
	Fields  []xmlField `xml:"field"`
	Blocks  []xmlBlock `xml:"block"`
}

type xmlField struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Bits  int    `xml:"bits,attr"`
	Value string `xml:"value,attr"`
	Role  string `xml:"role,attr"`
}

func newSchema(doc xmlStream) (*Schema, error) {
	sch := &Schema{
		Name:   doc.Name,
		crc:    doc.CRC,
		byName: make(map[string]*PacketDef, len(doc.Packets)),
		length: -1,
		algo:   -1,
		level:  -1,
	}

	switch strings.ToLower(doc.BigEndian) {
	case "", "true", "1", "yes":
		sch.order = BigEndian
	case "false", "0", "no":
		sch.order = LittleEndian
	default:
		return nil, fmt.Errorf("packet: invalid bigendian attribute %q: %w", doc.BigEndian, ErrSchema)
	}

	if doc.Header == nil {
		return nil, fmt.Errorf("packet: schema %q has no header: %w", doc.Name, ErrSchema)
	}
	hdr, err := newBlockDef(*doc.Header, "header", nil, true)
	if err != nil {
		return nil, err
	}
	if len(hdr.Blocks) != 0 {
		return nil, fmt.Errorf("packet: header %q can not hold blocks: %w", hdr.Name, ErrSchema)
	}
	sch.Header = hdr

	for i, f := range hdr.Fields {
		switch f.role {
		case roleLength:
			sch.length = i
		case roleComprAlgo:
			sch.algo = i
		case roleComprLevel:
			sch.level = i
		}
	}
	if sch.length < 0 {
		return nil, fmt.Errorf("packet: header %q has no packet length field: %w", hdr.Name, ErrSchema)
	}
	if (sch.algo < 0) != (sch.level < 0) {
		return nil, fmt.Errorf("packet: header %q needs both compression fields: %w", hdr.Name, ErrSchema)
	}

	if len(doc.Packets) == 0 {
		return nil, fmt.Errorf("packet: schema %q has no packet type: %w", doc.Name, ErrSchema)
	}

	for i, xp := range doc.Packets {
		if xp.Name == "" {
			return nil, fmt.Errorf("packet: packet type #%d has no name: %w", i, ErrSchema)
		}
		if _, dup := sch.byName[xp.Name]; dup {
			return nil, fmt.Errorf("packet: duplicate packet type %q: %w", xp.Name, ErrSchema)
		}

		def := &PacketDef{
			Name: xp.Name,
			ID:   i + 1,
		}
		if xp.DFH == nil {
			xp.DFH = &xmlBlock{}
		}
		def.DataFieldHeader, err = newBlockDef(*xp.DFH, "data field header", nil, false)
		if err != nil {
			return nil, fmt.Errorf("packet: packet type %q: %w", xp.Name, err)
		}
		if len(def.DataFieldHeader.Blocks) != 0 {
			return nil, fmt.Errorf("packet: packet type %q: data field header can not hold blocks: %w", xp.Name, ErrSchema)
		}
		if xp.SDF == nil {
			xp.SDF = &xmlBlock{}
		}
		def.SourceDataField, err = newBlockDef(*xp.SDF, "source data field", nil, false)
		if err != nil {
			return nil, fmt.Errorf("packet: packet type %q: %w", xp.Name, err)
		}

		for _, xi := range xp.Idents {
			id, err := sch.newIdent(def, xi)
			if err != nil {
				return nil, fmt.Errorf("packet: packet type %q: %w", xp.Name, err)
			}
			def.idents = append(def.idents, id)
		}

		sch.packets = append(sch.packets, def)
		sch.byName[def.Name] = def
	}

	return sch, nil
}

func (sch *Schema) newIdent(def *PacketDef, xi xmlIdent) (ident, error) {
	var (
		id  ident
		blk *BlockDef
	)
	switch xi.Section {
	case "header":
		id.sec = secHeader
		blk = sch.Header
	case "datafieldheader", "":
		id.sec = secDataFieldHeader
		blk = def.DataFieldHeader
	default:
		return id, fmt.Errorf("packet: invalid identifier section %q: %w", xi.Section, ErrSchema)
	}

	i, err := blk.Field(xi.Field)
	if err != nil {
		return id, fmt.Errorf("packet: invalid identifier: %w: %w", ErrSchema, err)
	}
	fld := blk.Fields[i]
	if fld.role != roleNone {
		return id, fmt.Errorf("packet: identifier can not use computed field %q: %w", fld.Name, ErrSchema)
	}
	raw, err := parseValue(fld, xi.Value)
	if err != nil {
		return id, fmt.Errorf("packet: invalid identifier value for %q: %w: %w", fld.Name, ErrSchema, err)
	}
	id.field = i
	id.raw = raw
	return id, nil
}

func newBlockDef(xb xmlBlock, name string, parent *BlockDef, header bool) (*BlockDef, error) {
	if xb.Name != "" {
		name = xb.Name
	}
	def := &BlockDef{
		Name:   name,
		Max:    xb.Max,
		parent: parent,
		index:  make(map[string]int, len(xb.Fields)),
	}

	off := 0
	for _, xf := range xb.Fields {
		fld, err := newField(xf, off)
		if err != nil {
			return nil, fmt.Errorf("packet: block %q: %w", name, err)
		}
		if fld.role != roleNone && !header {
			return nil, fmt.Errorf("packet: block %q: role %q only allowed in header: %w", name, xf.Role, ErrSchema)
		}
		if _, dup := def.index[fld.Name]; dup {
			return nil, fmt.Errorf("packet: block %q: duplicate field %q: %w", name, fld.Name, ErrSchema)
		}
		def.index[fld.Name] = len(def.Fields)
		def.Fields = append(def.Fields, fld)
		off += fld.Width
	}
	if off%8 != 0 {
		return nil, fmt.Errorf("packet: block %q: fields span %d bits, not a whole number of bytes: %w", name, off, ErrSchema)
	}
	def.Size = off / 8

	for _, xc := range xb.Blocks {
		if xc.Name == "" {
			return nil, fmt.Errorf("packet: block %q: child block has no name: %w", name, ErrSchema)
		}
		if _, err := def.Kind(xc.Name); err == nil {
			return nil, fmt.Errorf("packet: block %q: duplicate child block %q: %w", name, xc.Name, ErrSchema)
		}
		child, err := newBlockDef(xc, xc.Name, def, false)
		if err != nil {
			return nil, err
		}
		err = child.bindRepeat(xc)
		if err != nil {
			return nil, err
		}
		def.Blocks = append(def.Blocks, child)
	}

	return def, nil
}

func (def *BlockDef) bindRepeat(xb xmlBlock) error {
	if def.Max < 0 {
		return fmt.Errorf("packet: block %q: invalid max %d: %w", def.Name, def.Max, ErrSchema)
	}
	switch {
	case xb.Counter != "" && xb.Repeat != "":
		return fmt.Errorf("packet: block %q: counter and repeat are exclusive: %w", def.Name, ErrSchema)
	case xb.Repeat != "":
		n, err := strconv.Atoi(xb.Repeat)
		if err != nil || n < 0 {
			return fmt.Errorf("packet: block %q: invalid repeat %q: %w", def.Name, xb.Repeat, ErrSchema)
		}
		if def.Max > 0 && n > def.Max {
			return fmt.Errorf("packet: block %q: repeat %d exceeds max %d: %w", def.Name, n, def.Max, ErrSchema)
		}
		def.Repeat = n
		return nil
	case xb.Counter != "":
		def.Counter = xb.Counter
		up := 0
		for blk := def.parent; blk != nil; blk = blk.parent {
			if i, ok := blk.index[xb.Counter]; ok {
				if blk.Fields[i].Type == Float32 {
					return fmt.Errorf("packet: block %q: counter %q is not an integer: %w", def.Name, xb.Counter, ErrSchema)
				}
				def.cnt = counterRef{up: up, field: i}
				return nil
			}
			up++
		}
		return fmt.Errorf("packet: block %q: no counter field %q in enclosing blocks: %w", def.Name, xb.Counter, ErrSchema)
	default:
		return fmt.Errorf("packet: block %q: needs a counter or a repeat: %w", def.Name, ErrSchema)
	}
}

func newField(xf xmlField, off int) (Field, error) {
	if xf.Name == "" {
		return Field{}, fmt.Errorf("packet: field without a name: %w", ErrSchema)
	}
	typ, err := ParseType(xf.Type)
	if err != nil {
		return Field{}, fmt.Errorf("packet: field %q: %v: %w", xf.Name, err, ErrSchema)
	}
	width := xf.Bits
	if width == 0 {
		width = typ.Bits()
	}
	switch {
	case width < 1 || width > typ.Bits():
		return Field{}, fmt.Errorf("packet: field %q: invalid width %d for %v: %w", xf.Name, width, typ, ErrSchema)
	case typ == Float32 && width != 32:
		return Field{}, fmt.Errorf("packet: field %q: float32 must be 32 bits wide: %w", xf.Name, ErrSchema)
	}
	rl, ok := roleNames[xf.Role]
	if !ok {
		return Field{}, fmt.Errorf("packet: field %q: unknown role %q: %w", xf.Name, xf.Role, ErrSchema)
	}
	if rl != roleNone && typ == Float32 {
		return Field{}, fmt.Errorf("packet: field %q: role %q needs an integer: %w", xf.Name, xf.Role, ErrSchema)
	}
	if rl != roleNone && typ.signed() {
		return Field{}, fmt.Errorf("packet: field %q: role %q needs an unsigned integer: %w", xf.Name, xf.Role, ErrSchema)
	}

	fld := Field{
		Name:   xf.Name,
		Type:   typ,
		Offset: off,
		Width:  width,
		role:   rl,
	}
	if xf.Value != "" {
		fld.def, err = parseValue(fld, xf.Value)
		if err != nil {
			return Field{}, fmt.Errorf("packet: field %q: invalid default value: %w: %w", xf.Name, ErrSchema, err)
		}
		fld.hasDef = true
	}
	return fld, nil
}

func parseValue(fld Field, s string) (uint64, error) {
	if fld.Type == Float32 {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("%v: %w", err, ErrSchema)
		}
		return float32Raw(float32(v)), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrSchema)
	}
	return fld.Pack(v)
}

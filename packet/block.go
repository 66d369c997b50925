// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"fmt"
)

// Block is a handle to one replica of a block of a packet.
//
// A Block stays valid until its replica is released, either by shrinking
// the repeat count of its parent or by decoding new content into the
// packet. Accessing a released replica fails with ErrIndex.
//
// Unset fields read as zero.
type Block struct {
	p   *Packet
	id  int32
	gen uint32
	err error // set for sections a packet does not have
}

func (p *Packet) block(id int32) Block {
	return Block{p: p, id: id, gen: p.a.nodes[id].gen}
}

func (b Block) node() (*node, error) {
	switch {
	case b.err != nil:
		return nil, b.err
	case b.p == nil:
		return nil, fmt.Errorf("packet: invalid block handle: %w", ErrIndex)
	case b.id < 0 || int(b.id) >= len(b.p.a.nodes):
		return nil, fmt.Errorf("packet: invalid block handle %d: %w", b.id, ErrIndex)
	}
	nd := &b.p.a.nodes[b.id]
	if !nd.live || nd.gen != b.gen {
		return nil, fmt.Errorf("packet: stale handle to block %q: %w", nd.def.Name, ErrIndex)
	}
	return nd, nil
}

// Name returns the name of the block, or the empty string for an invalid
// handle.
func (b Block) Name() string {
	nd, err := b.node()
	if err != nil {
		return ""
	}
	return nd.def.Name
}

// Def returns the layout of the block.
func (b Block) Def() (*BlockDef, error) {
	nd, err := b.node()
	if err != nil {
		return nil, err
	}
	return nd.def, nil
}

// Err returns the error, if any, that makes this handle unusable.
func (b Block) Err() error {
	_, err := b.node()
	return err
}

func (b Block) field(name string) (*node, int, error) {
	nd, err := b.node()
	if err != nil {
		return nil, -1, err
	}
	i, err := nd.def.Field(name)
	if err != nil {
		return nil, -1, err
	}
	return nd, i, nil
}

func (b Block) fieldAt(i int) (*node, int, error) {
	nd, err := b.node()
	if err != nil {
		return nil, -1, err
	}
	if i < 0 || i >= len(nd.def.Fields) {
		return nil, -1, fmt.Errorf(
			"packet: field index %d out of range for block %q (fields=%d): %w",
			i, nd.def.Name, len(nd.def.Fields), ErrIndex,
		)
	}
	return nd, i, nil
}

func (b Block) typed(name string, typ Type) (*node, int, error) {
	nd, i, err := b.field(name)
	if err != nil {
		return nil, -1, err
	}
	if got := nd.def.Fields[i].Type; got != typ {
		return nil, -1, fmt.Errorf(
			"packet: field %q of block %q is %v, not %v: %w",
			name, nd.def.Name, got, typ, ErrTypeMismatch,
		)
	}
	return nd, i, nil
}

func (b Block) get(nd *node, i int) (int64, error) {
	f := nd.def.Fields[i]
	if f.Type == Float32 {
		return 0, fmt.Errorf("packet: field %q of block %q holds a float32: %w", f.Name, nd.def.Name, ErrTypeMismatch)
	}
	return f.Unpack(nd.vals[i]), nil
}

func (b Block) put(nd *node, i int, v int64) error {
	raw, err := nd.def.Fields[i].Pack(v)
	if err != nil {
		return err
	}
	nd.vals[i] = raw
	nd.set[i] = true
	b.p.dirty()
	return nil
}

// NumFields returns the number of fields of the block.
func (b Block) NumFields() int {
	nd, err := b.node()
	if err != nil {
		return 0
	}
	return len(nd.def.Fields)
}

// FieldValue returns the value of the named integer field, whatever its
// width and signedness.
func (b Block) FieldValue(name string) (int64, error) {
	nd, i, err := b.field(name)
	if err != nil {
		return 0, err
	}
	return b.get(nd, i)
}

// SetFieldValue sets the value of the named integer field, whatever its
// width and signedness.
// Values that do not fit in the field fail with ErrRange.
func (b Block) SetFieldValue(name string, v int64) error {
	nd, i, err := b.field(name)
	if err != nil {
		return err
	}
	return b.put(nd, i, v)
}

// FieldValueAt returns the value of the i-th integer field.
func (b Block) FieldValueAt(i int) (int64, error) {
	nd, i, err := b.fieldAt(i)
	if err != nil {
		return 0, err
	}
	return b.get(nd, i)
}

// SetFieldValueAt sets the value of the i-th integer field.
func (b Block) SetFieldValueAt(i int, v int64) error {
	nd, i, err := b.fieldAt(i)
	if err != nil {
		return err
	}
	return b.put(nd, i, v)
}

// Int8, Uint8, Int16, Uint16, Int32, Uint32 and Float32 return the value
// of the named field, which must have that exact type. Other types fail
// with ErrTypeMismatch.
func (b Block) Int8(name string) (int8, error) {
	nd, i, err := b.typed(name, Int8)
	if err != nil {
		return 0, err
	}
	return int8(nd.def.Fields[i].Unpack(nd.vals[i])), nil
}

func (b Block) Uint8(name string) (uint8, error) {
	nd, i, err := b.typed(name, Uint8)
	if err != nil {
		return 0, err
	}
	return uint8(nd.vals[i]), nil
}

func (b Block) Int16(name string) (int16, error) {
	nd, i, err := b.typed(name, Int16)
	if err != nil {
		return 0, err
	}
	return int16(nd.def.Fields[i].Unpack(nd.vals[i])), nil
}

func (b Block) Uint16(name string) (uint16, error) {
	nd, i, err := b.typed(name, Uint16)
	if err != nil {
		return 0, err
	}
	return uint16(nd.vals[i]), nil
}

func (b Block) Int32(name string) (int32, error) {
	nd, i, err := b.typed(name, Int32)
	if err != nil {
		return 0, err
	}
	return int32(nd.def.Fields[i].Unpack(nd.vals[i])), nil
}

func (b Block) Uint32(name string) (uint32, error) {
	nd, i, err := b.typed(name, Uint32)
	if err != nil {
		return 0, err
	}
	return uint32(nd.vals[i]), nil
}

func (b Block) Float32(name string) (float32, error) {
	nd, i, err := b.typed(name, Float32)
	if err != nil {
		return 0, err
	}
	return rawFloat32(nd.vals[i]), nil
}

// SetInt8, SetUint8, SetInt16, SetUint16, SetInt32, SetUint32 and
// SetFloat32 set the value of the named field, which must have that exact
// type. Values wider than a narrowed field fail with ErrRange.
func (b Block) SetInt8(name string, v int8) error {
	nd, i, err := b.typed(name, Int8)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetUint8(name string, v uint8) error {
	nd, i, err := b.typed(name, Uint8)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetInt16(name string, v int16) error {
	nd, i, err := b.typed(name, Int16)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetUint16(name string, v uint16) error {
	nd, i, err := b.typed(name, Uint16)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetInt32(name string, v int32) error {
	nd, i, err := b.typed(name, Int32)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetUint32(name string, v uint32) error {
	nd, i, err := b.typed(name, Uint32)
	if err != nil {
		return err
	}
	return b.put(nd, i, int64(v))
}

func (b Block) SetFloat32(name string, v float32) error {
	nd, i, err := b.typed(name, Float32)
	if err != nil {
		return err
	}
	nd.vals[i] = float32Raw(v)
	nd.set[i] = true
	b.p.dirty()
	return nil
}

// Kind returns the index of the named child block kind.
func (b Block) Kind(name string) (int, error) {
	nd, err := b.node()
	if err != nil {
		return -1, err
	}
	return nd.def.Kind(name)
}

func (b Block) kind(nd *node, kind int) (*BlockDef, error) {
	if kind < 0 || kind >= len(nd.def.Blocks) {
		return nil, fmt.Errorf(
			"packet: block kind %d out of range for block %q (kinds=%d): %w",
			kind, nd.def.Name, len(nd.def.Blocks), ErrIndex,
		)
	}
	return nd.def.Blocks[kind], nil
}

// NumberOfBlocks returns the current repeat count of the given child
// block kind, or zero when the handle or the kind is invalid.
// Zero is also returned when the block could not be decoded: use Err to
// tell an empty kind from an unusable handle.
func (b Block) NumberOfBlocks(kind int) int {
	nd, err := b.node()
	if err != nil {
		return 0
	}
	if _, err := b.kind(nd, kind); err != nil {
		return 0
	}
	return len(nd.kids[kind])
}

// SetNumberOfBlocks resizes the replicas of the given child block kind to n.
// New replicas are zero-initialized, removed replicas are released.
// The counter field sizing the kind, if any, is set to n.
func (b Block) SetNumberOfBlocks(n, kind int) error {
	nd, err := b.node()
	if err != nil {
		return err
	}
	child, err := b.kind(nd, kind)
	if err != nil {
		return err
	}

	switch {
	case n < 0:
		return fmt.Errorf("packet: negative repeat count %d for block %q: %w", n, child.Name, ErrRange)
	case child.Max > 0 && n > child.Max:
		return fmt.Errorf("packet: repeat count %d exceeds max %d for block %q: %w", n, child.Max, child.Name, ErrRange)
	case child.fixedRepeat() && n != child.Repeat:
		return fmt.Errorf("packet: block %q has a fixed repeat count of %d: %w", child.Name, child.Repeat, ErrRange)
	}

	var (
		a   = &b.p.a
		raw uint64
	)
	if !child.fixedRepeat() {
		holder := &a.nodes[a.ancestor(b.id, child.cnt.up)]
		raw, err = holder.def.Fields[child.cnt.field].Pack(int64(n))
		if err != nil {
			return fmt.Errorf("packet: repeat count for block %q does not fit counter %q: %w", child.Name, child.Counter, err)
		}
	}

	cur := len(nd.kids[kind])
	switch {
	case n < cur:
		for _, kid := range nd.kids[kind][n:] {
			a.release(kid)
		}
		nd.kids[kind] = nd.kids[kind][:n]
	case n > cur:
		for i := cur; i < n; i++ {
			kid := a.alloc(child, b.id, true)
			a.nodes[b.id].kids[kind] = append(a.nodes[b.id].kids[kind], kid)
		}
	}

	if !child.fixedRepeat() {
		holder := &a.nodes[a.ancestor(b.id, child.cnt.up)]
		holder.vals[child.cnt.field] = raw
		holder.set[child.cnt.field] = true
	}
	b.p.dirty()
	return nil
}

// Block returns the i-th replica of the given child block kind.
func (b Block) Block(i, kind int) (Block, error) {
	nd, err := b.node()
	if err != nil {
		return Block{}, err
	}
	child, err := b.kind(nd, kind)
	if err != nil {
		return Block{}, err
	}
	if i < 0 || i >= len(nd.kids[kind]) {
		return Block{}, fmt.Errorf(
			"packet: replica %d out of range for block %q (n=%d): %w",
			i, child.Name, len(nd.kids[kind]), ErrIndex,
		)
	}
	return b.p.block(nd.kids[kind][i]), nil
}

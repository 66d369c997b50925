// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import "fmt"

// maxEmptyReplicas bounds the repeat count of blocks without a fixed part,
// which consume no bytes on the wire.
const maxEmptyReplicas = 1 << 20

// node is the storage of one block replica.
type node struct {
	def    *BlockDef
	gen    uint32
	parent int32
	live   bool

	vals []uint64  // raw field values
	set  []bool    // whether vals[i] holds a value
	kids [][]int32 // replicas, per child block kind
}

// arena owns all the block replicas of a packet.
// Replicas are referenced by index; released slots are recycled with a
// new generation so that stale handles can be detected.
type arena struct {
	nodes []node
	free  []int32
}

func (a *arena) reset() {
	a.free = a.free[:0]
	for i := range a.nodes {
		nd := &a.nodes[i]
		if nd.live {
			nd.gen++
			nd.live = false
		}
		a.free = append(a.free, int32(i))
	}
}

// alloc allocates a replica of def. Fields get their schema default,
// or zero when zero is set; blocks with a fixed repeat count are
// allocated as well.
func (a *arena) alloc(def *BlockDef, parent int32, zero bool) int32 {
	var id int32
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		id = int32(len(a.nodes))
		a.nodes = append(a.nodes, node{})
	}

	nd := &a.nodes[id]
	nd.def = def
	nd.parent = parent
	nd.live = true
	nd.vals = resizeU64(nd.vals, len(def.Fields))
	nd.set = resizeBool(nd.set, len(def.Fields))
	for i, f := range def.Fields {
		switch {
		case f.hasDef:
			nd.vals[i] = f.def
			nd.set[i] = true
		default:
			nd.vals[i] = 0
			nd.set[i] = zero
		}
	}
	if cap(nd.kids) < len(def.Blocks) {
		nd.kids = make([][]int32, len(def.Blocks))
	}
	nd.kids = nd.kids[:len(def.Blocks)]
	for k := range nd.kids {
		nd.kids[k] = nd.kids[k][:0]
	}

	for k, child := range def.Blocks {
		if !child.fixedRepeat() {
			continue
		}
		for i := 0; i < child.Repeat; i++ {
			cid := a.alloc(child, id, true)
			a.nodes[id].kids[k] = append(a.nodes[id].kids[k], cid)
		}
	}
	return id
}

func (a *arena) release(id int32) {
	nd := &a.nodes[id]
	for _, kids := range nd.kids {
		for _, kid := range kids {
			a.release(kid)
		}
	}
	nd.gen++
	nd.live = false
	a.free = append(a.free, id)
}

func (a *arena) ancestor(id int32, up int) int32 {
	for i := 0; i < up; i++ {
		id = a.nodes[id].parent
	}
	return id
}

// count returns the repeat count a replica declares for its child block
// kind k.
func (a *arena) count(id int32, k int) int {
	child := a.nodes[id].def.Blocks[k]
	if child.fixedRepeat() {
		return child.Repeat
	}
	var (
		holder = &a.nodes[a.ancestor(id, child.cnt.up)]
		fld    = holder.def.Fields[child.cnt.field]
	)
	return int(fld.Unpack(holder.vals[child.cnt.field]))
}

// size returns the encoded size of a replica and its descendants,
// checking that each replica count agrees with its counter field.
func (a *arena) size(id int32) (int, error) {
	nd := &a.nodes[id]
	n := nd.def.Size
	for k, kids := range nd.kids {
		child := nd.def.Blocks[k]
		if want := a.count(id, k); want != len(kids) {
			return 0, fmt.Errorf(
				"packet: block %q holds %d %q replicas but counter %q says %d: %w",
				nd.def.Name, len(kids), child.Name, child.Counter, want, ErrEncoding,
			)
		}
		for _, kid := range kids {
			sz, err := a.size(kid)
			if err != nil {
				return 0, err
			}
			n += sz
		}
	}
	return n, nil
}

// encode writes a replica and its descendants into buf, which must be
// large enough, and returns the number of bytes written.
func (a *arena) encode(buf []byte, id int32, order Order) (int, error) {
	nd := &a.nodes[id]
	for i, f := range nd.def.Fields {
		if !nd.set[i] {
			return 0, fmt.Errorf("packet: field %q of block %q has no value: %w", f.Name, nd.def.Name, ErrEncoding)
		}
		err := EncodeField(buf[:nd.def.Size], f, nd.vals[i], order)
		if err != nil {
			return 0, fmt.Errorf("packet: could not encode field %q of block %q: %w: %w", f.Name, nd.def.Name, ErrEncoding, err)
		}
	}
	n := nd.def.Size
	for _, kids := range nd.kids {
		for _, kid := range kids {
			m, err := a.encode(buf[n:], kid, order)
			if err != nil {
				return 0, err
			}
			n += m
		}
	}
	return n, nil
}

// decode decodes a replica of def from buf and returns its index and the
// number of bytes consumed.
func (a *arena) decode(buf []byte, def *BlockDef, parent int32, order Order) (int32, int, error) {
	if len(buf) < def.Size {
		return -1, 0, fmt.Errorf(
			"packet: block %q truncated (got=%d bytes, want=%d): %w",
			def.Name, len(buf), def.Size, ErrMalformed,
		)
	}

	id := a.alloc(def, parent, false)
	for i, f := range def.Fields {
		v, err := DecodeField(buf[:def.Size], f, order)
		if err != nil {
			return -1, 0, fmt.Errorf("packet: could not decode field %q of block %q: %w: %w", f.Name, def.Name, ErrMalformed, err)
		}
		a.nodes[id].vals[i] = v
		a.nodes[id].set[i] = true
	}

	n := def.Size
	for k, child := range def.Blocks {
		cnt := a.count(id, k)
		switch {
		case cnt < 0, child.Max > 0 && cnt > child.Max:
			return -1, 0, fmt.Errorf(
				"packet: block %q declares %d replicas (max=%d): %w",
				child.Name, cnt, child.Max, ErrMalformed,
			)
		case child.Size > 0 && cnt > (len(buf)-n)/child.Size,
			child.Size == 0 && cnt > maxEmptyReplicas:
			return -1, 0, fmt.Errorf(
				"packet: block %q declares %d replicas, more than the %d remaining bytes allow: %w",
				child.Name, cnt, len(buf)-n, ErrMalformed,
			)
		}

		// replicas allocated with a fixed repeat are replaced by the decoded ones.
		for _, kid := range a.nodes[id].kids[k] {
			a.release(kid)
		}
		a.nodes[id].kids[k] = a.nodes[id].kids[k][:0]

		for i := 0; i < cnt; i++ {
			kid, m, err := a.decode(buf[n:], child, id, order)
			if err != nil {
				return -1, 0, err
			}
			a.nodes[id].kids[k] = append(a.nodes[id].kids[k], kid)
			n += m
		}
	}
	return id, n, nil
}

func resizeU64(vs []uint64, n int) []uint64 {
	if cap(vs) < n {
		return make([]uint64, n)
	}
	return vs[:n]
}

func resizeBool(vs []bool, n int) []bool {
	if cap(vs) < n {
		return make([]bool, n)
	}
	return vs[:n]
}

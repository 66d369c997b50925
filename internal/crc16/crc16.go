// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check used to seal
// RTA packets (CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xffff,
// no reflection).
package crc16 // import "github.com/go-lpc/rta/internal/crc16"

import (
	"hash"
)

const (
	// CCITT is the CCITT polynomial, in normal representation.
	CCITT = 0x1021

	// Size is the size of a CRC-16 checksum, in bytes.
	Size = 2

	initValue = 0xffff
)

// Table is a 256-word table representing the polynomial for efficient
// processing.
type Table [256]uint16

var ccittTable = MakeTable(CCITT)

// MakeTable returns the table constructed from the specified polynomial.
func MakeTable(poly uint16) *Table {
	var t Table
	for i := range t {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
	tab *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the table.
// A nil table selects the CCITT polynomial.
func New(tab *Table) Hash16 {
	if tab == nil {
		tab = ccittTable
	}
	return &digest{crc: initValue, tab: tab}
}

// Checksum returns the CCITT CRC-16 checksum of data.
func Checksum(data []byte) uint16 {
	return update(initValue, ccittTable, data)
}

func update(crc uint16, tab *Table, p []byte) uint16 {
	for _, v := range p {
		crc = crc<<8 ^ tab[byte(crc>>8)^v]
	}
	return crc
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = initValue }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = update(d.crc, d.tab, p)
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum16()
	return append(in, byte(s>>8), byte(s))
}

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crc16_test

import (
	"bytes"
	"testing"

	"github.com/go-lpc/rta/internal/crc16"
)

func TestChecksum(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		want uint16
	}{
		{"empty", nil, 0xffff},
		{"bytes", []byte{0x1, 0x2, 0x3, 0x4, 0x5}, 0x9304},
		{"check", []byte("123456789"), 0x29b1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := crc16.Checksum(tc.raw); got != tc.want {
				t.Fatalf("invalid checksum: got=0x%04x, want=0x%04x", got, tc.want)
			}

			h := crc16.New(nil)
			if got, want := h.Size(), crc16.Size; got != want {
				t.Fatalf("invalid size: got=%d, want=%d", got, want)
			}
			if got, want := h.BlockSize(), 1; got != want {
				t.Fatalf("invalid block size: got=%d, want=%d", got, want)
			}

			// feed one byte at a time, after some garbage cleared by Reset.
			_, _ = h.Write([]byte("garbage"))
			h.Reset()
			for i := range tc.raw {
				_, err := h.Write(tc.raw[i : i+1])
				if err != nil {
					t.Fatalf("could not write byte %d: %+v", i, err)
				}
			}
			if got := h.Sum16(); got != tc.want {
				t.Fatalf("invalid streamed checksum: got=0x%04x, want=0x%04x", got, tc.want)
			}

			prefix := []byte{0xca, 0xfe}
			got := h.Sum(prefix)
			want := append(prefix, byte(tc.want>>8), byte(tc.want))
			if !bytes.Equal(got, want) {
				t.Fatalf("invalid sum: got=%x, want=%x", got, want)
			}
		})
	}
}

func TestTrailer(t *testing.T) {
	tab := crc16.MakeTable(crc16.CCITT)
	frame := []byte("CTA RTA packet")

	h := crc16.New(tab)
	_, _ = h.Write(frame)
	frame = h.Sum(frame)

	// a frame followed by its big-endian checksum has a zero residue.
	if got := crc16.Checksum(frame); got != 0 {
		t.Fatalf("invalid residue: got=0x%04x, want=0", got)
	}

	frame[3] ^= 0x10
	if got := crc16.Checksum(frame); got == 0 {
		t.Fatalf("corrupted frame has a zero residue")
	}
}

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/rta/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFADC(t *testing.T, opts ...func(string) string) *Schema {
	t.Helper()
	doc := string(conf.FADC)
	for _, opt := range opts {
		doc = opt(doc)
	}
	sch, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	return sch
}

func littleEndian(doc string) string {
	return strings.Replace(doc, `bigendian="true"`, `bigendian="false"`, 1)
}

func withCRC(doc string) string {
	return strings.Replace(doc, `crc="false"`, `crc="true"`, 1)
}

func TestSchemaFADC(t *testing.T) {
	sch := loadFADC(t)

	assert.Equal(t, "rta_fadc_v3", sch.Name)
	assert.True(t, sch.BigEndian())
	assert.False(t, sch.HasCRC())
	assert.Equal(t, 10, sch.HeaderSize())
	assert.Equal(t, []string{"triggered_telescope1", "array_trigger"}, sch.PacketNames())

	def, err := sch.Packet("triggered_telescope1")
	require.NoError(t, err)
	assert.Equal(t, 1, def.ID)
	assert.Equal(t, 19, def.DataFieldHeader.Size)
	assert.Equal(t, 10, def.SourceDataField.Size)
	require.Len(t, def.SourceDataField.Blocks, 2)

	pix := def.SourceDataField.Blocks[0]
	assert.Equal(t, "pixel", pix.Name)
	assert.Equal(t, "Number of pixels", pix.Counter)
	assert.Equal(t, 4096, pix.Max)
	require.Len(t, pix.Blocks, 1)
	assert.Equal(t, "sample", pix.Blocks[0].Name)
	assert.Equal(t, 2, pix.Blocks[0].Size)

	_, err = def.SourceDataField.Field("eventNumber")
	require.NoError(t, err)
	_, err = def.SourceDataField.Field("FADC")
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = def.SourceDataField.Kind("sample")
	assert.ErrorIs(t, err, ErrUnknownField)

	trg, err := sch.Packet("array_trigger")
	require.NoError(t, err)
	assert.Equal(t, 2, trg.ID)

	assert.Equal(t, LittleEndian, loadFADC(t, littleEndian).Order())
	assert.True(t, loadFADC(t, withCRC).HasCRC())
}

func TestSchemaUnknownPacketType(t *testing.T) {
	sch := loadFADC(t)

	_, err := sch.Packet("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownPacketType)

	p, err := sch.NewPacket("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownPacketType)
	assert.Nil(t, p)
}

func TestSchemaOpen(t *testing.T) {
	fname := filepath.Join(t.TempDir(), conf.FADCName)
	err := os.WriteFile(fname, conf.FADC, 0644)
	require.NoError(t, err)

	sch, err := Open(fname)
	require.NoError(t, err)
	assert.Equal(t, "rta_fadc_v3", sch.Name)

	_, err = Open(fname + ".missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSchemaInvalid(t *testing.T) {
	const (
		hdr = `<header><field name="len" type="uint16" role="length"/></header>`
		sdf = `<sourcedatafield><field name="n" type="uint8"/></sourcedatafield>`
	)
	for _, tc := range []struct {
		name string
		doc  string
	}{
		{"no-header", `<stream name="s"><packet name="p"/></stream>`},
		{"no-length", `<stream name="s"><header><field name="a" type="uint8"/></header><packet name="p"/></stream>`},
		{"no-packet", `<stream name="s">` + hdr + `</stream>`},
		{"bad-endian", `<stream name="s" bigendian="maybe">` + hdr + `<packet name="p"/></stream>`},
		{"bad-type", `<stream name="s"><header><field name="len" type="int64" role="length"/></header><packet name="p"/></stream>`},
		{"bad-width", `<stream name="s"><header><field name="len" type="uint8" bits="9" role="length"/></header><packet name="p"/></stream>`},
		{"bad-float", `<stream name="s">` + hdr + `<packet name="p"><sourcedatafield><field name="f" type="float32" bits="16"/></sourcedatafield></packet></stream>`},
		{"unaligned", `<stream name="s"><header><field name="len" type="uint16" bits="12" role="length"/></header><packet name="p"/></stream>`},
		{"dup-field", `<stream name="s">` + hdr + `<packet name="p"><sourcedatafield><field name="n" type="uint8"/><field name="n" type="uint8"/></sourcedatafield></packet></stream>`},
		{"dup-packet", `<stream name="s">` + hdr + `<packet name="p"/><packet name="p"/></stream>`},
		{"unnamed-packet", `<stream name="s">` + hdr + `<packet/></stream>`},
		{"half-compression", `<stream name="s"><header><field name="len" type="uint16" role="length"/><field name="algo" type="uint8" role="compression-algorithm"/></header><packet name="p"/></stream>`},
		{"signed-length", `<stream name="s"><header><field name="len" type="int16" role="length"/></header><packet name="p"/></stream>`},
		{"signed-compression", `<stream name="s"><header><field name="len" type="uint16" role="length"/><field name="algo" type="int8" role="compression-algorithm"/><field name="lvl" type="uint8" role="compression-level"/></header><packet name="p"/></stream>`},
		{"unknown-role", `<stream name="s"><header><field name="len" type="uint16" role="size"/></header><packet name="p"/></stream>`},
		{"role-outside-header", `<stream name="s">` + hdr + `<packet name="p"><sourcedatafield><field name="n" type="uint8" role="length"/></sourcedatafield></packet></stream>`},
		{"missing-counter", `<stream name="s">` + hdr + `<packet name="p">` + `<sourcedatafield><field name="n" type="uint8"/><block name="b" counter="m"><field name="v" type="uint8"/></block></sourcedatafield></packet></stream>`},
		{"float-counter", `<stream name="s">` + hdr + `<packet name="p">` + `<sourcedatafield><field name="n" type="float32"/><block name="b" counter="n"><field name="v" type="uint8"/></block></sourcedatafield></packet></stream>`},
		{"counter-and-repeat", `<stream name="s">` + hdr + `<packet name="p">` + `<sourcedatafield><field name="n" type="uint8"/><block name="b" counter="n" repeat="2"><field name="v" type="uint8"/></block></sourcedatafield></packet></stream>`},
		{"no-repeat", `<stream name="s">` + hdr + `<packet name="p">` + `<sourcedatafield><block name="b"><field name="v" type="uint8"/></block></sourcedatafield></packet></stream>`},
		{"repeat-above-max", `<stream name="s">` + hdr + `<packet name="p">` + `<sourcedatafield><block name="b" repeat="3" max="2"><field name="v" type="uint8"/></block></sourcedatafield></packet></stream>`},
		{"bad-default", `<stream name="s">` + hdr + `<packet name="p"><sourcedatafield><field name="n" type="uint8" value="256"/></sourcedatafield></packet></stream>`},
		{"bad-ident-field", `<stream name="s">` + hdr + `<packet name="p"><identifier field="x" value="1"/>` + sdf + `</packet></stream>`},
		{"bad-ident-section", `<stream name="s">` + hdr + `<packet name="p"><identifier section="trailer" field="n" value="1"/>` + sdf + `</packet></stream>`},
		{"computed-ident", `<stream name="s">` + hdr + `<packet name="p"><identifier section="header" field="len" value="1"/></packet></stream>`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.doc))
			assert.ErrorIs(t, err, ErrSchema)
		})
	}

	_, err := Load(bytes.NewReader([]byte("<stream")))
	assert.Error(t, err)
}

func TestSchemaRepeat(t *testing.T) {
	const doc = `<stream name="s" bigendian="false">
	<header><field name="len" type="uint16" role="length"/></header>
	<packet name="p">
		<sourcedatafield>
			<block name="pair" repeat="2"><field name="v" type="int8"/></block>
		</sourcedatafield>
	</packet>
</stream>`

	sch, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	p, err := sch.NewPacket("p")
	require.NoError(t, err)
	sdf := p.SourceDataField()
	assert.Equal(t, 2, sdf.NumberOfBlocks(0))
	assert.ErrorIs(t, sdf.SetNumberOfBlocks(3, 0), ErrRange)

	for i := 0; i < 2; i++ {
		blk, err := sdf.Block(i, 0)
		require.NoError(t, err)
		require.NoError(t, blk.SetInt8("v", int8(-1-i)))
	}
	require.NoError(t, p.Encode())
	assert.Equal(t, []byte{2, 0, 0xff, 0xfe}, p.Bytes())

	q, err := sch.Decode(p.Bytes())
	require.NoError(t, err)
	require.Equal(t, 1, q.ID())
	blk, err := q.SourceDataField().Block(1, 0)
	require.NoError(t, err)
	v, err := blk.Int8("v")
	require.NoError(t, err)
	assert.Equal(t, int8(-2), v)
}

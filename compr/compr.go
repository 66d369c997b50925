// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compr provides the compression algorithms that can be applied
// to the source data field of RTA packets.
package compr // import "github.com/go-lpc/rta/compr"

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm is the tag of a compression algorithm, as recorded in the
// packet header.
type Algorithm uint8

const (
	None Algorithm = iota
	LZ4
	S2
	Zstd
)

// MaxLevel is the highest compression level.
const MaxLevel = 15

var (
	// ErrIncompressible is returned by Compress when the compressed form
	// would not be smaller than its source.
	ErrIncompressible = errors.New("compr: incompressible data")

	errLevel = errors.New("compr: invalid compression level")
)

var algoNames = [...]string{
	None: "none",
	LZ4:  "lz4",
	S2:   "s2",
	Zstd: "zstd",
}

func (algo Algorithm) String() string {
	if int(algo) < len(algoNames) {
		return algoNames[algo]
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(algo))
}

// ParseAlgorithm returns the algorithm with the given name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for i, v := range algoNames {
		if v == name {
			return Algorithm(i), nil
		}
	}
	return None, fmt.Errorf("compr: unknown compression algorithm %q", name)
}

// Compressor compresses whole blocks.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress appends the compressed contents of src to dst
	// and returns the result.
	Compress(src, dst []byte) ([]byte, error)
}

// Decompressor decompresses whole blocks.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Decompress decompresses src into dst.
	// dst must have exactly the length of the decompressed data.
	//
	// It must be safe to make multiple calls to Decompress
	// simultaneously from different goroutines.
	Decompress(src, dst []byte) error
}

// Compression returns the compressor for algo at the given level,
// between 1 and MaxLevel.
func Compression(algo Algorithm, level int) (Compressor, error) {
	if level < 1 || level > MaxLevel {
		return nil, fmt.Errorf("%w %d (algo=%v)", errLevel, level, algo)
	}
	switch algo {
	case LZ4:
		return lz4Compressor{level: lz4Level(level)}, nil
	case S2:
		return s2Compressor{level: level}, nil
	case Zstd:
		enc, err := zstdEncoder(level)
		if err != nil {
			return nil, err
		}
		return zstdCompressor{enc: enc}, nil
	default:
		return nil, fmt.Errorf("compr: no compressor for algorithm %v", algo)
	}
}

// Decompression returns the decompressor for algo.
func Decompression(algo Algorithm) (Decompressor, error) {
	switch algo {
	case LZ4:
		return lz4Compressor{}, nil
	case S2:
		return s2Compressor{}, nil
	case Zstd:
		return (*zstdDecompressor)(zstdDecoder), nil
	default:
		return nil, fmt.Errorf("compr: no decompressor for algorithm %v", algo)
	}
}

// Compress appends the compressed contents of src to dst.
func Compress(algo Algorithm, level int, src, dst []byte) ([]byte, error) {
	c, err := Compression(algo, level)
	if err != nil {
		return nil, err
	}
	return c.Compress(src, dst)
}

// Decompress decompresses src into dst, which must have exactly the
// length of the decompressed data.
func Decompress(algo Algorithm, src, dst []byte) error {
	d, err := Decompression(algo)
	if err != nil {
		return err
	}
	return d.Decompress(src, dst)
}

type lz4Compressor struct {
	level lz4.CompressionLevel
}

func lz4Level(level int) lz4.CompressionLevel {
	levels := []lz4.CompressionLevel{
		lz4.Fast,
		lz4.Level1, lz4.Level2, lz4.Level3,
		lz4.Level4, lz4.Level5, lz4.Level6,
		lz4.Level7, lz4.Level8, lz4.Level9,
	}
	if level > len(levels) {
		level = len(levels)
	}
	return levels[level-1]
}

func (lz4Compressor) Name() string { return "lz4" }

func (c lz4Compressor) Compress(src, dst []byte) ([]byte, error) {
	var (
		buf = make([]byte, lz4.CompressBlockBound(len(src)))
		n   int
		err error
	)
	switch c.level {
	case lz4.Fast:
		n, err = lz4.CompressBlock(src, buf, nil)
	default:
		n, err = lz4.CompressBlockHC(src, buf, c.level, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("compr: lz4 compression failed: %w", err)
	}
	if n == 0 || n >= len(src) {
		return nil, ErrIncompressible
	}
	return append(dst, buf[:n]...), nil
}

func (lz4Compressor) Decompress(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("compr: lz4 decompression failed: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("compr: expected %d bytes decompressed; got %d", len(dst), n)
	}
	return nil
}

type s2Compressor struct {
	level int
}

func (s2Compressor) Name() string { return "s2" }

func (c s2Compressor) Compress(src, dst []byte) ([]byte, error) {
	var out []byte
	switch {
	case c.level <= 1:
		out = s2.Encode(nil, src)
	case c.level <= 5:
		out = s2.EncodeBetter(nil, src)
	default:
		out = s2.EncodeBest(nil, src)
	}
	if len(out) >= len(src) {
		return nil, ErrIncompressible
	}
	return append(dst, out...), nil
}

func (s2Compressor) Decompress(src, dst []byte) error {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return fmt.Errorf("compr: s2 decompression failed: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("compr: expected %d bytes decompressed; got %d", len(dst), n)
	}
	ret, err := s2.Decode(dst, src)
	if err != nil {
		return fmt.Errorf("compr: s2 decompression failed: %w", err)
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		copy(dst, ret)
	}
	return nil
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (zstdCompressor) Name() string { return "zstd" }

func (c zstdCompressor) Compress(src, dst []byte) ([]byte, error) {
	out := c.enc.EncodeAll(src, nil)
	if len(out) >= len(src) {
		return nil, ErrIncompressible
	}
	return append(dst, out...), nil
}

var (
	zstdDecoder *zstd.Decoder

	zstdMu  sync.Mutex
	zstdEnc = make(map[zstd.EncoderLevel]*zstd.Encoder)
)

func init() {
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

func zstdEncoder(level int) (*zstd.Encoder, error) {
	lvl := zstd.EncoderLevelFromZstd(level)

	zstdMu.Lock()
	defer zstdMu.Unlock()

	enc, ok := zstdEnc[lvl]
	if ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(lvl),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("compr: could not create zstd encoder: %w", err)
	}
	zstdEnc[lvl] = enc
	return enc, nil
}

type zstdDecompressor zstd.Decoder

func (*zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Decompress(src, dst []byte) error {
	ret, err := (*zstd.Decoder)(z).DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("compr: zstd decompression failed: %w", err)
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("compr: expected %d bytes decompressed; got %d", len(dst), len(ret))
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		copy(dst, ret)
	}
	return nil
}

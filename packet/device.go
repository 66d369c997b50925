// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/rta/internal/mmap"
)

// InputFile is a byte device reading packets from a file.
type InputFile struct {
	name string
	f    *os.File
	mm   *mmap.Handle
	pos  int64
	done bool
}

// FileOption configures an input file.
type FileOption func(f *fileConfig)

type fileConfig struct {
	mmap bool
}

// WithMmap memory-maps the input file instead of reading it.
func WithMmap() FileOption {
	return func(cfg *fileConfig) {
		cfg.mmap = true
	}
}

// OpenInputFile opens the named file for reading.
func OpenInputFile(name string, opts ...FileOption) (*InputFile, error) {
	var cfg fileConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	in := &InputFile{name: name}
	switch {
	case cfg.mmap:
		h, err := mmap.Open(name)
		if err != nil {
			return nil, fmt.Errorf("packet: could not open input file %q: %w: %w", name, ErrIO, err)
		}
		in.mm = h
	default:
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("packet: could not open input file %q: %w: %w", name, ErrIO, err)
		}
		in.f = f
	}
	return in, nil
}

// Name returns the name of the file.
func (in *InputFile) Name() string { return in.name }

func (in *InputFile) Read(p []byte) (int, error) {
	if in.done {
		return 0, fmt.Errorf("packet: read from %q: %w", in.name, os.ErrClosed)
	}
	if in.mm != nil {
		n, err := in.mm.ReadAt(p, in.pos)
		in.pos += int64(n)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	}
	return in.f.Read(p)
}

// Close releases the file. Closing an input file more than once fails
// with os.ErrClosed.
func (in *InputFile) Close() error {
	if in.done {
		return fmt.Errorf("packet: close %q: %w", in.name, os.ErrClosed)
	}
	in.done = true

	var err error
	switch {
	case in.mm != nil:
		err = in.mm.Close()
	default:
		err = in.f.Close()
	}
	if err != nil {
		return fmt.Errorf("packet: could not close input file %q: %w: %w", in.name, ErrIO, err)
	}
	return nil
}

// OutputFile is a byte device writing packets to a file.
// Writes are not buffered.
type OutputFile struct {
	name string
	f    *os.File
	done bool
}

// CreateOutputFile creates or truncates the named file for writing.
func CreateOutputFile(name string) (*OutputFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("packet: could not create output file %q: %w: %w", name, ErrIO, err)
	}
	return &OutputFile{name: name, f: f}, nil
}

// Name returns the name of the file.
func (out *OutputFile) Name() string { return out.name }

func (out *OutputFile) Write(p []byte) (int, error) {
	if out.done {
		return 0, fmt.Errorf("packet: write to %q: %w", out.name, os.ErrClosed)
	}
	return out.f.Write(p)
}

// Close syncs and releases the file. Closing an output file more than
// once fails with os.ErrClosed.
func (out *OutputFile) Close() error {
	if out.done {
		return fmt.Errorf("packet: close %q: %w", out.name, os.ErrClosed)
	}
	out.done = true

	err := out.f.Sync()
	if err != nil {
		_ = out.f.Close()
		return fmt.Errorf("packet: could not sync output file %q: %w: %w", out.name, ErrIO, err)
	}
	err = out.f.Close()
	if err != nil {
		return fmt.Errorf("packet: could not close output file %q: %w: %w", out.name, ErrIO, err)
	}
	return nil
}

var (
	_ io.ReadCloser  = (*InputFile)(nil)
	_ io.WriteCloser = (*OutputFile)(nil)
)

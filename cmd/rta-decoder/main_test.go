// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/internal/simu"
	"github.com/go-lpc/rta/packet"
)

func noenv(string) (string, bool) { return "", false }

// genFile writes a simulated run into a new file, followed by one packet
// no packet type of the schema recognizes.
func genFile(t *testing.T, cfg simu.Config) (schema, fname string) {
	t.Helper()
	tmp := t.TempDir()

	schema = filepath.Join(tmp, conf.FADCName)
	err := os.WriteFile(schema, conf.FADC, 0644)
	if err != nil {
		t.Fatalf("could not create schema: %+v", err)
	}

	ops, err := packet.NewOutputStream(packet.Config{Schema: schema})
	if err != nil {
		t.Fatalf("could not create output stream: %+v", err)
	}

	fname = filepath.Join(tmp, "out.raw")
	f, err := packet.CreateOutputFile(fname)
	if err != nil {
		t.Fatalf("could not create output file: %+v", err)
	}
	defer f.Close()
	ops.SetOutput(f)

	err = simu.Run(ops, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("could not generate run: %+v", err)
	}

	gen, err := simu.New(cfg)
	if err != nil {
		t.Fatalf("could not create generator: %+v", err)
	}
	p, err := ops.PacketType(simu.ArrayTrigger)
	if err != nil {
		t.Fatalf("could not create packet: %+v", err)
	}
	err = gen.FillTrigger(p, 0)
	if err != nil {
		t.Fatalf("could not fill packet: %+v", err)
	}
	err = p.DataFieldHeader().SetUint8("Service Subtype", 9)
	if err != nil {
		t.Fatalf("could not modify packet: %+v", err)
	}
	err = ops.WritePacket(p)
	if err != nil {
		t.Fatalf("could not write packet: %+v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close output file: %+v", err)
	}
	return schema, fname
}

func TestDecoder(t *testing.T) {
	for _, tc := range []struct {
		name string
		comp simu.Compression
	}{
		{"raw", simu.Compression{Algo: "none"}},
		{"lz4", simu.Compression{Algo: "lz4", Level: 1}},
		{"s2", simu.Compression{Algo: "s2", Level: 3}},
		{"zstd", simu.Compression{Algo: "zstd", Level: 9}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := simu.Default()
			cfg.Events = 3
			cfg.NTelTrig = 2
			cfg.ArrayTrigger = true
			cfg.Compression = tc.comp

			schema, fname := genFile(t, cfg)

			var outs []string
			for _, args := range [][]string{
				{"-schema", schema, fname},
				{"-schema", schema, "-mmap", fname},
				{"-schema", schema, "-slow", fname},
			} {
				out := new(bytes.Buffer)
				rc := xmain(out, args, noenv)
				if rc != 0 {
					t.Fatalf("invalid exit code %d for %q:\n%s", rc, args, out.String())
				}
				outs = append(outs, out.String())
			}

			got := outs[0]
			for _, want := range []string{
				"--\nAPID: 10\nN pixels 10 N samples 20  Evt Num. 0\n",
				"APID: 11\nN pixels 10 N samples 20  Evt Num. 2\n",
				"Packet not recognized\n",
				"rta-decoder: decoded 10 packets",
			} {
				if !strings.Contains(got, want) {
					t.Fatalf("missing %q in output:\n%s", want, got)
				}
			}
			if n := strings.Count(got, "--\n"); n != 6 {
				t.Fatalf("invalid number of displayed packets: got=%d, want=6", n)
			}

			for i, out := range outs[1:] {
				if out != got {
					t.Fatalf("output %d differs:\ngot:\n%s\nwant:\n%s", i+1, out, got)
				}
			}
		})
	}
}

func TestDecoderUsage(t *testing.T) {
	cfg := simu.Default()
	cfg.Events = 1
	schema, fname := genFile(t, cfg)

	home := filepath.Dir(schema)
	err := os.MkdirAll(filepath.Join(home, "conf"), 0755)
	if err != nil {
		t.Fatalf("could not create conf dir: %+v", err)
	}
	err = os.WriteFile(filepath.Join(home, "conf", conf.FADCName), conf.FADC, 0644)
	if err != nil {
		t.Fatalf("could not create schema: %+v", err)
	}
	ctarta := func(k string) (string, bool) {
		if k == "CTARTA" {
			return home, true
		}
		return "", false
	}

	for _, tc := range []struct {
		name string
		args []string
		env  func(string) (string, bool)
		rc   int
		want string
	}{
		{
			name: "ctarta",
			args: []string{fname},
			env:  ctarta,
			want: "rta-decoder: decoded 6 packets",
		},
		{
			name: "no-file",
			env:  ctarta,
			want: "Please, provide the name of the .raw file",
		},
		{
			name: "no-ctarta",
			args: []string{fname},
			env:  noenv,
			want: "CTARTA environment variable is not defined.",
		},
		{
			name: "help",
			args: []string{"-h"},
			env:  noenv,
			want: "Usage: rta-decoder [OPTIONS] file.raw",
		},
		{
			name: "version",
			args: []string{"-version"},
			env:  noenv,
			want: "rta-decoder: version: ",
		},
		{
			name: "missing-file",
			args: []string{"-schema", schema, filepath.Join(home, "missing.raw")},
			env:  noenv,
			rc:   1,
			want: "could not decode packets",
		},
		{
			name: "missing-schema",
			args: []string{"-schema", filepath.Join(home, "missing.xml"), fname},
			env:  noenv,
			rc:   1,
			want: "could not create input packet stream",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			rc := xmain(out, tc.args, tc.env)
			if rc != tc.rc {
				t.Fatalf("invalid exit code: got=%d, want=%d\n%s", rc, tc.rc, out.String())
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", out.String(), tc.want)
			}
		})
	}
}

func TestDecoderTruncated(t *testing.T) {
	cfg := simu.Default()
	cfg.Events = 1
	schema, fname := genFile(t, cfg)

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read file: %+v", err)
	}
	err = os.WriteFile(fname, raw[:len(raw)-3], 0644)
	if err != nil {
		t.Fatalf("could not truncate file: %+v", err)
	}

	out := new(bytes.Buffer)
	rc := xmain(out, []string{"-schema", schema, fname}, noenv)
	if rc != 1 {
		t.Fatalf("invalid exit code: %d\n%s", rc, out.String())
	}
	if !strings.Contains(out.String(), "could not read packet") {
		t.Fatalf("invalid output:\n%s", out.String())
	}
}

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

func genFile(t *testing.T, sch *packet.Schema, fname string, cfg simu.Config) {
	t.Helper()

	f, err := packet.CreateOutputFile(fname)
	if err != nil {
		t.Fatalf("could not create output file: %+v", err)
	}
	defer f.Close()

	ops := packet.NewOutputStreamFrom(sch)
	ops.SetOutput(f)

	err = simu.Run(ops, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("could not generate run: %+v", err)
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close output file: %+v", err)
	}
}

func TestDump(t *testing.T) {
	tmp := t.TempDir()
	schema := filepath.Join(tmp, conf.FADCName)
	err := os.WriteFile(schema, conf.FADC, 0644)
	if err != nil {
		t.Fatalf("could not create schema: %+v", err)
	}
	sch, err := packet.Open(schema)
	if err != nil {
		t.Fatalf("could not open schema: %+v", err)
	}

	var fnames []string
	for i, cfg := range []simu.Config{
		func() simu.Config {
			cfg := simu.Default()
			cfg.Events = 4
			cfg.NTelTrig = 3
			cfg.ArrayTrigger = true
			return cfg
		}(),
		func() simu.Config {
			cfg := simu.Default()
			cfg.Events = 2
			cfg.Compression = simu.Compression{Algo: "zstd", Level: 5}
			return cfg
		}(),
	} {
		fname := filepath.Join(tmp, "run-"+string(rune('a'+i))+".raw")
		genFile(t, sch, fname, cfg)
		fnames = append(fnames, fname)
	}

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"plain", nil},
		{"mmap", []string{"-mmap"}},
		{"verbose", []string{"-v"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"-schema", schema}, tc.args...)
			args = append(args, fnames...)

			out := new(bytes.Buffer)
			rc := xmain(out, args, noenv)
			if rc != 0 {
				t.Fatalf("invalid exit code %d:\n%s", rc, out.String())
			}

			got := out.String()
			ia := strings.Index(got, "=== "+fnames[0]+" ===")
			ib := strings.Index(got, "=== "+fnames[1]+" ===")
			if ia < 0 || ib < 0 || ib < ia {
				t.Fatalf("invalid summaries order:\n%s", got)
			}

			sa, sb := got[ia:ib], got[ib:]
			for _, want := range []string{
				"packets:            16\n",
				"compressed:          0\n",
				"  triggered_telescope1         12\n",
				"  array_trigger                 4\n",
				"  not recognized                0\n",
			} {
				if !strings.Contains(sa, want) {
					t.Fatalf("missing %q in summary:\n%s", want, sa)
				}
			}
			for _, want := range []string{
				"packets:            10\n",
				"compressed:         10\n",
				"  triggered_telescope1         10\n",
				"  array_trigger                 0\n",
			} {
				if !strings.Contains(sb, want) {
					t.Fatalf("missing %q in summary:\n%s", want, sb)
				}
			}

			lines := strings.Contains(got, "triggered_telescope1     apid=  10 ssc=    0")
			if lines != (tc.name == "verbose") {
				t.Fatalf("invalid verbose output:\n%s", got)
			}
		})
	}
}

func TestDumpErrors(t *testing.T) {
	tmp := t.TempDir()
	schema := filepath.Join(tmp, conf.FADCName)
	err := os.WriteFile(schema, conf.FADC, 0644)
	if err != nil {
		t.Fatalf("could not create schema: %+v", err)
	}
	bad := filepath.Join(tmp, "bad.raw")
	err = os.WriteFile(bad, []byte{1, 2, 3}, 0644)
	if err != nil {
		t.Fatalf("could not create file: %+v", err)
	}

	for _, tc := range []struct {
		name string
		args []string
		rc   int
		want string
	}{
		{"no-file", []string{"-schema", schema}, 0, "missing path to input RTA file"},
		{"no-ctarta", []string{bad}, 0, "CTARTA environment variable is not defined."},
		{"help", []string{"-h"}, 0, "Usage: rta-dump [OPTIONS] FILE1"},
		{"bad-schema", []string{"-schema", bad, bad}, 1, "could not open packet schema"},
		{"missing-file", []string{"-schema", schema, filepath.Join(tmp, "missing.raw")}, 1, "could not dump files"},
		{"malformed-file", []string{"-schema", schema, bad}, 1, "could not read packet 0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			rc := xmain(out, tc.args, noenv)
			if rc != tc.rc {
				t.Fatalf("invalid exit code: got=%d, want=%d\n%s", rc, tc.rc, out.String())
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", out.String(), tc.want)
			}
		})
	}
}

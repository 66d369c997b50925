// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simu

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/packet"
)

func TestLoad(t *testing.T) {
	tmp := t.TempDir()

	fname := filepath.Join(tmp, "run.yaml")
	err := os.WriteFile(fname, []byte(`
events: 3
npixels: 4
seed: 42
compression:
  algo: zstd
  level: 5
`), 0644)
	if err != nil {
		t.Fatalf("could not create config: %+v", err)
	}

	cfg, err := Load(fname)
	if err != nil {
		t.Fatalf("could not load config: %+v", err)
	}

	want := Default()
	want.Events = 3
	want.NPixels = 4
	want.Seed = 42
	want.Compression = Compression{Algo: "zstd", Level: 5}
	if cfg != want {
		t.Fatalf("invalid config:\ngot= %+v\nwant=%+v", cfg, want)
	}

	for _, tc := range []struct {
		name string
		doc  string
	}{
		{"bad-yaml", "events: [1, 2"},
		{"too-many-triggered", "ntel: 2\nntel-trig: 3"},
		{"no-telescope", "ntel: 0"},
		{"bad-algo", "compression: {algo: gzip}"},
		{"bad-level", "compression: {level: 16}"},
		{"bad-run", "run: 70000"},
		{"bad-samples", "nsamples: 256"},
		{"level-without-algo", "compression: {algo: none, level: 1}"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name+".yaml")
			err := os.WriteFile(fname, []byte(tc.doc), 0644)
			if err != nil {
				t.Fatalf("could not create config: %+v", err)
			}
			_, err = Load(fname)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	_, err = Load(filepath.Join(tmp, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestRun(t *testing.T) {
	sch, err := packet.Load(bytes.NewReader(conf.FADC))
	if err != nil {
		t.Fatalf("could not load schema: %+v", err)
	}

	for _, tc := range []struct {
		name  string
		algo  string
		level int
		trg   bool
	}{
		{name: "raw", algo: "lz4"},
		{name: "lz4", algo: "lz4", level: 1},
		{name: "zstd-trigger", algo: "zstd", level: 3, trg: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Events = 3
			cfg.ArrayTrigger = tc.trg
			cfg.Compression = Compression{Algo: tc.algo, Level: tc.level}

			var (
				buf = new(bytes.Buffer)
				out = new(bytes.Buffer)
				msg = log.New(out, "simu: ", 0)
				ops = packet.NewOutputStreamFrom(sch)
			)
			ops.SetOutput(buf)

			err := Run(ops, cfg, msg)
			if err != nil {
				t.Fatalf("could not run simulation: %+v", err)
			}

			ntrg := 0
			if tc.trg {
				ntrg = cfg.Events
			}
			if got, want := ops.Stats().Packets, int64(cfg.Events*cfg.NTelTrig+ntrg); got != want {
				t.Fatalf("invalid number of packets: got=%d, want=%d", got, want)
			}

			ips := packet.NewInputStreamFrom(sch)
			ips.SetInput(buf)

			var (
				fadc = 0
				trgs = 0
				ssc  = make(map[int64]int64)
			)
			for {
				p, err := ips.ReadPacket()
				if err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					t.Fatalf("could not read packet: %+v", err)
				}
				switch p.Name() {
				case ArrayTrigger:
					trgs++
					n, err := p.SourceDataField().FieldValue("numberOfTriggeredTelescopes")
					if err != nil {
						t.Fatalf("could not read trigger: %+v", err)
					}
					if n != int64(cfg.NTelTrig) {
						t.Fatalf("invalid number of triggered telescopes: %d", n)
					}
					continue
				case FADC:
					fadc++
				default:
					t.Fatalf("unexpected packet %q", p.Name())
				}

				apid, err := p.Header().FieldValue("APID")
				if err != nil {
					t.Fatalf("could not read APID: %+v", err)
				}
				tel, err := p.DataFieldHeader().Uint16("TelescopeID")
				if err != nil {
					t.Fatalf("could not read telescope ID: %+v", err)
				}
				if apid != int64(tel) {
					t.Fatalf("invalid APID: got=%d, want=%d", apid, tel)
				}

				seq, err := p.Header().FieldValue("Source Sequence Counter")
				if err != nil {
					t.Fatalf("could not read SSC: %+v", err)
				}
				if want := ssc[apid]; seq != want {
					t.Fatalf("invalid SSC for APID %d: got=%d, want=%d", apid, seq, want)
				}
				ssc[apid]++

				cnt, err := p.DataFieldHeader().Uint16("telescopeCounter")
				if err != nil {
					t.Fatalf("could not read telescope counter: %+v", err)
				}
				if got, want := int(cnt), fadc; got != want {
					t.Fatalf("invalid telescope counter: got=%d, want=%d", got, want)
				}

				sdf := p.SourceDataField()
				if got, want := sdf.NumberOfBlocks(0), cfg.NPixels; got != want {
					t.Fatalf("invalid number of pixels: got=%d, want=%d", got, want)
				}
				pix, err := sdf.Block(cfg.NPixels-1, 0)
				if err != nil {
					t.Fatalf("could not get pixel: %+v", err)
				}
				if got, want := pix.NumberOfBlocks(0), cfg.NSamples; got != want {
					t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
				}
				for j := 0; j < cfg.NSamples; j++ {
					blk, err := pix.Block(j, 0)
					if err != nil {
						t.Fatalf("could not get sample: %+v", err)
					}
					v, err := blk.Uint16("FADC")
					if err != nil {
						t.Fatalf("could not read sample: %+v", err)
					}
					if v >= 255 {
						t.Fatalf("invalid sample value %d", v)
					}
				}
			}

			if got, want := fadc, cfg.Events*cfg.NTelTrig; got != want {
				t.Fatalf("invalid number of FADC packets: got=%d, want=%d", got, want)
			}
			if got, want := trgs, ntrg; got != want {
				t.Fatalf("invalid number of trigger packets: got=%d, want=%d", got, want)
			}
			if got, want := len(ssc), cfg.NTelTrig; got != want {
				t.Fatalf("invalid number of APIDs: got=%d, want=%d", got, want)
			}
			if !bytes.Contains(out.Bytes(), []byte("END 15")) {
				t.Fatalf("missing end of run message:\n%s", out.String())
			}
		})
	}
}

func TestRunInvalid(t *testing.T) {
	sch, err := packet.Load(bytes.NewReader(conf.FADC))
	if err != nil {
		t.Fatalf("could not load schema: %+v", err)
	}
	ops := packet.NewOutputStreamFrom(sch)
	ops.SetOutput(io.Discard)

	cfg := Default()
	cfg.NTelTrig = cfg.NTel + 1
	err = Run(ops, cfg, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatalf("expected an error")
	}

	cfg = Default()
	cfg.NPixels = 5000
	err = Run(ops, cfg, log.New(io.Discard, "", 0))
	if !errors.Is(err, packet.ErrRange) {
		t.Fatalf("invalid error: %+v", err)
	}
}

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package simu generates dummy RTA telemetry for triggered telescopes.
package simu // import "github.com/go-lpc/rta/internal/simu"

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/go-lpc/rta/compr"
	"github.com/go-lpc/rta/packet"
	"gopkg.in/yaml.v3"
)

const (
	// FADC is the packet type holding the FADC samples of a telescope.
	FADC = "triggered_telescope1"
	// ArrayTrigger is the packet type summarizing an array trigger.
	ArrayTrigger = "array_trigger"

	sscMask = 1<<14 - 1
)

// Compression configures the compression of source data fields.
type Compression struct {
	Algo  string `yaml:"algo"`
	Level int    `yaml:"level"` // 0 disables compression
}

// Config describes a simulated run.
type Config struct {
	NTel      int   `yaml:"ntel"`      // number of telescopes of the array
	NTelTrig  int   `yaml:"ntel-trig"` // number of triggered telescopes per event
	Events    int   `yaml:"events"`
	RunNumber int   `yaml:"run"`
	NPixels   int   `yaml:"npixels"`
	NSamples  int   `yaml:"nsamples"`
	Seed      int64 `yaml:"seed"`

	// ArrayTrigger emits an array trigger packet before the packets of
	// each event.
	ArrayTrigger bool `yaml:"array-trigger"`

	Compression Compression `yaml:"compression"`
}

// Default returns the configuration of the reference run.
func Default() Config {
	return Config{
		NTel:      10,
		NTelTrig:  5,
		Events:    100,
		RunNumber: 0,
		NPixels:   10,
		NSamples:  20,
		Compression: Compression{
			Algo:  compr.LZ4.String(),
			Level: 0,
		},
	}
}

// Load reads a YAML run configuration, on top of the default one.
func Load(fname string) (Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return Default(), fmt.Errorf("simu: could not read config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return cfg, fmt.Errorf("simu: could not load config %q: %w", fname, err)
	}
	return cfg, nil
}

// Parse decodes a YAML run configuration, on top of the default one.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	err := yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("simu: could not decode config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the consistency of the configuration.
func (cfg Config) Validate() error {
	switch {
	case cfg.NTel <= 0:
		return fmt.Errorf("simu: invalid number of telescopes %d", cfg.NTel)
	case cfg.NTelTrig < 0 || cfg.NTelTrig > cfg.NTel:
		return fmt.Errorf("simu: invalid number of triggered telescopes %d (ntel=%d)", cfg.NTelTrig, cfg.NTel)
	case cfg.Events < 0:
		return fmt.Errorf("simu: invalid number of events %d", cfg.Events)
	case cfg.RunNumber < 0 || cfg.RunNumber > 0xffff:
		return fmt.Errorf("simu: invalid run number %d", cfg.RunNumber)
	case cfg.NPixels < 0:
		return fmt.Errorf("simu: invalid number of pixels %d", cfg.NPixels)
	case cfg.NSamples < 0 || cfg.NSamples > 0xff:
		return fmt.Errorf("simu: invalid number of samples %d", cfg.NSamples)
	case cfg.Compression.Level < 0 || cfg.Compression.Level > compr.MaxLevel:
		return fmt.Errorf("simu: invalid compression level %d", cfg.Compression.Level)
	}

	algo, err := compr.ParseAlgorithm(cfg.Compression.Algo)
	if err != nil {
		return fmt.Errorf("simu: invalid compression: %w", err)
	}
	if algo == compr.None && cfg.Compression.Level != 0 {
		return fmt.Errorf("simu: compression level %d needs an algorithm", cfg.Compression.Level)
	}
	return nil
}

// Generator fills packets with dummy telescope data.
type Generator struct {
	cfg  Config
	rnd  *rand.Rand
	algo compr.Algorithm

	ssc    map[int]int // source sequence counter, per APID
	counts int         // number of generated telescope packets
}

// New returns a generator for the given run.
func New(cfg Config) (*Generator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	algo, _ := compr.ParseAlgorithm(cfg.Compression.Algo)
	return &Generator{
		cfg:  cfg,
		rnd:  rand.New(rand.NewSource(cfg.Seed)),
		algo: algo,
		ssc:  make(map[int]int),
	}, nil
}

// Counts returns the number of generated telescope packets.
func (gen *Generator) Counts() int { return gen.counts }

// TelescopeID returns the ID of the i-th triggered telescope of an event.
func TelescopeID(i int) int { return i + 10 }

// Fill fills p, a FADC packet, with the samples of the i-th triggered
// telescope of event evt.
func (gen *Generator) Fill(p *packet.Packet, evt, i int) error {
	var (
		cfg = gen.cfg
		tel = TelescopeID(i)
		ssc = gen.ssc[tel]
		hdr = p.Header()
		dfh = p.DataFieldHeader()
		sdf = p.SourceDataField()
	)

	gen.counts++

	errs := []error{
		hdr.SetFieldValue("APID", int64(tel)),
		hdr.SetFieldValue("Packet Subtype", int64(cfg.NSamples)),
		hdr.SetFieldValue("Source Sequence Counter", int64(ssc)),

		dfh.SetFloat32("LTtime", float32(i*1000)),
		dfh.SetUint16("ArrayID", 1),
		dfh.SetUint16("runNumber", uint16(cfg.RunNumber)),
		dfh.SetUint32("eventNumber", uint32(evt)),
		dfh.SetUint16("TelescopeID", uint16(tel)),
		dfh.SetFieldValue("numberOfTriggeredTelescopes", int64(cfg.NTelTrig)),
		dfh.SetUint16("telescopeCounter", uint16(gen.counts)),

		sdf.SetFieldValue("Number of samples", int64(cfg.NSamples)),
		sdf.SetUint32("eventNumber", uint32(evt)),
	}
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("simu: could not fill packet headers: %w", err)
		}
	}

	kpix, err := sdf.Kind("pixel")
	if err != nil {
		return err
	}
	kpid, err := sdf.Kind("pixelID")
	if err != nil {
		return err
	}

	err = sdf.SetNumberOfBlocks(cfg.NPixels, kpix)
	if err != nil {
		return fmt.Errorf("simu: could not set number of pixels: %w", err)
	}
	err = sdf.SetNumberOfBlocks(cfg.NPixels, kpid)
	if err != nil {
		return fmt.Errorf("simu: could not set number of pixel IDs: %w", err)
	}

	for ipix := 0; ipix < cfg.NPixels; ipix++ {
		pix, err := sdf.Block(ipix, kpix)
		if err != nil {
			return err
		}
		err = pix.SetNumberOfBlocks(cfg.NSamples, 0)
		if err != nil {
			return fmt.Errorf("simu: could not set number of samples: %w", err)
		}
		for j := 0; j < cfg.NSamples; j++ {
			blk, err := pix.Block(j, 0)
			if err != nil {
				return err
			}
			err = blk.SetFieldValueAt(0, int64(gen.rnd.Intn(255)))
			if err != nil {
				return fmt.Errorf("simu: could not set sample: %w", err)
			}
		}
		pid, err := sdf.Block(ipix, kpid)
		if err != nil {
			return err
		}
		err = pid.SetFieldValueAt(0, int64(ipix))
		if err != nil {
			return fmt.Errorf("simu: could not set pixel ID: %w", err)
		}
	}

	gen.ssc[tel] = (ssc + 1) & sscMask
	return nil
}

// Encode fills p with the i-th triggered telescope of event evt, then
// encodes and compresses it.
func (gen *Generator) Encode(p *packet.Packet, evt, i int) error {
	err := gen.Fill(p, evt, i)
	if err != nil {
		return fmt.Errorf("simu: evt %d, tel %d: %w", evt, TelescopeID(i), err)
	}
	err = p.Encode()
	if err != nil {
		return fmt.Errorf("simu: could not encode evt %d, tel %d: %w", evt, TelescopeID(i), err)
	}
	err = p.CompressData(gen.algo, gen.cfg.Compression.Level)
	if err != nil {
		return fmt.Errorf("simu: could not compress evt %d, tel %d: %w", evt, TelescopeID(i), err)
	}
	return nil
}

// FillTrigger fills p, an array trigger packet, with the triggered
// telescopes of event evt.
func (gen *Generator) FillTrigger(p *packet.Packet, evt int) error {
	var (
		hdr  = p.Header()
		dfh  = p.DataFieldHeader()
		sdf  = p.SourceDataField()
		errs []error
	)
	errs = append(errs,
		hdr.SetFieldValue("APID", 1),
		hdr.SetFieldValue("Source Sequence Counter", int64(evt&sscMask)),
		dfh.SetFloat32("LTtime", 0),
		dfh.SetUint16("ArrayID", 1),
		dfh.SetUint16("runNumber", uint16(gen.cfg.RunNumber)),
		dfh.SetUint32("eventNumber", uint32(evt)),
		sdf.SetNumberOfBlocks(gen.cfg.NTelTrig, 0),
	)
	for i := 0; i < gen.cfg.NTelTrig; i++ {
		tel, err := sdf.Block(i, 0)
		if err != nil {
			return err
		}
		errs = append(errs,
			tel.SetUint16("TelescopeID", uint16(TelescopeID(i))),
			tel.SetFloat32("Trigger Time", float32(i*1000)),
		)
	}
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("simu: could not fill array trigger: %w", err)
		}
	}
	return nil
}

// Run writes the packets of a simulated run to ops.
func Run(ops *packet.OutputStream, cfg Config, msg *log.Logger) error {
	gen, err := New(cfg)
	if err != nil {
		return err
	}

	p, err := ops.PacketType(FADC)
	if err != nil {
		return fmt.Errorf("simu: could not get packet type: %w", err)
	}

	var trg *packet.Packet
	if cfg.ArrayTrigger {
		trg, err = ops.PacketType(ArrayTrigger)
		if err != nil {
			return fmt.Errorf("simu: could not get packet type: %w", err)
		}
	}

	var totbytes int
	for evt := 0; evt < cfg.Events; evt++ {
		if evt%100 == 0 {
			msg.Printf("processing evt %d...", evt)
		}

		if trg != nil {
			err = gen.FillTrigger(trg, evt)
			if err != nil {
				return err
			}
			err = ops.WritePacket(trg)
			if err != nil {
				return fmt.Errorf("simu: could not write array trigger of evt %d: %w", evt, err)
			}
		}

		for i := 0; i < cfg.NTelTrig; i++ {
			err = gen.Encode(p, evt, i)
			if err != nil {
				return err
			}
			err = ops.WritePacket(p)
			if err != nil {
				return fmt.Errorf("simu: could not write evt %d, tel %d: %w", evt, TelescopeID(i), err)
			}
			totbytes += p.Size()
		}
	}

	msg.Printf("END %d (%d bytes)", gen.Counts(), totbytes)
	return nil
}

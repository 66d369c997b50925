// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rta-decoder decodes and displays the triggered telescope packets of a
// raw RTA file.
//
// Usage: rta-decoder [OPTIONS] file.raw
//
// The packet schema is read from $CTARTA/conf/rta_fadc_v3.xml, unless
// the -schema option is given.
//
// Example:
//
//	$> CTARTA=/opt/ctarta rta-decoder ./out.raw
//	--
//	APID: 10
//	N pixels 10 N samples 20  Evt Num. 0
//	437
//	243 26 70 [...]
//	[...]
//	rta-decoder: decoded 500 packets (424000 bytes)
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/rta"
	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/packet"
)

const usage = `rta-decoder decodes and displays the triggered telescope packets of a raw RTA file.

Usage: rta-decoder [OPTIONS] file.raw

Example:

 $> CTARTA=/opt/ctarta rta-decoder ./out.raw

options:
`

const fadcType = "triggered_telescope1"

func main() {
	os.Exit(xmain(os.Stdout, os.Args[1:], os.LookupEnv))
}

func xmain(w io.Writer, args []string, env func(string) (string, bool)) int {
	msg := log.New(w, "rta-decoder: ", 0)

	var (
		fset = flag.NewFlagSet("rta-decoder", flag.ContinueOnError)

		schema = fset.String("schema", "", "path to the XML packet schema (default: $CTARTA/conf/"+conf.FADCName+")")
		mmap   = fset.Bool("mmap", false, "memory-map the input file")
		slow   = fset.Bool("slow", false, "read samples through blocks instead of the raw source data field")
		vers   = fset.Bool("version", false, "print version and exit")
	)
	fset.SetOutput(w)
	fset.Usage = func() {
		fmt.Fprint(w, usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return 0
	}

	if *vers {
		v, sum := rta.Version()
		msg.Printf("version: %q %s", v, sum)
		return 0
	}

	if fset.NArg() == 0 {
		msg.Printf("Please, provide the name of the .raw file")
		return 0
	}

	fname, ok := schemaFrom(*schema, env)
	if !ok {
		msg.Printf("CTARTA environment variable is not defined.")
		return 0
	}

	var opts []packet.FileOption
	if *mmap {
		opts = append(opts, packet.WithMmap())
	}

	err = process(w, fset.Arg(0), fname, *slow, msg, opts...)
	if err != nil {
		msg.Printf("could not decode packets: %+v", err)
		return 1
	}
	return 0
}

func process(w io.Writer, fname, schema string, slow bool, msg *log.Logger, opts ...packet.FileOption) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	ips, err := packet.NewInputStream(packet.Config{Schema: schema})
	if err != nil {
		return fmt.Errorf("could not create input packet stream: %w", err)
	}

	in, err := packet.OpenInputFile(fname, opts...)
	if err != nil {
		return err
	}
	defer in.Close()

	ips.SetInput(in)

	// packet used for routing.
	proto, err := ips.PacketType(fadcType)
	if err != nil {
		return err
	}
	ctaCamID := proto.ID()

	var (
		nops     = 0
		totbytes = 0
	)
loop:
	for {
		p, err := ips.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not read packet %d: %w", nops, err)
		}
		nops++

		switch p.ID() {
		case packet.PacketNotRecognized:
			fmt.Fprintf(wbuf, "Packet not recognized\n")
			continue
		case ctaCamID:
		default:
			continue
		}

		fmt.Fprintf(wbuf, "--\n")
		totbytes += p.Size()

		err = display(wbuf, p, slow)
		if err != nil {
			return fmt.Errorf("could not display packet %d: %w", nops-1, err)
		}
	}

	err = wbuf.Flush()
	if err != nil {
		return err
	}

	msg.Printf("decoded %d packets (%d bytes)", nops, totbytes)
	return nil
}

func display(w io.Writer, p *packet.Packet, slow bool) error {
	apid, err := p.Header().FieldValue("APID")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "APID: %d\n", apid)

	if slow {
		return displayBlocks(w, p)
	}
	return displayRaw(w, p)
}

// displayRaw displays the samples read from the raw source data field,
// without decoding its blocks.
func displayRaw(w io.Writer, p *packet.Packet) error {
	data, err := p.Data()
	if err != nil {
		return err
	}

	sch := p.Schema()
	def, err := sch.Packet(p.Name())
	if err != nil {
		return err
	}

	sdf := def.SourceDataField
	get := func(name string) (int, error) {
		i, err := sdf.Field(name)
		if err != nil {
			return 0, err
		}
		v, err := packet.DecodeField(data, sdf.Fields[i], sch.Order())
		return int(v), err
	}

	npix, err := get("Number of pixels")
	if err != nil {
		return err
	}
	nsamp, err := get("Number of samples")
	if err != nil {
		return err
	}
	evt, err := get("eventNumber")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "N pixels %d N samples %d  Evt Num. %d\n", npix, nsamp, evt)
	fmt.Fprintf(w, "%d\n", p.PacketLength())

	var (
		fld = packet.Field{Name: "FADC", Type: packet.Uint16, Width: 16}
		off = sdf.Size
	)
	if len(data) < off+2*npix*nsamp {
		return fmt.Errorf("source data field too small for %dx%d samples: %w", npix, nsamp, packet.ErrMalformed)
	}

	for pix := 0; pix < npix; pix++ {
		for i := 0; i < nsamp; i++ {
			v, err := packet.DecodeField(data[off:], fld, sch.Order())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d ", v)
			off += 2
		}
		fmt.Fprintf(w, "\n")
	}
	return nil
}

// displayBlocks displays the samples read through the pixel blocks.
func displayBlocks(w io.Writer, p *packet.Packet) error {
	plen := p.PacketLength()
	if p.IsCompressed() {
		err := p.Decompress()
		if err != nil {
			return err
		}
	}

	sdf := p.SourceDataField()
	npix, err := sdf.Uint16("Number of pixels")
	if err != nil {
		return err
	}
	nsamp, err := sdf.Uint16("Number of samples")
	if err != nil {
		return err
	}
	evt, err := sdf.Uint32("eventNumber")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "N pixels %d N samples %d  Evt Num. %d\n", npix, nsamp, evt)
	fmt.Fprintf(w, "%d\n", plen)

	kind, err := sdf.Kind("pixel")
	if err != nil {
		return err
	}
	for i := 0; i < sdf.NumberOfBlocks(kind); i++ {
		pix, err := sdf.Block(i, kind)
		if err != nil {
			return err
		}
		for j := 0; j < pix.NumberOfBlocks(0); j++ {
			blk, err := pix.Block(j, 0)
			if err != nil {
				return err
			}
			v, err := blk.Uint16("FADC")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d ", v)
		}
		fmt.Fprintf(w, "\n")
	}
	return nil
}

// schemaFrom returns the path to the packet schema.
func schemaFrom(schema string, env func(string) (string, bool)) (string, bool) {
	if schema != "" {
		return schema, true
	}
	home, ok := env("CTARTA")
	if !ok || home == "" {
		return "", false
	}
	return filepath.Join(home, "conf", conf.FADCName), true
}

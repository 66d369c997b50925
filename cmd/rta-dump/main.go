// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rta-dump displays a summary of the packets held in raw RTA files.
//
// Files are scanned concurrently; summaries are displayed in the order
// of the command line.
//
// Usage: rta-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> CTARTA=/opt/ctarta rta-dump ./out.raw
//	=== ./out.raw ===
//	packets:           500
//	bytes:          424000
//	compressed:        500
//	  triggered_telescope1       500
//	  array_trigger                0
//	  not recognized               0
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/packet"
	"golang.org/x/sync/errgroup"
)

const usage = `rta-dump displays a summary of the packets held in raw RTA files.

Usage: rta-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> CTARTA=/opt/ctarta rta-dump ./out.raw

options:
`

func main() {
	os.Exit(xmain(os.Stdout, os.Args[1:], os.LookupEnv))
}

func xmain(w io.Writer, args []string, env func(string) (string, bool)) int {
	msg := log.New(w, "rta-dump: ", 0)

	var (
		fset = flag.NewFlagSet("rta-dump", flag.ContinueOnError)

		schema  = fset.String("schema", "", "path to the XML packet schema (default: $CTARTA/conf/"+conf.FADCName+")")
		mmap    = fset.Bool("mmap", false, "memory-map the input files")
		verbose = fset.Bool("v", false, "display one line per packet")
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

	if fset.NArg() == 0 {
		msg.Printf("missing path to input RTA file")
		return 0
	}

	fname := *schema
	if fname == "" {
		home, ok := env("CTARTA")
		if !ok || home == "" {
			msg.Printf("CTARTA environment variable is not defined.")
			return 0
		}
		fname = filepath.Join(home, "conf", conf.FADCName)
	}

	sch, err := packet.Open(fname)
	if err != nil {
		msg.Printf("could not open packet schema: %+v", err)
		return 1
	}

	var opts []packet.FileOption
	if *mmap {
		opts = append(opts, packet.WithMmap())
	}

	err = process(w, fset.Args(), sch, *verbose, opts...)
	if err != nil {
		msg.Printf("could not dump files: %+v", err)
		return 1
	}
	return 0
}

type summary struct {
	name    string
	packets int
	size    int
	compr   int
	unknown int
	types   map[string]int

	lines bytes.Buffer // per-packet lines, in verbose mode
}

func process(w io.Writer, fnames []string, sch *packet.Schema, verbose bool, opts ...packet.FileOption) error {
	var (
		grp  errgroup.Group
		sums = make([]*summary, len(fnames))
	)
	for i := range fnames {
		i := i
		grp.Go(func() error {
			sum, err := dump(fnames[i], sch, verbose, opts...)
			if err != nil {
				return fmt.Errorf("could not dump file %q: %w", fnames[i], err)
			}
			sums[i] = sum
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return err
	}

	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	for _, sum := range sums {
		fmt.Fprintf(wbuf, "=== %s ===\n", sum.name)
		if verbose {
			_, _ = sum.lines.WriteTo(wbuf)
		}
		fmt.Fprintf(wbuf, "packets:    % 10d\n", sum.packets)
		fmt.Fprintf(wbuf, "bytes:      % 10d\n", sum.size)
		fmt.Fprintf(wbuf, "compressed: % 10d\n", sum.compr)
		for _, name := range sch.PacketNames() {
			fmt.Fprintf(wbuf, "  %-24s % 6d\n", name, sum.types[name])
		}
		fmt.Fprintf(wbuf, "  %-24s % 6d\n", "not recognized", sum.unknown)
	}

	return wbuf.Flush()
}

func dump(fname string, sch *packet.Schema, verbose bool, opts ...packet.FileOption) (*summary, error) {
	f, err := packet.OpenInputFile(fname, opts...)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ips := packet.NewInputStreamFrom(sch)
	ips.SetInput(f)

	sum := &summary{
		name:  fname,
		types: make(map[string]int),
	}

loop:
	for {
		p, err := ips.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return nil, fmt.Errorf("could not read packet %d: %w", sum.packets, err)
		}

		if verbose {
			err = display(&sum.lines, sum.packets, p)
			if err != nil {
				return nil, fmt.Errorf("could not display packet %d: %w", sum.packets, err)
			}
		}

		sum.packets++
		sum.size += p.Size()
		if p.IsCompressed() {
			sum.compr++
		}
		switch p.ID() {
		case packet.PacketNotRecognized:
			sum.unknown++
		default:
			sum.types[p.Name()]++
		}
	}

	return sum, nil
}

func display(w io.Writer, i int, p *packet.Packet) error {
	hdr := p.Header()
	apid, err := hdr.FieldValue("APID")
	if err != nil {
		return err
	}
	ssc, err := hdr.FieldValue("Source Sequence Counter")
	if err != nil {
		return err
	}

	name := p.Name()
	if p.ID() == packet.PacketNotRecognized {
		name = "?"
	}
	fmt.Fprintf(w, "%6d %-24s apid=%4d ssc=%5d len=%6d compr=%v\n",
		i, name, apid, ssc, p.PacketLength(), p.IsCompressed(),
	)
	return nil
}

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rta2lcio converts a raw RTA file to an LCIO one.
package main // import "github.com/go-lpc/rta/cmd/rta2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/internal/xcnv"
	"github.com/go-lpc/rta/packet"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "rta2lcio: ", 0)
)

func main() {
	var (
		oname  = flag.String("o", "out.lcio", "path to output LCIO file")
		compr  = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		schema = flag.String("schema", "", "path to the XML packet schema (default: $CTARTA/conf/"+conf.FADCName+")")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: rta2lcio [OPTIONS] file.raw

ex:
 $> rta2lcio -o out.lcio -lvl=9 ./input.raw

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input RTA raw file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	if *schema == "" {
		home := os.Getenv("CTARTA")
		if home == "" {
			msg.Fatalf("CTARTA environment variable is not defined.")
		}
		*schema = filepath.Join(home, "conf", conf.FADCName)
	}

	err := process(*oname, *compr, flag.Arg(0), *schema)
	if err != nil {
		msg.Fatalf("could not convert RTA file: %+v", err)
	}
}

func process(oname string, lvl int, fname, schema string) error {
	ips, err := packet.NewInputStream(packet.Config{Schema: schema})
	if err != nil {
		return fmt.Errorf("could not create input packet stream: %w", err)
	}

	f, err := packet.OpenInputFile(fname)
	if err != nil {
		return fmt.Errorf("could not open RTA file: %w", err)
	}
	defer f.Close()

	ips.SetInput(f)

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	err = xcnv.RTA2LCIO(w, ips, msg)
	if err != nil {
		return fmt.Errorf("could not convert RTA to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

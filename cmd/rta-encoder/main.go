// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// rta-encoder encodes dummy CTA trigger events into a raw file of RTA
// telemetry packets.
//
// Usage: rta-encoder [OPTIONS] file.raw
//
// The packet schema is read from $CTARTA/conf/rta_fadc_v3.xml, unless
// the -schema option is given.
//
// Example:
//
//	$> CTARTA=/opt/ctarta rta-encoder -lvl=1 -algo=lz4 ./out.raw
//	rta-encoder: processing evt 0...
//	rta-encoder: END 500 (424000 bytes)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/rta"
	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/internal/simu"
	"github.com/go-lpc/rta/packet"
)

const usage = `rta-encoder encodes dummy CTA trigger events into a raw file of RTA telemetry packets.

Usage: rta-encoder [OPTIONS] file.raw

Example:

 $> CTARTA=/opt/ctarta rta-encoder -lvl=1 -algo=lz4 ./out.raw

options:
`

func main() {
	os.Exit(xmain(os.Stdout, os.Args[1:], os.LookupEnv))
}

func xmain(w io.Writer, args []string, env func(string) (string, bool)) int {
	msg := log.New(w, "rta-encoder: ", 0)

	var (
		fset = flag.NewFlagSet("rta-encoder", flag.ContinueOnError)

		schema  = fset.String("schema", "", "path to the XML packet schema (default: $CTARTA/conf/"+conf.FADCName+")")
		cfgName = fset.String("cfg", "", "path to a YAML run configuration")
		algo    = fset.String("algo", "", "compression algorithm (none, lz4, s2, zstd)")
		lvl     = fset.Int("lvl", -1, "compression level (0: no compression)")
		evts    = fset.Int("evts", -1, "number of events to generate")
		trigger = fset.Bool("trigger", false, "emit array trigger packets")
		vers    = fset.Bool("version", false, "print version and exit")
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

	cfg := simu.Default()
	if *cfgName != "" {
		cfg, err = simu.Load(*cfgName)
		if err != nil {
			msg.Printf("could not load run configuration: %+v", err)
			return 1
		}
	}
	if *algo != "" {
		cfg.Compression.Algo = *algo
	}
	if *lvl >= 0 {
		cfg.Compression.Level = *lvl
	}
	if *evts >= 0 {
		cfg.Events = *evts
	}
	cfg.ArrayTrigger = cfg.ArrayTrigger || *trigger

	err = process(fset.Arg(0), fname, cfg, msg)
	if err != nil {
		msg.Printf("could not encode packets: %+v", err)
		return 1
	}
	return 0
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

func process(oname, schema string, cfg simu.Config, msg *log.Logger) error {
	ops, err := packet.NewOutputStream(packet.Config{Schema: schema})
	if err != nil {
		return fmt.Errorf("could not create output packet stream: %w", err)
	}

	out, err := packet.CreateOutputFile(oname)
	if err != nil {
		return err
	}
	defer out.Close()

	ops.SetOutput(out)

	err = simu.Run(ops, cfg, msg)
	if err != nil {
		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	return nil
}

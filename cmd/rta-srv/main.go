// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rta-srv starts a TDAQ server publishing simulated RTA packets.
//
// The run is configured by the body of the /config command, a YAML
// document with the same content as the rta-encoder -cfg file.
// Encoded packets are published on the /packets output.
package main // import "github.com/go-lpc/rta/cmd/rta-srv"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/rta/conf"
	"github.com/go-lpc/rta/internal/simu"
	"github.com/go-lpc/rta/packet"
)

func main() {
	cmd := flags.New()

	dev, err := newCamera(cmd.Args[0], 100*time.Millisecond)
	if err != nil {
		log.Panicf("could not create camera: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/packets", dev.packets)

	srv.RunHandle(dev.run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type camera struct {
	name string
	freq time.Duration

	sch *packet.Schema
	cfg simu.Config
	gen *simu.Generator

	fadc *packet.Packet
	trg  *packet.Packet

	evt  int
	n    int
	data chan []byte
}

func newCamera(name string, freq time.Duration) (*camera, error) {
	sch, err := packet.Load(bytes.NewReader(conf.FADC))
	if err != nil {
		return nil, fmt.Errorf("could not load packet schema: %w", err)
	}
	return &camera{
		name: name,
		freq: freq,
		sch:  sch,
		cfg:  simu.Default(),
	}, nil
}

// configure sets the run configuration from a YAML document.
// An empty document selects the default configuration.
func (dev *camera) configure(doc []byte) error {
	if len(bytes.TrimSpace(doc)) == 0 {
		dev.cfg = simu.Default()
		return nil
	}
	cfg, err := simu.Parse(doc)
	if err != nil {
		return err
	}
	dev.cfg = cfg
	return nil
}

func (dev *camera) init() error {
	gen, err := simu.New(dev.cfg)
	if err != nil {
		return fmt.Errorf("could not create generator: %w", err)
	}

	fadc, err := dev.sch.NewPacket(simu.FADC)
	if err != nil {
		return err
	}

	var trg *packet.Packet
	if dev.cfg.ArrayTrigger {
		trg, err = dev.sch.NewPacket(simu.ArrayTrigger)
		if err != nil {
			return err
		}
	}

	dev.gen = gen
	dev.fadc = fadc
	dev.trg = trg
	dev.evt = 0
	dev.n = 0
	dev.data = make(chan []byte, 1024)
	return nil
}

// event returns the encoded packets of the next event, or io.EOF once
// all the events of the run have been generated.
func (dev *camera) event() ([][]byte, error) {
	if dev.gen == nil {
		return nil, fmt.Errorf("camera %q not initialized", dev.name)
	}
	if dev.evt >= dev.cfg.Events {
		return nil, io.EOF
	}

	var (
		evt = dev.evt
		out = make([][]byte, 0, dev.cfg.NTelTrig+1)
	)

	if dev.trg != nil {
		err := dev.gen.FillTrigger(dev.trg, evt)
		if err != nil {
			return nil, err
		}
		err = dev.trg.Encode()
		if err != nil {
			return nil, fmt.Errorf("could not encode array trigger of evt %d: %w", evt, err)
		}
		out = append(out, append([]byte(nil), dev.trg.Bytes()...))
	}

	for i := 0; i < dev.cfg.NTelTrig; i++ {
		err := dev.gen.Encode(dev.fadc, evt, i)
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte(nil), dev.fadc.Bytes()...))
	}

	dev.evt++
	return out, nil
}

func (dev *camera) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := dev.configure(req.Body)
	if err != nil {
		ctx.Msg.Errorf("could not configure run: %+v", err)
		return fmt.Errorf("could not configure run: %w", err)
	}
	return nil
}

func (dev *camera) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := dev.init()
	if err != nil {
		ctx.Msg.Errorf("could not initialize camera: %+v", err)
		return fmt.Errorf("could not initialize camera: %w", err)
	}
	return nil
}

func (dev *camera) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := dev.init()
	if err != nil {
		ctx.Msg.Errorf("could not reset camera: %+v", err)
		return fmt.Errorf("could not reset camera: %w", err)
	}
	return nil
}

func (dev *camera) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (dev *camera) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := dev.n
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *camera) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

func (dev *camera) packets(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *camera) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			raws, err := dev.event()
			switch {
			case errors.Is(err, io.EOF):
				<-ctx.Ctx.Done()
				return nil
			case err != nil:
				return fmt.Errorf("could not generate evt %d: %w", dev.evt, err)
			}
			for _, raw := range raws {
				select {
				case dev.data <- raw:
					dev.n++
				default:
				}
			}
		}
		time.Sleep(dev.freq)
	}
}

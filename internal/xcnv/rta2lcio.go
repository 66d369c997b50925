// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/rta/packet"
	"go-hep.org/x/hep/lcio"
)

const (
	detector = "CTA"

	fadcType    = "triggered_telescope1"
	triggerType = "array_trigger"

	// TriggerCollection is the name of the LCIO collection of array triggers.
	TriggerCollection = "ARRAY_TRIGGER"
)

// TelescopeCollection returns the name of the LCIO collection holding the
// FADC samples of a telescope.
func TelescopeCollection(id int) string {
	return fmt.Sprintf("TEL_%03d", id)
}

// RTA2LCIO converts the packets read from ips into LCIO events.
// Consecutive packets with the same event number make up one LCIO event,
// with one collection per telescope. Each element of a telescope
// collection holds the pixel ID followed by the samples of that pixel.
func RTA2LCIO(w *lcio.Writer, ips *packet.InputStream, msg *log.Logger) error {
	var (
		evt   *lcio.Event
		ievt  = 0
		nskip = 0
	)

	flush := func() error {
		if evt == nil {
			return nil
		}
		err := w.WriteEvent(evt)
		if err != nil {
			return fmt.Errorf("could not write LCIO event %d: %w", evt.EventNumber, err)
		}
		evt = nil
		return nil
	}

loop:
	for i := 0; ; i++ {
		p, err := ips.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not read packet %d: %w", i, err)
		}

		if p.ID() == packet.PacketNotRecognized {
			nskip++
			continue
		}
		if p.Name() != fadcType && p.Name() != triggerType {
			nskip++
			continue
		}

		dfh := p.DataFieldHeader()
		run, err := dfh.Uint16("runNumber")
		if err != nil {
			return fmt.Errorf("could not read run number of packet %d: %w", i, err)
		}
		num, err := dfh.Uint32("eventNumber")
		if err != nil {
			return fmt.Errorf("could not read event number of packet %d: %w", i, err)
		}

		if evt != nil && (evt.EventNumber != int32(num) || evt.RunNumber != int32(run)) {
			err = flush()
			if err != nil {
				return err
			}
		}

		if evt == nil {
			if ievt == 0 {
				err = w.WriteRunHeader(&lcio.RunHeader{
					RunNumber: int32(run),
					Detector:  detector,
					Descr:     ips.Schema().Name,
				})
				if err != nil {
					return fmt.Errorf("could not write run header: %w", err)
				}
			}
			if ievt%100 == 0 {
				msg.Printf("processing evt %d...", ievt)
			}
			ievt++
			evt = &lcio.Event{
				RunNumber:   int32(run),
				EventNumber: int32(num),
				Detector:    detector,
			}
		}

		switch p.Name() {
		case fadcType:
			err = addTelescope(evt, p)
		case triggerType:
			err = addTrigger(evt, p)
		}
		if err != nil {
			return fmt.Errorf("could not convert packet %d: %w", i, err)
		}
	}

	err := flush()
	if err != nil {
		return err
	}

	if nskip > 0 {
		msg.Printf("skipped %d packets", nskip)
	}
	return nil
}

func addTelescope(evt *lcio.Event, p *packet.Packet) error {
	tel, err := p.DataFieldHeader().Uint16("TelescopeID")
	if err != nil {
		return err
	}

	sdf := p.SourceDataField()
	kpix, err := sdf.Kind("pixel")
	if err != nil {
		return err
	}
	kpid, err := sdf.Kind("pixelID")
	if err != nil {
		return err
	}

	var (
		npix = sdf.NumberOfBlocks(kpix)
		pids = sdf.NumberOfBlocks(kpid)
		obj  = &lcio.GenericObject{
			Data: make([]lcio.GenericObjectData, npix),
		}
	)
	for i := range obj.Data {
		pix, err := sdf.Block(i, kpix)
		if err != nil {
			return err
		}

		pid := int32(i)
		if i < pids {
			blk, err := sdf.Block(i, kpid)
			if err != nil {
				return err
			}
			v, err := blk.FieldValueAt(0)
			if err != nil {
				return err
			}
			pid = int32(v)
		}

		n := pix.NumberOfBlocks(0)
		i32s := make([]int32, 1+n)
		i32s[0] = pid
		for j := 0; j < n; j++ {
			blk, err := pix.Block(j, 0)
			if err != nil {
				return err
			}
			v, err := blk.FieldValueAt(0)
			if err != nil {
				return err
			}
			i32s[1+j] = int32(v)
		}
		obj.Data[i].I32s = i32s
	}

	name := TelescopeCollection(int(tel))
	if evt.Has(name) {
		return fmt.Errorf("duplicate telescope %d in event %d", tel, evt.EventNumber)
	}
	evt.Add(name, obj)
	return nil
}

func addTrigger(evt *lcio.Event, p *packet.Packet) error {
	sdf := p.SourceDataField()
	n := sdf.NumberOfBlocks(0)

	data := lcio.GenericObjectData{
		I32s: make([]int32, n),
		F32s: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		tel, err := sdf.Block(i, 0)
		if err != nil {
			return err
		}
		id, err := tel.Uint16("TelescopeID")
		if err != nil {
			return err
		}
		t, err := tel.Float32("Trigger Time")
		if err != nil {
			return err
		}
		data.I32s[i] = int32(id)
		data.F32s[i] = t
	}

	if evt.Has(TriggerCollection) {
		return fmt.Errorf("duplicate array trigger in event %d", evt.EventNumber)
	}
	evt.Add(TriggerCollection, &lcio.GenericObject{
		Data: []lcio.GenericObjectData{data},
	})
	return nil
}

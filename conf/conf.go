// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conf holds the packet schemas of the RTA telemetry.
package conf // import "github.com/go-lpc/rta/conf"

import (
	_ "embed"
)

// FADCName is the name of the schema of triggered telescope packets,
// relative to the conf directory of an installation.
const FADCName = "rta_fadc_v3.xml"

// FADC is the XML description of the triggered telescope packets.
//
//go:embed rta_fadc_v3.xml
var FADC []byte

// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert RTA packet streams to LCIO.
package xcnv // import "github.com/go-lpc/rta/internal/xcnv"

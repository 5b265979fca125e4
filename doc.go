// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package orfifo holds code to verify the OR-FIFO device through its
// ready/valid register bus.
//
// The bus package implements the bus protocol (reset, read and write
// transactions) over an abstract set of signals. The tb package drives
// the exhaustive test sequence on top of it. Signals are provided either
// by the sim package, where the dut package models the device, or by the
// memsig package, for register-mapped hardware.
package orfifo // import "github.com/go-lpc/orfifo"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of orfifo and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/orfifo"
	if b.Main.Path == root && b.Main.Version != "" && b.Main.Version != "(devel)" {
		return b.Main.Version, b.Main.Sum
	}

	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}

// Copyright 2026 the pintos-fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package assert panics on the storage core's invariant violations.
// Corrupt magic numbers, deny-count mismatches, and any other internal
// consistency breach are treated as a programming error that terminates
// the process, never as a caller-visible failure.
package assert

import "log"

// True panics with msg if cond is false.
func True(cond bool, msg string, args ...interface{}) {
	if !cond {
		log.Panicf(msg, args...)
	}
}

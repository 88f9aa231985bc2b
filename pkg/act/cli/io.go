// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cli holds what arcread subcommands share when cobra runs them.
package cli

import "io"

// IO is where a subcommand reads its input and writes results and
// diagnostics. Tests swap in buffers.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

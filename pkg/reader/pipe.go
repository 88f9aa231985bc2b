// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"io"
	"syscall"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/engine"
	"github.com/pkg/errors"
)

// maxEmptyReads bounds consecutive (0, nil) results from a source.
const maxEmptyReads = 100

// pipe feeds bytes from an io.Reader to the engine's read callback. The
// engine holds the returned buffer until its next call, so buf is never
// reallocated.
type pipe struct {
	src     io.Reader
	buf     [pipeBufferSize]byte
	pending error
	err     *archive.SourceError
}

func (p *pipe) read(a *engine.Archive, _ any) ([]byte, int) {
	if p.err != nil {
		return p.fail(a, p.err.Err)
	}
	if p.pending != nil {
		err := p.pending
		p.pending = nil
		if err == io.EOF {
			return p.buf[:], 0
		}
		return p.fail(a, err)
	}
	for range maxEmptyReads {
		n, err := p.src.Read(p.buf[:])
		if n > 0 {
			// Report the error with the next pull, after these bytes are used.
			p.pending = err
			return p.buf[:], n
		}
		if err == io.EOF {
			return p.buf[:], 0
		}
		if err != nil {
			return p.fail(a, err)
		}
	}
	return p.fail(a, io.ErrNoProgress)
}

func (p *pipe) fail(a *engine.Archive, err error) ([]byte, int) {
	if p.err == nil {
		p.err = &archive.SourceError{Errno: errnoOf(err), Err: err}
	}
	a.SetError(p.err.Errno, "%s", p.err.Error())
	return nil, -1
}

func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

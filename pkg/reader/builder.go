// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package reader reads archives through the decoding engine.
//
// A Builder declares the formats and filters to detect and is consumed by
// opening a Session from a path or an io.Reader. The Session walks members
// forward only; its Iterator hands out Entry views that are valid only until
// the iterator advances again.
package reader

import (
	"io"
	"log"
	"runtime"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/engine"
)

const (
	// blockSize is the read size used for named files.
	blockSize = 10240
	// pipeBufferSize is the scratch buffer handed to the engine for streams.
	pipeBufferSize = 8192
)

// handle owns one engine read handle and, for streams, the pipe it reads from.
type handle struct {
	a        *engine.Archive
	pipe     *pipe
	released bool
}

func (h *handle) release() engine.Status {
	if h.released {
		return engine.OK
	}
	h.released = true
	st := h.a.Free()
	h.pipe = nil
	return st
}

// engineError describes the last engine failure, attributing it to the
// stream source when the pipe recorded one.
func (h *handle) engineError() error {
	err := archive.NewError(h.a.Errno(), h.a.ErrorString())
	if h.pipe != nil && h.pipe.err != nil {
		return err.WithCause(h.pipe.err)
	}
	return err
}

// check converts an engine status into an error. Warnings are logged and
// treated as success.
func (h *handle) check(st engine.Status) error {
	switch {
	case st == engine.Warn:
		log.Printf("archive: %s", h.a.ErrorString())
		return nil
	case st < engine.Warn:
		return h.engineError()
	}
	return nil
}

// Builder configures a read handle. It is consumed by OpenFile or OpenStream.
type Builder struct {
	h        *handle
	consumed bool
	cleanup  runtime.Cleanup
}

// NewBuilder allocates a builder with nothing registered.
func NewBuilder() *Builder {
	h := &handle{a: engine.NewRead()}
	b := &Builder{h: h}
	b.cleanup = runtime.AddCleanup(b, func(h *handle) { h.release() }, h)
	return b
}

// support applies one registration call. On failure the handle is released
// and the builder becomes unusable.
func (b *Builder) support(call func(a *engine.Archive) engine.Status) (*Builder, error) {
	if b.consumed {
		return nil, archive.ErrConsumed
	}
	if err := b.h.check(call(b.h.a)); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// SupportFormat enables detection of a container format.
func (b *Builder) SupportFormat(f archive.ReadFormat) (*Builder, error) {
	return b.support(func(a *engine.Archive) engine.Status { return a.SupportFormat(f.String()) })
}

// SupportFilter enables detection of a stream filter.
func (b *Builder) SupportFilter(f archive.ReadFilter) (*Builder, error) {
	return b.support(func(a *engine.Archive) engine.Status { return a.SupportFilter(f.String()) })
}

// SupportCompression enables detection of a compression.
func (b *Builder) SupportCompression(c archive.ReadCompression) (*Builder, error) {
	f, ok := c.Filter()
	if !ok {
		b.Close()
		return nil, archive.NewError(engine.ErrnoProgrammer, "unknown compression")
	}
	return b.SupportFilter(f)
}

// SupportFilterProgram decodes the outermost layer with an external command.
func (b *Builder) SupportFilterProgram(cmd string) (*Builder, error) {
	return b.support(func(a *engine.Archive) engine.Status { return a.SupportFilterProgram(cmd, nil) })
}

// SupportFilterProgramSignature decodes streams starting with signature with
// an external command.
func (b *Builder) SupportFilterProgramSignature(cmd string, signature []byte) (*Builder, error) {
	return b.support(func(a *engine.Archive) engine.Status { return a.SupportFilterProgram(cmd, signature) })
}

// SupportCompressionProgram is SupportFilterProgram under its legacy name.
func (b *Builder) SupportCompressionProgram(cmd string) (*Builder, error) {
	return b.SupportFilterProgram(cmd)
}

// SupportAll enables every format, filter and compression.
func (b *Builder) SupportAll() (*Builder, error) {
	b, err := b.SupportFormat(archive.FormatAll)
	if err != nil {
		return nil, err
	}
	if b, err = b.SupportFilter(archive.FilterAll); err != nil {
		return nil, err
	}
	return b.SupportCompression(archive.CompressionAll)
}

func (b *Builder) consume() {
	b.consumed = true
	b.cleanup.Stop()
}

// OpenFile opens the archive at path. A failure to open the file leaves the
// builder usable; any other failure consumes it.
func (b *Builder) OpenFile(path string) (*Session, error) {
	if b.consumed {
		return nil, archive.ErrConsumed
	}
	st := b.h.a.OpenFilename(path, blockSize)
	if st == engine.Failed {
		return nil, b.h.engineError()
	}
	b.consume()
	if err := b.h.check(st); err != nil {
		b.h.release()
		return nil, err
	}
	return newSession(b.h), nil
}

// OpenStream opens an archive read from r. The builder is consumed whether or
// not the open succeeds. The session takes ownership of r for reading but does
// not close it.
func (b *Builder) OpenStream(r io.Reader) (*Session, error) {
	if b.consumed {
		return nil, archive.ErrConsumed
	}
	b.consume()
	p := &pipe{src: r}
	b.h.pipe = p
	if err := b.h.check(b.h.a.Open(nil, nil, p.read, nil)); err != nil {
		b.h.release()
		return nil, err
	}
	return newSession(b.h), nil
}

// Close releases the handle of a builder that was never opened.
func (b *Builder) Close() {
	if b.consumed {
		return
	}
	b.consume()
	b.h.release()
}

// NewBuilderFromProfile returns a builder configured by p.
func NewBuilderFromProfile(p *archive.Profile) (*Builder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	formats, _ := p.ReadFormats()
	filters, _ := p.ReadFilters()
	b := NewBuilder()
	var err error
	for _, f := range formats {
		if b, err = b.SupportFormat(f); err != nil {
			return nil, err
		}
	}
	for _, f := range filters {
		if b, err = b.SupportFilter(f); err != nil {
			return nil, err
		}
	}
	for _, prog := range p.Programs {
		sig, _ := prog.SignatureBytes()
		if b, err = b.SupportFilterProgramSignature(prog.Command, sig); err != nil {
			return nil, err
		}
	}
	return b, nil
}

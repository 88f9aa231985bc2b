// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"io"
	"io/fs"

	"github.com/nwaples/rardecode/v2"
)

var rarMagic = []byte("Rar!\x1a\x07")

func bidRar(peek []byte) int {
	if bytes.HasPrefix(peek, rarMagic) {
		return len(rarMagic) * 8
	}
	return 0
}

// rarReader reads RAR 1.5 through 5 archives as a stream. The decoder buffers
// its input, so header offsets are the bytes consumed before each header was
// requested.
type rarReader struct {
	a  *Archive
	rr *rardecode.Reader
}

func newRarReader(a *Archive) (formatReader, error) {
	rr, err := rardecode.NewReader(a.counter)
	if err != nil {
		return nil, errFileFormat("Invalid RAR archive: %v", err)
	}
	return &rarReader{a: a, rr: rr}, nil
}

func (r *rarReader) next(e *Entry) (int64, error) {
	pos := r.a.counter.n
	h, err := r.rr.Next()
	if err == io.EOF {
		return r.a.counter.n, io.EOF
	} else if err != nil {
		return pos, errFileFormat("Damaged RAR archive: %v", err)
	}
	e.setPathname(h.Name)
	mode := h.Mode()
	if h.IsDir {
		mode |= fs.ModeDir
	}
	e.setFileMode(mode)
	e.mtime = h.ModificationTime
	switch {
	case h.IsDir:
		e.setSize(0)
	case !h.UnKnownSize:
		e.setSize(h.UnPackedSize)
	}
	return pos, nil
}

func (r *rarReader) content() io.Reader { return r.rr }
func (r *rarReader) close() error       { return nil }

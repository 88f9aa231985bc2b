// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// formatPeekSize covers the deepest signature, the iso9660 volume
	// descriptor at offset 32769.
	formatPeekSize = isoMagicOffset + 5
)

// formatReader walks the members of one container format.
type formatReader interface {
	// next fills e with the following member header and returns the
	// decoded-stream offset at which that header starts. At the end of the
	// archive it returns the offset of the end marker and io.EOF.
	next(e *Entry) (int64, error)
	// content returns the reader for the member returned by next.
	content() io.Reader
	close() error
}

type formatBidder struct {
	name string
	bid  func(peek []byte) int
	open func(a *Archive) (formatReader, error)
}

var builtinFormats = map[string]*formatBidder{
	"tar":     {name: "tar", bid: bidTar, open: newTarReader},
	"gnutar":  {name: "tar", bid: bidTar, open: newTarReader},
	"zip":     {name: "zip", bid: bidZip, open: newZipReader},
	"7zip":    {name: "7zip", bid: prefixBid(sevenZipMagic), open: newSevenZipReader},
	"ar":      {name: "ar", bid: prefixBid(arMagic), open: newArReader},
	"cpio":    {name: "cpio", bid: bidCpio, open: newCpioReader},
	"rar":     {name: "rar", bid: bidRar, open: newRarReader},
	"iso9660": {name: "iso9660", bid: bidIso9660, open: newIso9660Reader},
	"empty":   {name: "empty", bid: bidEmpty, open: newEmptyReader},
	"raw":     {name: "raw", bid: bidRaw, open: newRawReader},
}

// unbuiltFormats are recognized names without a decoder in this build.
var unbuiltFormats = map[string]bool{
	"cab":   true,
	"lha":   true,
	"mtree": true,
	"xar":   true,
}

// allFormats is the registration order used by SupportFormat("all"). raw is
// excluded since it accepts any input.
var allFormats = []string{"ar", "cpio", "empty", "iso9660", "rar", "tar", "zip", "7zip"}

// SupportFormat registers a container format by name.
func (a *Archive) SupportFormat(name string) Status {
	if !a.checkState("SupportFormat", stateNew) {
		return Fatal
	}
	if name == "all" {
		for _, n := range allFormats {
			if st := a.SupportFormat(n); st != OK {
				return st
			}
		}
		return OK
	}
	if unbuiltFormats[name] {
		a.SetError(ErrnoMisc, "%s format is not supported in this build", name)
		return Failed
	}
	f, ok := builtinFormats[name]
	if !ok {
		a.SetError(ErrnoProgrammer, "Unknown format %q", name)
		return Failed
	}
	for _, existing := range a.formats {
		if existing.name == f.name {
			return OK
		}
	}
	a.formats = append(a.formats, f)
	return OK
}

// maxBuffered caps how much of a stream or filtered source is held in memory
// for formats that need random access.
var maxBuffered int64 = 1 << 30

// readerAt exposes the decoded source for formats that need random access.
// An unfiltered named file is used directly; anything else is buffered up to
// maxBuffered bytes.
func (a *Archive) readerAt() (io.ReaderAt, int64, error) {
	if a.file != nil && len(a.filterNames) == 0 {
		fi, err := a.file.Stat()
		if err != nil {
			return nil, 0, err
		}
		return a.file, fi.Size(), nil
	}
	b, err := io.ReadAll(io.LimitReader(a.counter, maxBuffered+1))
	if err != nil {
		return nil, 0, err
	}
	if int64(len(b)) > maxBuffered {
		return nil, 0, &formatError{
			errno: ErrnoMisc,
			msg:   fmt.Sprintf("Archive exceeds the %d byte limit for buffered random access", maxBuffered),
		}
	}
	return bytes.NewReader(b), int64(len(b)), nil
}

// readLinkTarget consumes a small member body holding a symlink target.
func readLinkTarget(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// errReader fails every read with err.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// emptyReader is selected for zero-length input and has no members.
type emptyReader struct{}

func bidEmpty(peek []byte) int {
	if len(peek) == 0 {
		return 1
	}
	return 0
}

func newEmptyReader(*Archive) (formatReader, error) { return emptyReader{}, nil }

func (emptyReader) next(*Entry) (int64, error) { return 0, io.EOF }
func (emptyReader) content() io.Reader         { return bytes.NewReader(nil) }
func (emptyReader) close() error               { return nil }

// rawReader presents the whole decoded stream as a single member "data".
type rawReader struct {
	a    *Archive
	done bool
}

func bidRaw(peek []byte) int {
	if len(peek) == 0 {
		return 0
	}
	return 1
}

func newRawReader(a *Archive) (formatReader, error) { return &rawReader{a: a}, nil }

func (r *rawReader) next(e *Entry) (int64, error) {
	if r.done {
		if _, err := io.Copy(io.Discard, r.a.counter); err != nil {
			return 0, err
		}
		return r.a.counter.n, io.EOF
	}
	r.done = true
	e.setPathname("data")
	e.setRawMode(IFREG | 0o644)
	return 0, nil
}

func (r *rawReader) content() io.Reader { return r.a.counter }
func (r *rawReader) close() error       { return nil }

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package engine implements a pull-based archive decoding engine behind a
// procedural, handle-oriented interface.
//
// A handle is allocated with NewRead, configured with Support* calls, opened
// once from a path or from a read callback, and then walked forward one header
// at a time. Every call returns a Status; details of the last failure are
// available from Errno and ErrorString. A handle is not safe for concurrent use.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Status is the result code of an engine call.
type Status int

// Status values.
const (
	OK     Status = 0
	EOF    Status = 1
	Retry  Status = -10
	Warn   Status = -20
	Failed Status = -25
	Fatal  Status = -30
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case EOF:
		return "eof"
	case Retry:
		return "retry"
	case Warn:
		return "warn"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Error numbers reported by Errno when no OS error applies.
const (
	ErrnoMisc       = -1
	ErrnoProgrammer = 22 // EINVAL
	ErrnoFileFormat = 84 // EILSEQ
)

// ReadCallback supplies the next chunk of source bytes. It returns the buffer
// holding the bytes and their count; 0 signals end of source and a negative
// count signals failure, in which case the callback should call SetError.
// The buffer must stay valid until the next call.
type ReadCallback func(a *Archive, data any) ([]byte, int)

// OpenCallback is invoked once when a callback source is opened.
type OpenCallback func(a *Archive, data any) Status

// CloseCallback is invoked once when the handle is freed.
type CloseCallback func(a *Archive, data any) Status

type state uint

const (
	stateNew state = 1 << iota
	stateHeader
	stateData
	stateEOF
	stateFatal
	stateClosed
)

var stateNames = []struct {
	bit  state
	name string
}{
	{stateNew, "new"},
	{stateHeader, "header"},
	{stateData, "data"},
	{stateEOF, "eof"},
	{stateFatal, "fatal"},
	{stateClosed, "closed"},
}

func (s state) String() string {
	var names []string
	for _, sn := range stateNames {
		if s&sn.bit != 0 {
			names = append(names, sn.name)
		}
	}
	return strings.Join(names, "|")
}

const (
	// sourceBufferSize bounds how much of the source is peeked during bidding.
	sourceBufferSize = 64 << 10
	// maxFilterDepth bounds the number of stacked filters.
	maxFilterDepth = 25
	defaultBlockSize = 10240
)

// Archive is a read handle.
type Archive struct {
	state  state
	errno  int
	errStr string

	formats []*formatBidder
	filters []*filterBidder

	clientData any
	closeCB    CloseCallback
	client     *clientReader
	file       *os.File
	closers    []io.Closer
	src        *bufio.Reader
	counter    *countingReader

	filterNames []string
	format      formatReader
	formatName  string

	entry      Entry
	headerPos  int64
	data       io.Reader
	dataOffset int64
	block      []byte
}

// NewRead allocates a read handle.
func NewRead() *Archive {
	return &Archive{state: stateNew}
}

// Errno returns the error number of the last failure.
func (a *Archive) Errno() int {
	return a.errno
}

// ErrorString returns the description of the last failure, or "" if none.
func (a *Archive) ErrorString() string {
	return a.errStr
}

// SetError records an error on the handle. Read callbacks use it to report
// source failures through the engine.
func (a *Archive) SetError(errno int, format string, args ...any) {
	a.errno = errno
	if len(args) > 0 {
		a.errStr = fmt.Sprintf(format, args...)
	} else {
		a.errStr = format
	}
}

// ClearError resets the recorded error.
func (a *Archive) ClearError() {
	a.errno = 0
	a.errStr = ""
}

// checkState verifies that a handle is in one of the wanted states.
func (a *Archive) checkState(fn string, want state) bool {
	if a.state&want != 0 {
		return true
	}
	if a.state == stateClosed {
		a.SetError(ErrnoProgrammer, "%s: archive handle is closed", fn)
		return false
	}
	if a.state != stateFatal {
		a.SetError(ErrnoProgrammer, "%s: invalid API usage in state %s, expected %s", fn, a.state, want)
		a.state = stateFatal
	}
	return false
}

// fail moves the handle to the fatal state and records err unless a source
// callback already described the failure. A source failure buffered by a
// filter can surface in a later call, after the error slot was cleared, so it
// carries its own errno and message.
func (a *Archive) fail(err error) Status {
	var se *sourceFailure
	var fe *formatError
	switch {
	case errors.As(err, &se):
		if a.errStr == "" {
			a.SetError(se.errno, "%s", se.msg)
		}
	case errors.As(err, &fe):
		a.SetError(fe.errno, "%s", fe.msg)
	default:
		a.SetError(ErrnoFileFormat, "%s", err.Error())
	}
	a.state = stateFatal
	return Fatal
}

// OpenFilename opens the named file, reading it in blockSize chunks.
func (a *Archive) OpenFilename(path string, blockSize int) Status {
	if !a.checkState("OpenFilename", stateNew) {
		return Fatal
	}
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	f, err := os.Open(path)
	if err != nil {
		a.SetError(errnoOf(err), "Failed to open '%s': %v", path, errors.Cause(err))
		return Failed
	}
	a.file = f
	fc := &fileClient{f: f, buf: make([]byte, blockSize)}
	a.block = make([]byte, blockSize)
	return a.open(fc, nil, fc.read, nil)
}

// Open opens a callback-driven source. The engine keeps data and passes it
// back to every callback until Free.
func (a *Archive) Open(data any, open OpenCallback, read ReadCallback, close CloseCallback) Status {
	if !a.checkState("Open", stateNew) {
		return Fatal
	}
	if read == nil {
		a.SetError(ErrnoProgrammer, "No reader function provided to Open")
		a.state = stateFatal
		return Fatal
	}
	a.block = make([]byte, defaultBlockSize)
	return a.open(data, open, read, close)
}

func (a *Archive) open(data any, open OpenCallback, read ReadCallback, close CloseCallback) Status {
	a.clientData = data
	a.closeCB = close
	if open != nil {
		if st := open(a, data); st < Warn {
			a.state = stateFatal
			return st
		}
	}
	if len(a.formats) == 0 {
		a.SetError(ErrnoProgrammer, "No formats registered")
		a.state = stateFatal
		return Fatal
	}
	a.client = &clientReader{a: a, read: read, data: data}
	if err := a.chooseFilters(); err != nil {
		return a.fail(err)
	}
	a.counter = &countingReader{r: a.src}
	a.state = stateHeader
	return OK
}

// chooseFilters stacks the highest-bidding filter on top of the source until
// no filter bids.
func (a *Archive) chooseFilters() error {
	r := bufio.NewReaderSize(a.client, sourceBufferSize)
	for depth := 0; depth < maxFilterDepth; depth++ {
		peek, err := r.Peek(filterPeekSize)
		if err != nil && err != io.EOF {
			return err
		}
		var best *filterBidder
		bestBid := 0
		for _, f := range a.filters {
			if b := f.bid(peek); b > bestBid {
				best, bestBid = f, b
			}
		}
		if best == nil {
			a.src = r
			return nil
		}
		rc, err := best.open(r)
		if err != nil {
			return errors.Wrapf(err, "initializing %s filter", best.name)
		}
		a.closers = append(a.closers, rc)
		a.filterNames = append(a.filterNames, best.name)
		r = bufio.NewReaderSize(rc, sourceBufferSize)
	}
	return &formatError{errno: ErrnoMisc, msg: "Input requires too many filters for decoding"}
}

func (a *Archive) chooseFormat() Status {
	peek, err := a.src.Peek(formatPeekSize)
	if err != nil && err != io.EOF {
		return a.fail(err)
	}
	var best *formatBidder
	bestBid := 0
	for _, f := range a.formats {
		if b := f.bid(peek); b > bestBid {
			best, bestBid = f, b
		}
	}
	if best == nil {
		a.SetError(ErrnoFileFormat, "Unrecognized archive format")
		a.state = stateFatal
		return Fatal
	}
	fr, err := best.open(a)
	if err != nil {
		return a.fail(err)
	}
	a.format = fr
	a.formatName = best.name
	return OK
}

// NextHeader advances to the next member. The returned Entry is owned by the
// handle and is overwritten by the following call.
func (a *Archive) NextHeader() (*Entry, Status) {
	if !a.checkState("NextHeader", stateHeader|stateData) {
		return nil, Fatal
	}
	a.ClearError()
	if a.format == nil {
		if st := a.chooseFormat(); st != OK {
			return nil, st
		}
	}
	a.data = nil
	a.entry.reset()
	pos, err := a.format.next(&a.entry)
	if pos > a.headerPos {
		a.headerPos = pos
	}
	if err == io.EOF {
		a.state = stateEOF
		return nil, EOF
	} else if err != nil {
		return nil, a.fail(err)
	}
	a.data = a.format.content()
	a.dataOffset = 0
	a.state = stateData
	return &a.entry, OK
}

// HeaderPosition returns the decoded-stream offset of the most recent header.
func (a *Archive) HeaderPosition() int64 {
	return a.headerPos
}

// ReadDataBlock returns the next block of the current member and its offset
// within the member. The block is valid until the next read or advance.
func (a *Archive) ReadDataBlock() ([]byte, int64, Status) {
	if !a.checkState("ReadDataBlock", stateData) {
		return nil, 0, Fatal
	}
	if a.data == nil {
		return nil, a.dataOffset, EOF
	}
	n, err := io.ReadAtLeast(a.data, a.block, 1)
	if n > 0 {
		off := a.dataOffset
		a.dataOffset += int64(n)
		return a.block[:n], off, OK
	}
	if err == io.EOF {
		a.data = nil
		return nil, a.dataOffset, EOF
	}
	return nil, a.dataOffset, a.fail(err)
}

// ReadData copies content of the current member into p. It returns 0 and EOF
// once the member is exhausted.
func (a *Archive) ReadData(p []byte) (int, Status) {
	if !a.checkState("ReadData", stateData) {
		return 0, Fatal
	}
	if a.data == nil {
		return 0, EOF
	}
	if len(p) == 0 {
		return 0, OK
	}
	n, err := io.ReadAtLeast(a.data, p, 1)
	if n > 0 {
		a.dataOffset += int64(n)
		return n, OK
	}
	if err == io.EOF {
		a.data = nil
		return 0, EOF
	}
	return 0, a.fail(err)
}

// FormatName returns the name of the detected container format.
func (a *Archive) FormatName() string {
	return a.formatName
}

// FilterNames returns the filters stacked on the source, outermost first.
func (a *Archive) FilterNames() []string {
	return append([]string(nil), a.filterNames...)
}

// Free releases every resource held by the handle, invoking the close
// callback last. The handle is unusable afterwards.
func (a *Archive) Free() Status {
	if a.state == stateClosed {
		a.SetError(ErrnoProgrammer, "Free: archive handle is closed")
		return Fatal
	}
	st := OK
	if a.format != nil {
		if err := a.format.close(); err != nil {
			st = Warn
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			st = Warn
		}
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			st = Warn
		}
	}
	if a.closeCB != nil {
		if cs := a.closeCB(a, a.clientData); cs < st {
			st = cs
		}
	}
	*a = Archive{state: stateClosed, errno: a.errno, errStr: a.errStr, headerPos: a.headerPos}
	return st
}

// formatError carries a specific errno through a format reader failure.
type formatError struct {
	errno int
	msg   string
}

func (e *formatError) Error() string { return e.msg }

func errFileFormat(format string, args ...any) error {
	return &formatError{errno: ErrnoFileFormat, msg: fmt.Sprintf(format, args...)}
}

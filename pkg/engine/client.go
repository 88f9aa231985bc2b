// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// sourceFailure is returned by the client reader when the read callback
// reports an error. The callback is expected to have described it already.
type sourceFailure struct {
	errno int
	msg   string
}

func (e *sourceFailure) Error() string { return e.msg }

// clientReader turns a ReadCallback into an io.Reader. Each callback result is
// drained before the callback is invoked again.
type clientReader struct {
	a    *Archive
	read ReadCallback
	data any
	buf  []byte
	eof  bool
	err  error
}

func (c *clientReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		if c.eof {
			return 0, io.EOF
		}
		b, n := c.read(c.a, c.data)
		switch {
		case n < 0:
			if c.a.errStr == "" {
				c.a.SetError(ErrnoMisc, "read callback failed")
			}
			c.err = &sourceFailure{errno: c.a.errno, msg: c.a.errStr}
			return 0, c.err
		case n == 0:
			c.eof = true
			return 0, io.EOF
		case n > len(b):
			c.a.SetError(ErrnoProgrammer, "read callback returned %d bytes from a %d byte buffer", n, len(b))
			c.err = &sourceFailure{errno: ErrnoProgrammer, msg: c.a.errStr}
			return 0, c.err
		}
		c.buf = b[:n]
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// fileClient is the read callback used for named files.
type fileClient struct {
	f   *os.File
	buf []byte
}

func (fc *fileClient) read(a *Archive, _ any) ([]byte, int) {
	n, err := io.ReadFull(fc.f, fc.buf)
	if n > 0 {
		return fc.buf, n
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fc.buf, 0
	}
	a.SetError(errnoOf(err), "Error reading '%s': %v", fc.f.Name(), errors.Cause(err))
	return nil, -1
}

// countingReader tracks how many decoded bytes the format reader consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// errnoOf extracts an OS error number from err, or ErrnoMisc.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return ErrnoMisc
}

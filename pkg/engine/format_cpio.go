// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/cavaliergopher/cpio"
)

var (
	cpioNewcMagic = []byte("070701")
	cpioCrcMagic  = []byte("070702")
	cpioOdcMagic  = []byte("070707")
)

const (
	cpioOdcHeaderSize = 76
	cpioTrailer       = "TRAILER!!!"
)

func bidCpio(peek []byte) int {
	for _, m := range [][]byte{cpioNewcMagic, cpioCrcMagic, cpioOdcMagic} {
		if bytes.HasPrefix(peek, m) {
			return 48
		}
	}
	return 0
}

func newCpioReader(a *Archive) (formatReader, error) {
	magic, err := a.src.Peek(len(cpioOdcMagic))
	if err != nil {
		return nil, errFileFormat("Truncated cpio header")
	}
	if bytes.Equal(magic, cpioOdcMagic) {
		return &odcReader{a: a}, nil
	}
	return &newcReader{a: a, cr: cpio.NewReader(a.counter)}, nil
}

// newcReader reads SVR4 cpio archives, with or without checksums. Bodies and
// names are padded to four bytes.
type newcReader struct {
	a   *Archive
	cr  *cpio.Reader
	cur bool
	pos int64
}

func (r *newcReader) next(e *Entry) (int64, error) {
	if r.cur {
		if _, err := io.Copy(io.Discard, r.cr); err != nil {
			return r.pos, err
		}
		r.pos = align4(r.a.counter.n)
		r.cur = false
	}
	h, err := r.cr.Next()
	if err == io.EOF {
		return r.pos, io.EOF
	} else if err != nil {
		return r.pos, errFileFormat("Damaged cpio archive: %v", err)
	}
	r.cur = true
	e.setPathname(h.Name)
	e.setRawMode(uint32(h.Mode))
	e.mtime = h.ModTime
	e.uid, e.gid = int64(h.Uid), int64(h.Guid)
	e.symlink = h.Linkname
	e.setSize(h.Size)
	return r.pos, nil
}

func (r *newcReader) content() io.Reader { return r.cr }
func (r *newcReader) close() error       { return nil }

// odcReader reads the POSIX.1 portable cpio format, whose fields are octal
// and which has no padding.
type odcReader struct {
	a    *Archive
	body *io.LimitedReader
}

func (r *odcReader) next(e *Entry) (int64, error) {
	if r.body != nil {
		if _, err := io.Copy(io.Discard, r.body); err != nil {
			return r.a.counter.n, err
		}
		r.body = nil
	}
	pos := r.a.counter.n
	buf := make([]byte, cpioOdcHeaderSize)
	if _, err := io.ReadFull(r.a.counter, buf); err != nil {
		return pos, errFileFormat("Truncated cpio header")
	}
	if !bytes.Equal(buf[:6], cpioOdcMagic) {
		return pos, errFileFormat("Invalid cpio magic %q", buf[:6])
	}
	// dev, ino, mode, uid, gid, nlink, rdev, mtime, namesize, filesize
	widths := []int{6, 6, 6, 6, 6, 6, 6, 11, 6, 11}
	vals := make([]int64, len(widths))
	off := 6
	for i, w := range widths {
		v, err := strconv.ParseInt(string(buf[off:off+w]), 8, 64)
		if err != nil {
			return pos, errFileFormat("Invalid cpio header field: %v", err)
		}
		vals[i] = v
		off += w
	}
	namesize, size := vals[8], vals[9]
	if namesize <= 0 || namesize > 1<<20 {
		return pos, errFileFormat("Invalid cpio name size %d", namesize)
	}
	name := make([]byte, namesize)
	if _, err := io.ReadFull(r.a.counter, name); err != nil {
		return pos, errFileFormat("Truncated cpio name")
	}
	h := string(bytes.TrimRight(name, "\x00"))
	if h == cpioTrailer {
		return pos, io.EOF
	}
	mode := uint32(vals[2])
	e.setPathname(h)
	e.setRawMode(mode)
	e.mtime = time.Unix(vals[7], 0)
	e.uid, e.gid = vals[3], vals[4]
	r.body = &io.LimitedReader{R: r.a.counter, N: size}
	if mode&IFMT == IFLNK {
		target, err := readLinkTarget(r.body)
		if err != nil {
			return pos, errFileFormat("Reading cpio link target: %v", err)
		}
		e.symlink = target
		e.setSize(0)
		return pos, nil
	}
	e.setSize(size)
	return pos, nil
}

func align4(n int64) int64 {
	return (n + 3) &^ 3
}

func (r *odcReader) content() io.Reader {
	if r.body == nil {
		return bytes.NewReader(nil)
	}
	return r.body
}

func (r *odcReader) close() error { return nil }

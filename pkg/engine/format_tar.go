// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"archive/tar"
	"bytes"
	"io"
	"strconv"
	"strings"
)

const (
	tarBlockSize   = 512
	tarMagicOffset = 257
)

var tarMagic = []byte("ustar") // At header offset 257

// bidTar accepts a header block with a valid checksum, preferring ones that
// also carry the ustar magic. An all-zero first block is an empty archive.
func bidTar(peek []byte) int {
	if len(peek) < tarBlockSize {
		return 0
	}
	blk := peek[:tarBlockSize]
	if bytes.Count(blk, []byte{0}) == tarBlockSize {
		return 10
	}
	if !tarChecksumOK(blk) {
		return 0
	}
	if bytes.Equal(blk[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic) {
		return 56
	}
	return 48
}

func tarChecksumOK(blk []byte) bool {
	field := strings.Trim(string(blk[148:156]), " \x00")
	want, err := strconv.ParseInt(field, 8, 64)
	if err != nil {
		return false
	}
	var unsigned, signed int64
	for i, c := range blk {
		if i >= 148 && i < 156 {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return want == unsigned || want == signed
}

// tarReader reads tar, pax and GNU tar archives. Header offsets come from the
// byte count consumed by archive/tar, which reads whole blocks and no more.
type tarReader struct {
	a   *Archive
	tr  *tar.Reader
	cur bool
	pos int64
}

func newTarReader(a *Archive) (formatReader, error) {
	return &tarReader{a: a, tr: tar.NewReader(a.counter)}, nil
}

func (t *tarReader) next(e *Entry) (int64, error) {
	if t.cur {
		if _, err := io.Copy(io.Discard, t.tr); err != nil {
			return t.pos, err
		}
		n := t.a.counter.n
		t.pos = n + (tarBlockSize-n%tarBlockSize)%tarBlockSize
		t.cur = false
	}
	h, err := t.tr.Next()
	if err == io.EOF {
		return t.pos, io.EOF
	} else if err != nil {
		return t.pos, errFileFormat("Damaged tar archive: %v", err)
	}
	t.cur = true
	e.setPathname(h.Name)
	fm := h.FileInfo().Mode()
	e.setFileMode(fm)
	switch h.Typeflag {
	case tar.TypeLink:
		e.hardlink = h.Linkname
		e.setRawMode(IFREG | e.Perm())
		e.setSize(h.Size)
	case tar.TypeSymlink:
		e.symlink = h.Linkname
		e.setSize(0)
	case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
		e.setSize(h.Size)
	default:
		e.setSize(0)
	}
	e.mtime = h.ModTime
	e.uid, e.gid = int64(h.Uid), int64(h.Gid)
	return t.pos, nil
}

func (t *tarReader) content() io.Reader { return t.tr }
func (t *tarReader) close() error       { return nil }

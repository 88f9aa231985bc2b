// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"io"
	"io/fs"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	sevenZipMagic = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
)

// Zip compression methods beyond store and deflate.
const (
	zipMethodBzip2 = 12
	zipMethodZstd  = 93
	zipMethodXz    = 95
)

func bidZip(peek []byte) int {
	if bytes.HasPrefix(peek, zipMagic) || bytes.HasPrefix(peek, zipEmptyMagic) {
		return 32
	}
	return 0
}

// member is one entry of a format read from a central directory.
type member struct {
	name  string
	mode  fs.FileMode
	size  int64
	mtime time.Time
	pos   int64
	open  func() (io.ReadCloser, error)
}

// listReader walks members indexed up front by a random-access format.
type listReader struct {
	members []member
	idx     int
	end     int64
	cur     io.ReadCloser
	body    io.Reader
}

func (l *listReader) next(e *Entry) (int64, error) {
	if l.cur != nil {
		l.cur.Close()
		l.cur = nil
	}
	l.body = bytes.NewReader(nil)
	if l.idx >= len(l.members) {
		return l.end, io.EOF
	}
	m := l.members[l.idx]
	l.idx++
	e.setPathname(m.name)
	e.setFileMode(m.mode)
	e.mtime = m.mtime
	if m.mode.IsDir() {
		e.setSize(0)
		return m.pos, nil
	}
	rc, err := m.open()
	if err != nil {
		return m.pos, errFileFormat("Cannot open %s: %v", m.name, err)
	}
	if m.mode&fs.ModeSymlink != 0 {
		target, err := readLinkTarget(rc)
		rc.Close()
		if err != nil {
			return m.pos, errFileFormat("Cannot read link target of %s: %v", m.name, err)
		}
		e.symlink = target
		e.setSize(0)
		return m.pos, nil
	}
	e.setSize(m.size)
	l.cur, l.body = rc, rc
	return m.pos, nil
}

func (l *listReader) content() io.Reader { return l.body }

func (l *listReader) close() error {
	if l.cur != nil {
		return l.cur.Close()
	}
	return nil
}

func newZipReader(a *Archive) (formatReader, error) {
	ra, size, err := a.readerAt()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errFileFormat("Invalid zip archive: %v", err)
	}
	zr.RegisterDecompressor(zipMethodZstd, zstd.ZipDecompressor(zstd.WithDecoderConcurrency(1)))
	zr.RegisterDecompressor(zipMethodBzip2, func(r io.Reader) io.ReadCloser {
		return io.NopCloser(bzip2.NewReader(r))
	})
	zr.RegisterDecompressor(zipMethodXz, func(r io.Reader) io.ReadCloser {
		xr, err := xz.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{errors.Wrap(err, "xz")})
		}
		return io.NopCloser(xr)
	})
	l := &listReader{end: size}
	for _, f := range zr.File {
		// The local header precedes the data by its fixed part, name and extra.
		var pos int64
		if off, err := f.DataOffset(); err == nil {
			pos = max(off-30-int64(len(f.Name))-int64(len(f.Extra)), 0)
		}
		l.members = append(l.members, member{
			name:  f.Name,
			mode:  f.Mode(),
			size:  int64(f.UncompressedSize64),
			mtime: f.Modified,
			pos:   pos,
			open:  f.Open,
		})
	}
	if len(zr.File) > 0 {
		l.end = max(l.end-int64(len(zr.Comment))-22, 0)
	}
	return l, nil
}

func newSevenZipReader(a *Archive) (formatReader, error) {
	ra, size, err := a.readerAt()
	if err != nil {
		return nil, err
	}
	sr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return nil, errFileFormat("Invalid 7-Zip archive: %v", err)
	}
	// 7-Zip keeps headers at the end of the archive; members report offset 0.
	l := &listReader{end: size}
	for _, f := range sr.File {
		fi := f.FileInfo()
		l.members = append(l.members, member{
			name:  f.Name,
			mode:  fi.Mode(),
			size:  fi.Size(),
			mtime: fi.ModTime(),
			open:  f.Open,
		})
	}
	return l, nil
}

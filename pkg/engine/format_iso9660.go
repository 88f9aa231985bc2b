// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"io"
	"path"

	"github.com/kdomanski/iso9660"
)

const isoMagicOffset = 32769

var isoMagic = []byte("CD001")

func bidIso9660(peek []byte) int {
	if len(peek) < isoMagicOffset+len(isoMagic) {
		return 0
	}
	if bytes.Equal(peek[isoMagicOffset:isoMagicOffset+len(isoMagic)], isoMagic) {
		return 48
	}
	return 0
}

func newIso9660Reader(a *Archive) (formatReader, error) {
	ra, size, err := a.readerAt()
	if err != nil {
		return nil, err
	}
	img, err := iso9660.OpenImage(ra)
	if err != nil {
		return nil, errFileFormat("Invalid ISO9660 image: %v", err)
	}
	root, err := img.RootDir()
	if err != nil {
		return nil, errFileFormat("Reading ISO9660 root directory: %v", err)
	}
	l := &listReader{end: size}
	if err := walkIso(l, root, ""); err != nil {
		return nil, err
	}
	return l, nil
}

// walkIso appends the children of dir depth-first, parents before children.
func walkIso(l *listReader, dir *iso9660.File, prefix string) error {
	children, err := dir.GetChildren()
	if err != nil {
		return errFileFormat("Reading ISO9660 directory %q: %v", prefix, err)
	}
	for _, c := range children {
		name := path.Join(prefix, c.Name())
		l.members = append(l.members, member{
			name:  name,
			mode:  c.Mode(),
			size:  c.Size(),
			mtime: c.ModTime(),
			open:  func() (io.ReadCloser, error) { return io.NopCloser(c.Reader()), nil },
		})
		if c.IsDir() {
			if err := walkIso(l, c, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"io"
	"io/fs"
	"time"
	"unicode/utf8"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/engine"
)

// Header is a snapshot of member metadata that stays valid after the session
// advances.
type Header struct {
	// Name is the member path; empty when absent or not valid UTF-8.
	Name      string
	Size      int64
	SizeKnown bool
	Type      archive.Filetype
	Mode      fs.FileMode
	// Linkname is the symlink target or, when IsHardlink, the linked path.
	Linkname   string
	IsHardlink bool
	ModTime    time.Time
	Uid, Gid   int64
}

func newHeader(e *engine.Entry) *Header {
	name, _ := pathname(e)
	h := &Header{
		Name:      name,
		Size:      e.Size(),
		SizeKnown: e.SizeIsSet(),
		Type:      filetype(e),
		Mode:      fileMode(e),
		ModTime:   e.Mtime(),
		Uid:       e.Uid(),
		Gid:       e.Gid(),
	}
	if l := e.Hardlink(); l != "" {
		h.Linkname, h.IsHardlink = l, true
	} else {
		h.Linkname = e.Symlink()
	}
	return h
}

func pathname(e *engine.Entry) (string, bool) {
	name, ok := e.Pathname()
	if !ok || !utf8.ValidString(name) {
		return "", false
	}
	return name, true
}

func filetype(e *engine.Entry) archive.Filetype {
	switch e.Filetype() {
	case engine.IFREG:
		return archive.RegularFile
	case engine.IFLNK:
		return archive.SymbolicLink
	case engine.IFSOCK:
		return archive.Socket
	case engine.IFCHR:
		return archive.CharacterDevice
	case engine.IFBLK:
		return archive.BlockDevice
	case engine.IFDIR:
		return archive.Directory
	case engine.IFIFO:
		return archive.NamedPipe
	default:
		return archive.Unknown
	}
}

func fileMode(e *engine.Entry) fs.FileMode {
	perm := e.Perm()
	m := fs.FileMode(perm & 0o777)
	if perm&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if perm&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if perm&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	switch filetype(e) {
	case archive.Directory:
		m |= fs.ModeDir
	case archive.SymbolicLink:
		m |= fs.ModeSymlink
	case archive.Socket:
		m |= fs.ModeSocket
	case archive.CharacterDevice:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case archive.BlockDevice:
		m |= fs.ModeDevice
	case archive.NamedPipe:
		m |= fs.ModeNamedPipe
	case archive.Unknown:
		m |= fs.ModeIrregular
	}
	return m
}

// Entry is a view of the member the session is positioned on. Every method
// except IsCurrent and Index panics with an *archive.StaleEntryError once the
// iterator has moved on or the session is closed.
type Entry struct {
	s     *Session
	e     *engine.Entry
	index int
}

// IsCurrent reports whether the entry may still be used.
func (e *Entry) IsCurrent() bool {
	return !e.s.h.released && e.s.cur.index == e.index
}

// Index returns the position of the entry in the archive, starting at 0.
func (e *Entry) Index() int {
	return e.index
}

func (e *Entry) mustBeCurrent() {
	if !e.IsCurrent() {
		panic(&archive.StaleEntryError{Index: e.index, Current: e.s.cur.index})
	}
}

// Pathname returns the member path. ok is false when the path is absent or
// not valid UTF-8.
func (e *Entry) Pathname() (name string, ok bool) {
	e.mustBeCurrent()
	return pathname(e.e)
}

// Size returns the content size in bytes, or -1 when the format does not
// record it.
func (e *Entry) Size() int64 {
	e.mustBeCurrent()
	return e.e.Size()
}

// SizeIsSet reports whether the format recorded a size.
func (e *Entry) SizeIsSet() bool {
	e.mustBeCurrent()
	return e.e.SizeIsSet()
}

// Filetype returns the member type derived from its mode bits.
func (e *Entry) Filetype() archive.Filetype {
	e.mustBeCurrent()
	return filetype(e.e)
}

// IsDir reports whether the member is a directory.
func (e *Entry) IsDir() bool {
	return e.Filetype() == archive.Directory
}

// IsFile reports whether the member is a regular file.
func (e *Entry) IsFile() bool {
	return e.Filetype() == archive.RegularFile
}

// Linkname returns the symlink target or hard link path, if any.
func (e *Entry) Linkname() string {
	e.mustBeCurrent()
	if l := e.e.Hardlink(); l != "" {
		return l
	}
	return e.e.Symlink()
}

// Mode returns the permission and type bits as an fs.FileMode.
func (e *Entry) Mode() fs.FileMode {
	e.mustBeCurrent()
	return fileMode(e.e)
}

// ModTime returns the modification time, or the zero time if unset.
func (e *Entry) ModTime() time.Time {
	e.mustBeCurrent()
	return e.e.Mtime()
}

// Header returns a snapshot of the metadata.
func (e *Entry) Header() *Header {
	e.mustBeCurrent()
	return newHeader(e.e)
}

// Read reads member content. On a closed session it returns
// archive.ErrClosed rather than panicking.
func (e *Entry) Read(p []byte) (int, error) {
	if e.s.h.released {
		return 0, archive.ErrClosed
	}
	e.mustBeCurrent()
	return e.s.Read(p)
}

// ReadBlock returns the next block of content, valid until the next read.
func (e *Entry) ReadBlock() ([]byte, error) {
	if e.s.h.released {
		return nil, archive.ErrClosed
	}
	e.mustBeCurrent()
	return e.s.ReadBlock()
}

// WriteTo copies the remaining content to w without an intermediate buffer.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		b, err := e.ReadBlock()
		if err == io.EOF {
			return total, nil
		} else if err != nil {
			return total, err
		}
		n, err := w.Write(b)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

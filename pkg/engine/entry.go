// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"io/fs"
	"time"
)

// File type bits, as stored in the upper bits of an entry mode.
const (
	IFMT   = 0o170000
	IFREG  = 0o100000
	IFLNK  = 0o120000
	IFSOCK = 0o140000
	IFCHR  = 0o020000
	IFBLK  = 0o060000
	IFDIR  = 0o040000
	IFIFO  = 0o010000
)

// Entry is the metadata of one archive member.
type Entry struct {
	pathname    string
	pathnameSet bool
	symlink     string
	hardlink    string
	size        int64
	sizeSet     bool
	mode        uint32
	mtime       time.Time
	uid, gid    int64
}

func (e *Entry) reset() {
	*e = Entry{size: -1}
}

// Pathname returns the member path and whether one was recorded.
func (e *Entry) Pathname() (string, bool) {
	return e.pathname, e.pathnameSet
}

// Size returns the content size, or -1 if the format does not record one.
func (e *Entry) Size() int64 {
	return e.size
}

// SizeIsSet reports whether the format recorded a content size.
func (e *Entry) SizeIsSet() bool {
	return e.sizeSet
}

// Filetype returns the IF* type bits of the entry, or 0 if unknown.
func (e *Entry) Filetype() uint32 {
	return e.mode & IFMT
}

// Perm returns the permission bits of the entry.
func (e *Entry) Perm() uint32 {
	return e.mode &^ IFMT
}

// Symlink returns the symlink target, if the entry is a symlink.
func (e *Entry) Symlink() string {
	return e.symlink
}

// Hardlink returns the path this entry is a hard link to, if any.
func (e *Entry) Hardlink() string {
	return e.hardlink
}

// Mtime returns the modification time.
func (e *Entry) Mtime() time.Time {
	return e.mtime
}

// Uid returns the owner id.
func (e *Entry) Uid() int64 { return e.uid }

// Gid returns the group id.
func (e *Entry) Gid() int64 { return e.gid }

func (e *Entry) setPathname(name string) {
	e.pathname = name
	e.pathnameSet = true
}

func (e *Entry) setSize(n int64) {
	e.size = n
	e.sizeSet = true
}

// setRawMode stores a mode that already carries IF* bits.
func (e *Entry) setRawMode(mode uint32) {
	e.mode = mode
}

// setFileMode translates a Go file mode into IF* bits and permissions.
func (e *Entry) setFileMode(m fs.FileMode) {
	var t uint32
	switch {
	case m&fs.ModeDir != 0:
		t = IFDIR
	case m&fs.ModeSymlink != 0:
		t = IFLNK
	case m&fs.ModeNamedPipe != 0:
		t = IFIFO
	case m&fs.ModeSocket != 0:
		t = IFSOCK
	case m&fs.ModeCharDevice != 0:
		t = IFCHR
	case m&fs.ModeDevice != 0:
		t = IFBLK
	case m&fs.ModeIrregular != 0:
		t = 0
	default:
		t = IFREG
	}
	perm := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		perm |= 0o1000
	}
	e.mode = t | perm
}

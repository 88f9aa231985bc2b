// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package writer extracts archive members onto a filesystem.
package writer

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/reader"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrExists is returned when ExtractNoOverwrite is set and a member's target
// already exists.
var ErrExists = errors.New("target exists")

// attrSetter applies modes and times to extracted files.
type attrSetter interface {
	Chmod(name string, mode os.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
}

// boundChange resolves paths under the root of an OS-backed filesystem.
type boundChange struct {
	root string
}

func (b boundChange) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(filepath.Join(b.root, name), mode)
}

func (b boundChange) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(filepath.Join(b.root, name), atime, mtime)
}

// Disk writes members of a session onto a billy filesystem.
type Disk struct {
	fs   billy.Filesystem
	opts archive.ExtractOptions
	// OnMember, if set, is called after each member has been handled.
	OnMember func(h *reader.Header, written int64)
}

// NewDisk returns a Disk writing to fs with no options set.
func NewDisk(fs billy.Filesystem) *Disk {
	return &Disk{fs: fs}
}

// SetOptions replaces the extraction options.
func (d *Disk) SetOptions(opts archive.ExtractOptions) {
	d.opts = opts
}

func (d *Disk) attrs() attrSetter {
	switch fs := d.fs.(type) {
	case billy.Change:
		return fs
	case *osfs.BoundOS:
		return boundChange{root: fs.Root()}
	}
	return nil
}

// Write extracts the remaining members of s under root and returns the number
// of content bytes written. Members whose path leaves root are skipped when
// ExtractSecureNoDotDot is set.
func (d *Disk) Write(s *reader.Session, root string) (int64, error) {
	root = filepath.Clean(root)
	var total int64
	for {
		h, err := s.NextHeader()
		if err == io.EOF {
			return total, nil
		} else if err != nil {
			return total, err
		}
		path, escapes := resolve(root, h.Name)
		if path == "" {
			continue
		}
		if escapes && d.opts.Has(archive.ExtractSecureNoDotDot) {
			log.Printf("skipping %s: path leaves the extraction root", h.Name)
			continue
		}
		n, err := d.writeMember(s, h, root, path)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "extracting %s", h.Name)
		}
		if d.OnMember != nil {
			d.OnMember(h, n)
		}
	}
}

// resolve maps a member name onto a path under root and reports whether the
// cleaned name tried to leave root.
func resolve(root, name string) (string, bool) {
	name = strings.TrimLeft(filepath.FromSlash(name), string(filepath.Separator))
	if name == "" || name == "." {
		return "", false
	}
	escapes := slices.Contains(strings.Split(name, string(filepath.Separator)), "..")
	rel := filepath.Clean(string(filepath.Separator) + name)
	return filepath.Join(root, rel), escapes
}

func (d *Disk) writeMember(s *reader.Session, h *reader.Header, root, path string) (int64, error) {
	// billy filesystems create missing parents on their own, so the
	// no-autodir check has to happen here.
	if parent := filepath.Dir(path); d.opts.Has(archive.ExtractNoAutodir) {
		if parent != root && parent != "." {
			if _, err := d.fs.Stat(parent); err != nil {
				return 0, errors.Wrapf(err, "parent directory of %s", h.Name)
			}
		}
	} else if h.Type != archive.Directory {
		if err := d.fs.MkdirAll(parent, 0o755); err != nil {
			return 0, err
		}
	}
	switch {
	case h.Type == archive.Directory:
		if err := d.fs.MkdirAll(path, dirPerm(h.Mode)); err != nil {
			return 0, err
		}
	case h.IsHardlink:
		target, _ := resolve(root, h.Linkname)
		n, err := d.copyFile(target, path, h)
		if err != nil {
			return n, err
		}
		return n, d.applyAttrs(path, h)
	case h.Type == archive.SymbolicLink:
		if d.opts.Has(archive.ExtractSecureSymlinks) && symlinkEscapes(root, path, h.Linkname) {
			log.Printf("skipping %s: symlink target %s leaves the extraction root", h.Name, h.Linkname)
			return 0, nil
		}
		if err := d.replace(path); err != nil {
			return 0, err
		}
		return 0, d.fs.Symlink(h.Linkname, path)
	case h.Type == archive.RegularFile:
		n, err := d.stage(path, h.Mode, s)
		if err != nil {
			return n, err
		}
		return n, d.applyAttrs(path, h)
	default:
		log.Printf("skipping %s: unsupported member type %s", h.Name, h.Type)
		return 0, nil
	}
	return 0, d.applyAttrs(path, h)
}

// stage writes r to a temporary sibling of path and renames it into place.
func (d *Disk) stage(path string, mode os.FileMode, r io.Reader) (int64, error) {
	tmp := path + ".arcread-" + uuid.NewString()
	f, err := d.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = d.replace(path)
	}
	if err == nil {
		err = d.fs.Rename(tmp, path)
	}
	if err != nil {
		d.fs.Remove(tmp)
		return n, err
	}
	return n, nil
}

// replace clears path for a new member, or fails with ErrExists when
// overwriting is disabled.
func (d *Disk) replace(path string) error {
	if _, err := d.fs.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if d.opts.Has(archive.ExtractNoOverwrite) {
		return errors.Wrap(ErrExists, path)
	}
	return d.fs.Remove(path)
}

// copyFile materializes a hard link as a copy of an already extracted file.
func (d *Disk) copyFile(from, to string, h *reader.Header) (int64, error) {
	src, err := d.fs.Open(from)
	if err != nil {
		return 0, errors.Wrapf(err, "opening link target %s", h.Linkname)
	}
	defer src.Close()
	fi, err := d.fs.Stat(from)
	if err != nil {
		return 0, err
	}
	return d.stage(to, fi.Mode(), src)
}

func (d *Disk) applyAttrs(path string, h *reader.Header) error {
	if !d.opts.Has(archive.ExtractTime) && !d.opts.Has(archive.ExtractPerm) {
		return nil
	}
	ch := d.attrs()
	if ch == nil {
		log.Printf("cannot restore attributes of %s on this filesystem", path)
		return nil
	}
	if d.opts.Has(archive.ExtractPerm) {
		if err := ch.Chmod(path, h.Mode&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky)); err != nil {
			return err
		}
	}
	if d.opts.Has(archive.ExtractTime) && !h.ModTime.IsZero() {
		if err := ch.Chtimes(path, h.ModTime, h.ModTime); err != nil {
			return err
		}
	}
	return nil
}

func dirPerm(m os.FileMode) os.FileMode {
	if p := m.Perm(); p != 0 {
		return p | 0o700
	}
	return 0o755
}

// symlinkEscapes reports whether a link at path pointing to target resolves
// outside root.
func symlinkEscapes(root, path, target string) bool {
	if filepath.IsAbs(target) {
		return true
	}
	resolved := filepath.Join(filepath.Dir(path), target)
	rel, err := filepath.Rel(root, resolved)
	return err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

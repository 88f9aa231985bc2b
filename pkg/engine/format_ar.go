// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/blakesmith/ar"
)

var arMagic = []byte("!<arch>\n")

const (
	arGNUSymbols = "/"
	arGNUNames   = "//"
	arBSDSymbols = "__.SYMDEF"
	arBSDPrefix  = "#1/"
)

// arReader reads System V (GNU) and BSD ar archives, resolving long names.
type arReader struct {
	a     *Archive
	ar    *ar.Reader
	names []byte // GNU long name table
	cur   bool
	pos   int64
}

func newArReader(a *Archive) (formatReader, error) {
	return &arReader{a: a, ar: ar.NewReader(a.counter), pos: int64(len(arMagic))}, nil
}

func (r *arReader) next(e *Entry) (int64, error) {
	for {
		if r.cur {
			if _, err := io.Copy(io.Discard, r.ar); err != nil {
				return r.pos, err
			}
			n := r.a.counter.n
			r.pos = n + n%2
			r.cur = false
		}
		h, err := r.ar.Next()
		if err == io.EOF {
			return r.pos, io.EOF
		} else if err != nil {
			return r.pos, errFileFormat("Damaged ar archive: %v", err)
		}
		r.cur = true
		name := strings.TrimRight(h.Name, " ")
		size := h.Size
		switch {
		case name == arGNUSymbols || name == arBSDSymbols || name == arBSDSymbols+" SORTED":
			continue
		case name == arGNUNames:
			b, err := io.ReadAll(r.ar)
			if err != nil {
				return r.pos, errFileFormat("Reading ar name table: %v", err)
			}
			r.names = b
			continue
		case strings.HasPrefix(name, arBSDPrefix):
			n, err := strconv.Atoi(name[len(arBSDPrefix):])
			if err != nil || int64(n) > size {
				return r.pos, errFileFormat("Invalid BSD ar name %q", name)
			}
			b := make([]byte, n)
			if _, err := io.ReadFull(r.ar, b); err != nil {
				return r.pos, errFileFormat("Reading BSD ar name: %v", err)
			}
			name = string(bytes.TrimRight(b, "\x00"))
			size -= int64(n)
		case len(name) > 1 && name[0] == '/':
			name, err = r.longName(name[1:])
			if err != nil {
				return r.pos, err
			}
		default:
			name = strings.TrimSuffix(name, "/")
		}
		e.setPathname(name)
		mode := uint32(h.Mode)
		if mode&IFMT == 0 {
			mode |= IFREG
		}
		e.setRawMode(mode)
		e.setSize(size)
		e.mtime = h.ModTime
		e.uid, e.gid = int64(h.Uid), int64(h.Gid)
		return r.pos, nil
	}
}

// longName resolves a GNU "/offset" reference into the name table.
func (r *arReader) longName(ref string) (string, error) {
	off, err := strconv.Atoi(ref)
	if err != nil || off < 0 || off >= len(r.names) {
		return "", errFileFormat("Invalid ar long name reference /%s", ref)
	}
	s := r.names[off:]
	if i := bytes.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(string(s), "/"), nil
}

func (r *arReader) content() io.Reader { return r.ar }
func (r *arReader) close() error       { return nil }

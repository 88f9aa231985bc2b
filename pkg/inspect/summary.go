// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package inspect summarizes archive contents for comparison.
package inspect

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/reader"
	"github.com/pkg/errors"
)

// Summary is a summary of the comparable features of an archive.
type Summary struct {
	Files      []string
	FileHashes []string
	CRLFCount  int
}

// Diff compares two summaries by member path. It reports the paths present
// only in s, the shared paths whose digests differ, and the paths present only
// in other, each in the order its summary lists them.
func (s *Summary) Diff(other *Summary) (leftOnly, diffs, rightOnly []string) {
	theirs := make(map[string]string, len(other.Files))
	for k, name := range other.Files {
		theirs[name] = other.FileHashes[k]
	}
	ours := make(map[string]bool, len(s.Files))
	for k, name := range s.Files {
		ours[name] = true
		switch digest, ok := theirs[name]; {
		case !ok:
			leftOnly = append(leftOnly, name)
		case digest != s.FileHashes[k]:
			diffs = append(diffs, name)
		}
	}
	for _, name := range other.Files {
		if !ours[name] {
			rightOnly = append(rightOnly, name)
		}
	}
	return leftOnly, diffs, rightOnly
}

// crlfCounter counts CRLF pairs across write boundaries.
type crlfCounter struct {
	n      int
	lastCR bool
}

func (c *crlfCounter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.lastCR && p[0] == '\n' {
		c.n++
	}
	c.n += bytes.Count(p, []byte{'\r', '\n'})
	c.lastCR = p[len(p)-1] == '\r'
	return len(p), nil
}

// memberDigest identifies the content of a member. Regular files hash their
// content; links and special files are identified by type and target.
func memberDigest(e *reader.Entry, crlf *crlfCounter) (string, error) {
	switch e.Filetype() {
	case archive.RegularFile:
		if l := e.Linkname(); l != "" {
			return "link:" + l, nil
		}
		h := sha256.New()
		c := &crlfCounter{}
		if _, err := e.WriteTo(io.MultiWriter(h, c)); err != nil {
			return "", err
		}
		crlf.n += c.n
		return hex.EncodeToString(h.Sum(nil)), nil
	case archive.SymbolicLink:
		return "symlink:" + e.Linkname(), nil
	default:
		return e.Filetype().String(), nil
	}
}

type member struct {
	name, hash string
}

// NewSummary consumes the remaining members of it and summarizes them, sorted
// by name. Members without a usable name are skipped.
func NewSummary(it *reader.Iterator) (*Summary, error) {
	var members []member
	crlf := &crlfCounter{}
	for e, err := range it.All() {
		if err != nil {
			return nil, errors.Wrap(err, "reading archive")
		}
		name, ok := e.Pathname()
		if !ok {
			continue
		}
		hash, err := memberDigest(e, crlf)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
		members = append(members, member{name, hash})
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].name < members[j].name })
	s := &Summary{
		Files:      make([]string, 0, len(members)),
		FileHashes: make([]string, 0, len(members)),
		CRLFCount:  crlf.n,
	}
	for _, m := range members {
		s.Files = append(s.Files, m.name)
		s.FileHashes = append(s.FileHashes, m.hash)
	}
	return s, nil
}

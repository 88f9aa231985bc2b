// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"io"
	"log"
	"runtime"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/engine"
)

// cursor is the index of the member the engine is positioned on, shared by
// a session and every Entry it produced. It is -1 before the first advance.
type cursor struct {
	index int
}

// Session is an open archive. It is not safe for concurrent use.
type Session struct {
	h       *handle
	cur     *cursor
	iter    *Iterator
	cleanup runtime.Cleanup
}

func newSession(h *handle) *Session {
	s := &Session{h: h, cur: &cursor{index: -1}}
	s.cleanup = runtime.AddCleanup(s, func(h *handle) { h.release() }, h)
	return s
}

// advance moves the engine to the next member. The cursor moves first, so
// every earlier Entry is stale even if the engine fails.
func (s *Session) advance() (*engine.Entry, error) {
	if s.h.released {
		return nil, archive.ErrClosed
	}
	s.cur.index++
	e, st := s.h.a.NextHeader()
	if st == engine.EOF {
		return nil, io.EOF
	}
	if err := s.h.check(st); err != nil {
		return nil, err
	}
	return e, nil
}

// NextHeader advances to the next member and returns a snapshot of its
// metadata. It returns io.EOF after the last member.
func (s *Session) NextHeader() (*Header, error) {
	e, err := s.advance()
	if err != nil {
		return nil, err
	}
	return newHeader(e), nil
}

// HeaderPosition returns the offset in the decoded stream of the most recent
// header. It is 0 before the first member.
func (s *Session) HeaderPosition() int64 {
	return s.h.a.HeaderPosition()
}

// ReadBlock returns the next block of the current member. The block is only
// valid until the next read or advance. It returns io.EOF at the end of the
// member.
func (s *Session) ReadBlock() ([]byte, error) {
	if s.h.released {
		return nil, archive.ErrClosed
	}
	b, _, st := s.h.a.ReadDataBlock()
	if st == engine.EOF {
		return nil, io.EOF
	}
	if err := s.h.check(st); err != nil {
		return nil, err
	}
	return b, nil
}

// Read reads content of the current member.
func (s *Session) Read(p []byte) (int, error) {
	if s.h.released {
		return 0, archive.ErrClosed
	}
	n, st := s.h.a.ReadData(p)
	if st == engine.EOF {
		return 0, io.EOF
	}
	if err := s.h.check(st); err != nil {
		return 0, err
	}
	return n, nil
}

// Entries returns the iterator over the members of s. Every call returns the
// same iterator.
func (s *Session) Entries() *Iterator {
	if s.iter == nil {
		s.iter = &Iterator{s: s}
	}
	return s.iter
}

// Format returns the detected container format, once the first header has
// been read.
func (s *Session) Format() string {
	return s.h.a.FormatName()
}

// Filters returns the detected filters, outermost first.
func (s *Session) Filters() []string {
	return s.h.a.FilterNames()
}

// Close releases the engine handle. Later calls fail with archive.ErrClosed.
func (s *Session) Close() error {
	if s.h.released {
		return archive.ErrClosed
	}
	s.cleanup.Stop()
	if st := s.h.release(); st < engine.OK {
		log.Printf("archive: closing: %s", s.h.a.ErrorString())
	}
	return nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"io"
	"iter"

	"github.com/arcread/arcread/internal/iterx"
)

type iterState int

const (
	iterActive iterState = iota
	iterExhausted
	iterErrored
)

// Iterator yields the members of a session in archive order. It cannot be
// restarted. Once it returns io.EOF or an error it keeps returning it without
// touching the engine.
type Iterator struct {
	s     *Session
	state iterState
	err   error
}

// Next advances to the following member. The Entry returned by the previous
// call becomes stale.
func (it *Iterator) Next() (*Entry, error) {
	switch it.state {
	case iterExhausted:
		return nil, io.EOF
	case iterErrored:
		return nil, it.err
	}
	e, err := it.s.advance()
	if err == io.EOF {
		it.state = iterExhausted
		return nil, io.EOF
	} else if err != nil {
		it.state, it.err = iterErrored, err
		return nil, err
	}
	return &Entry{s: it.s, e: e, index: it.s.cur.index}, nil
}

// All returns the remaining members as a sequence. Iteration stops after the
// first error.
func (it *Iterator) All() iter.Seq2[*Entry, error] {
	return iterx.ToSeq2[*Entry](it, io.EOF)
}

// Index returns the index of the current member, or -1 before the first.
func (it *Iterator) Index() int {
	return it.s.cur.index
}

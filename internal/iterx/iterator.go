// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package iterx adapts pull-style iterators to range-over-func sequences.
package iterx

import (
	"errors"
	"iter"
)

type nexter[T any] interface {
	Next() (T, error)
}

// ToSeq2 ranges over it until Next returns an error matching done, which ends
// the sequence silently. Any other error is yielded once and ends it.
func ToSeq2[T any](it nexter[T], done error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := it.Next()
			switch {
			case errors.Is(err, done):
				return
			case err != nil:
				yield(v, err)
				return
			case !yield(v, nil):
				return
			}
		}
	}
}

// Count drains seq and returns how many values it yielded before the first
// error.
func Count[T any](seq iter.Seq2[T, error]) (int, error) {
	n := 0
	for _, err := range seq {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

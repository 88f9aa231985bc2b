// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package glob matches archive member paths against shell patterns.
package glob

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

const globstar = "**"

// Match reports whether name matches pattern. Patterns follow path.Match per
// path segment, and a segment of exactly "**" matches zero or more segments.
// A trailing slash on name, as archives use for directories, is ignored.
func Match(pattern, name string) (bool, error) {
	if err := Validate(pattern); err != nil {
		return false, err
	}
	return matchSegments(split(pattern), split(name)), nil
}

// Validate checks the syntax of every segment of pattern.
func Validate(pattern string) error {
	for _, seg := range split(pattern) {
		if seg == globstar {
			continue
		}
		if strings.Contains(seg, globstar) {
			return errors.Errorf("invalid pattern %q: %q must be a whole path segment", pattern, globstar)
		}
		if _, err := path.Match(seg, ""); err != nil {
			return errors.Wrapf(err, "invalid pattern %q", pattern)
		}
	}
	return nil
}

func split(p string) []string {
	p = strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == globstar {
			// Collapse adjacent globstars.
			for len(pat) > 1 && pat[1] == globstar {
				pat = pat[1:]
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(pat[1:], name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], name[0]); !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}

// Set is a list of patterns. An empty Set matches everything.
type Set []string

// Validate checks every pattern in s.
func (s Set) Validate() error {
	for _, p := range s {
		if err := Validate(p); err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether name matches any pattern in s. Invalid patterns never
// match.
func (s Set) Match(name string) bool {
	if len(s) == 0 {
		return true
	}
	for _, p := range s {
		if ok, err := Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

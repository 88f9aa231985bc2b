// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package act describes arcread operations independently of the command line
// that invokes them.
package act

import (
	"context"
	"io"
	"os"

	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/reader"
	"github.com/pkg/errors"
)

// Input is a validated operation configuration.
type Input interface {
	Validate() error
}

// InitDeps builds the dependencies of an operation.
type InitDeps[D any] func(context.Context) (D, error)

// Action is an operation over validated input.
type Action[I Input, O any, D any] func(context.Context, I, D) (*O, error)

// NoOutput is the result of operations that only write to their IO streams.
type NoOutput struct{}

// StdinPath names the standard input as an archive source.
const StdinPath = "-"

// Opener opens archives according to a reader profile.
type Opener struct {
	Profile *archive.Profile
	Stdin   io.Reader
}

// NewOpener returns an Opener for the profile stored at path, or for the
// default profile when path is empty.
func NewOpener(path string) (*Opener, error) {
	if path == "" {
		return &Opener{Profile: archive.DefaultProfile()}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening profile")
	}
	defer f.Close()
	p, err := archive.LoadProfile(f)
	if err != nil {
		return nil, err
	}
	return &Opener{Profile: p}, nil
}

// Open starts a read session on the archive at path. StdinPath reads from
// o.Stdin.
func (o *Opener) Open(path string) (*reader.Session, error) {
	b, err := reader.NewBuilderFromProfile(o.Profile)
	if err != nil {
		return nil, errors.Wrap(err, "configuring reader")
	}
	if path == StdinPath {
		if o.Stdin == nil {
			return nil, errors.New("no standard input available")
		}
		s, err := b.OpenStream(o.Stdin)
		return s, errors.Wrap(err, "opening standard input")
	}
	s, err := b.OpenFile(path)
	if err != nil {
		b.Close()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return s, nil
}

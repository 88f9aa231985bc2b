// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"

	"github.com/arcread/arcread/pkg/act"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Deps receives the IO streams of the invoking command.
type Deps interface {
	SetIO(IO)
}

// ParseArgs populates an Input from positional arguments.
type ParseArgs[I act.Input] func(in *I, args []string) error

// SkipArgs is a ParseArgs that sets no arguments.
func SkipArgs[I act.Input](cfg *I, args []string) error {
	return nil
}

// RunE builds a cobra.Command.RunE that parses arguments, validates the
// input, initializes dependencies with the command's IO streams and runs the
// action.
func RunE[I act.Input, O any, D Deps](
	cfg *I,
	parseArgs ParseArgs[I],
	initDeps act.InitDeps[D],
	action act.Action[I, O, D],
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := parseArgs(cfg, args); err != nil {
			return err
		}
		if err := (*cfg).Validate(); err != nil {
			return err
		}
		deps, err := initDeps(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "initializing dependencies")
		}
		deps.SetIO(IO{
			In:  cmd.InOrStdin(),
			Out: cmd.OutOrStdout(),
			Err: cmd.ErrOrStderr(),
		})
		_, err = action(cmd.Context(), *cfg, deps)
		return err
	}
}

// OpenerDeps carries the IO streams and an archive opener whose standard
// input follows the command's.
type OpenerDeps struct {
	IO     IO
	Opener *act.Opener
}

func (d *OpenerDeps) SetIO(cio IO) {
	d.IO = cio
	if d.Opener != nil {
		d.Opener.Stdin = cio.In
	}
}

// InitOpenerDeps returns an InitDeps that loads the profile at *profile when
// the command runs.
func InitOpenerDeps(profile *string) act.InitDeps[*OpenerDeps] {
	return func(context.Context) (*OpenerDeps, error) {
		o, err := act.NewOpener(*profile)
		if err != nil {
			return nil, err
		}
		return &OpenerDeps{Opener: o}, nil
	}
}

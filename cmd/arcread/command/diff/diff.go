// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"context"
	"flag"
	"fmt"

	"github.com/arcread/arcread/pkg/act"
	"github.com/arcread/arcread/pkg/act/cli"
	"github.com/arcread/arcread/pkg/inspect"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

// ErrDifferent is returned when the archives differ and --exit-code is set.
var ErrDifferent = errors.New("archives differ")

// Config holds all configuration for the diff command.
type Config struct {
	Profile  string
	Left     string
	Right    string
	ExitCode bool
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Left == "" || c.Right == "" {
		return errors.New("two archive paths are required")
	}
	if c.Left == act.StdinPath && c.Right == act.StdinPath {
		return errors.New("standard input can only be read once")
	}
	return nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 2 {
		return errors.New("expected exactly 2 arguments: left and right archive paths")
	}
	cfg.Left, cfg.Right = args[0], args[1]
	return nil
}

func summarize(o *act.Opener, path string) (*inspect.Summary, error) {
	s, err := o.Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	sum, err := inspect.NewSummary(s.Entries())
	return sum, errors.Wrapf(err, "summarizing %s", path)
}

// Handler compares the contents of two archives. Each archive is read by its
// own session on its own goroutine.
func Handler(ctx context.Context, cfg Config, deps *cli.OpenerDeps) (*act.NoOutput, error) {
	var left, right *inspect.Summary
	eg := new(errgroup.Group)
	eg.Go(func() error {
		var err error
		left, err = summarize(deps.Opener, cfg.Left)
		return err
	})
	eg.Go(func() error {
		var err error
		right, err = summarize(deps.Opener, cfg.Right)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	leftOnly, diffs, rightOnly := left.Diff(right)
	for _, f := range leftOnly {
		fmt.Fprintln(deps.IO.Out, red("- "+f))
	}
	for _, f := range diffs {
		fmt.Fprintln(deps.IO.Out, yellow("~ "+f))
	}
	for _, f := range rightOnly {
		fmt.Fprintln(deps.IO.Out, green("+ "+f))
	}
	crlf := left.CRLFCount != right.CRLFCount
	if crlf {
		fmt.Fprintf(deps.IO.Out, "CRLF count: %d != %d\n", left.CRLFCount, right.CRLFCount)
	}
	if cfg.ExitCode && (crlf || len(leftOnly)+len(diffs)+len(rightOnly) > 0) {
		return nil, ErrDifferent
	}
	return &act.NoOutput{}, nil
}

// Command creates a new diff command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "diff [--exit-code] [--profile=<file>] <left> <right>",
		Short: "Compare the members of two archives",
		Args:  cobra.ExactArgs(2),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			cli.InitOpenerDeps(&cfg.Profile),
			Handler,
		),
	}
	cmd.Flags().AddGoFlagSet(flagSet(cmd.Name(), &cfg))
	return cmd
}

// flagSet returns the command-line flags for the Config struct.
func flagSet(name string, cfg *Config) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.StringVar(&cfg.Profile, "profile", "", "YAML reader profile; all formats and filters when empty")
	set.BoolVar(&cfg.ExitCode, "exit-code", false, "fail when the archives differ")
	return set
}

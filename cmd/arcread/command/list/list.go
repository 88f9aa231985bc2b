// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package list

import (
	"context"
	"flag"
	"fmt"

	"github.com/arcread/arcread/internal/iterx"
	"github.com/arcread/arcread/pkg/act"
	"github.com/arcread/arcread/pkg/act/cli"
	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/reader"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	blue = color.New(color.FgBlue).SprintFunc()
	cyan = color.New(color.FgCyan).SprintFunc()
)

// Config holds all configuration for the list command.
type Config struct {
	Profile string
	Path    string
	Long    bool
	Count   bool
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("archive path is required")
	}
	if c.Long && c.Count {
		return errors.New("--long and --count are mutually exclusive")
	}
	return nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 argument: archive path")
	}
	cfg.Path = args[0]
	return nil
}

func describe(e *reader.Entry, long bool) string {
	name, ok := e.Pathname()
	if !ok {
		name = "<unnamed>"
	}
	switch e.Filetype() {
	case archive.Directory:
		name = blue(name)
	case archive.SymbolicLink:
		name = cyan(name) + " -> " + e.Linkname()
	}
	if !long {
		return name
	}
	size := "-"
	if e.SizeIsSet() {
		size = fmt.Sprint(e.Size())
	}
	return fmt.Sprintf("%s %10s %s %s", e.Mode(), size, e.ModTime().UTC().Format("2006-01-02 15:04"), name)
}

// Handler lists the members of an archive.
func Handler(ctx context.Context, cfg Config, deps *cli.OpenerDeps) (*act.NoOutput, error) {
	s, err := deps.Opener.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if cfg.Count {
		n, err := iterx.Count(s.Entries().All())
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(deps.IO.Out, n)
		return &act.NoOutput{}, nil
	}
	for e, err := range s.Entries().All() {
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(deps.IO.Out, describe(e, cfg.Long))
	}
	return &act.NoOutput{}, nil
}

// Command creates a new list command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "list [--long|--count] [--profile=<file>] <archive>",
		Short: "List the members of an archive",
		Args:  cobra.ExactArgs(1),
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
	set.BoolVar(&cfg.Long, "long", false, "show mode, size and modification time")
	set.BoolVar(&cfg.Count, "count", false, "print only the number of members")
	return set
}

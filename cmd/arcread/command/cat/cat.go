// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cat

import (
	"context"
	"flag"

	"github.com/arcread/arcread/internal/glob"
	"github.com/arcread/arcread/pkg/act"
	"github.com/arcread/arcread/pkg/act/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the cat command.
type Config struct {
	Profile string
	Path    string
	// Patterns select members by path; all regular files when empty.
	Patterns glob.Set
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("archive path is required")
	}
	return c.Patterns.Validate()
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) < 1 {
		return errors.New("expected an archive path")
	}
	cfg.Path, cfg.Patterns = args[0], args[1:]
	return nil
}

// Handler writes the content of the selected regular members to the output
// in archive order.
func Handler(ctx context.Context, cfg Config, deps *cli.OpenerDeps) (*act.NoOutput, error) {
	s, err := deps.Opener.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	matched := false
	for e, err := range s.Entries().All() {
		if err != nil {
			return nil, err
		}
		name, ok := e.Pathname()
		if !ok || !e.IsFile() || !cfg.Patterns.Match(name) {
			continue
		}
		matched = true
		if _, err := e.WriteTo(deps.IO.Out); err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
	}
	if !matched && len(cfg.Patterns) > 0 {
		return nil, errors.Errorf("no member matches %q", cfg.Patterns)
	}
	return &act.NoOutput{}, nil
}

// Command creates a new cat command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "cat [--profile=<file>] <archive> [pattern...]",
		Short: "Print the content of archive members",
		Args:  cobra.MinimumNArgs(1),
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
	return set
}

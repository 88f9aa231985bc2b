// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"flag"
	"fmt"

	"github.com/arcread/arcread/internal/iterx"
	"github.com/arcread/arcread/pkg/act"
	"github.com/arcread/arcread/pkg/act/cli"
	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/reader"
	"github.com/arcread/arcread/pkg/writer"
	"github.com/cheggaaa/pb"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the extract command.
type Config struct {
	Profile     string
	Path        string
	Dest        string
	Time        bool
	Perm        bool
	NoOverwrite bool
	Insecure    bool
	Progress    bool
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("archive path is required")
	}
	if c.Dest == "" {
		return errors.New("destination is required")
	}
	if c.Progress && c.Path == act.StdinPath {
		return errors.New("--progress needs a seekable archive, not standard input")
	}
	return nil
}

func (c Config) options() archive.ExtractOptions {
	opts := archive.NewExtractOptions()
	if c.Time {
		opts.Add(archive.ExtractTime)
	}
	if c.Perm {
		opts.Add(archive.ExtractPerm)
	}
	if c.NoOverwrite {
		opts.Add(archive.ExtractNoOverwrite)
	}
	if !c.Insecure {
		opts.Add(archive.ExtractSecureNoDotDot)
		opts.Add(archive.ExtractSecureSymlinks)
	}
	return opts
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 argument: archive path")
	}
	cfg.Path = args[0]
	return nil
}

// countMembers reads the archive once to size the progress bar.
func countMembers(o *act.Opener, path string) (int, error) {
	s, err := o.Open(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return iterx.Count(s.Entries().All())
}

// Handler extracts an archive into the destination directory.
func Handler(ctx context.Context, cfg Config, deps *cli.OpenerDeps) (*act.NoOutput, error) {
	d := writer.NewDisk(osfs.New(cfg.Dest, osfs.WithBoundOS()))
	d.SetOptions(cfg.options())
	if cfg.Progress {
		total, err := countMembers(deps.Opener, cfg.Path)
		if err != nil {
			return nil, err
		}
		bar := pb.New(total)
		bar.Output = deps.IO.Err
		bar.ShowTimeLeft = true
		bar.Start()
		defer bar.Finish()
		d.OnMember = func(*reader.Header, int64) { bar.Increment() }
	}
	s, err := deps.Opener.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	n, err := d.Write(s, ".")
	if err != nil {
		return nil, err
	}
	if !cfg.Progress {
		fmt.Fprintf(deps.IO.Err, "extracted %d bytes to %s\n", n, cfg.Dest)
	}
	return &act.NoOutput{}, nil
}

// Command creates a new extract command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "extract [--dest=<dir>] [--time] [--perm] [--no-overwrite] [--progress] <archive>",
		Short: "Extract an archive onto disk",
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
	set.StringVar(&cfg.Dest, "dest", ".", "directory to extract into")
	set.BoolVar(&cfg.Time, "time", false, "restore modification times")
	set.BoolVar(&cfg.Perm, "perm", false, "restore permission bits")
	set.BoolVar(&cfg.NoOverwrite, "no-overwrite", false, "fail instead of replacing existing files")
	set.BoolVar(&cfg.Insecure, "insecure", false, "allow paths and symlinks that leave the destination")
	set.BoolVar(&cfg.Progress, "progress", false, "show a progress bar")
	return set
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package list

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arcread/arcread/pkg/act"
	"github.com/arcread/arcread/pkg/act/cli"
	"github.com/arcread/arcread/pkg/archive"
	"github.com/arcread/arcread/pkg/archive/archivetest"
	"github.com/fatih/color"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid config", cfg: Config{Path: "a.tar"}},
		{name: "missing path", cfg: Config{}, wantErr: true},
		{name: "long and count", cfg: Config{Path: "a.tar", Long: true, Count: true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	color.NoColor = true
	tgz, err := archivetest.TgzFile([]archivetest.TarEntry{
		{Header: &tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{Header: &tar.Header{Name: "dir/hello.txt", Typeflag: tar.TypeReg, Mode: 0o644}, Body: []byte(archivetest.HelloContent)},
		{Header: &tar.Header{Name: "dir/link", Typeflag: tar.TypeSymlink, Linkname: "hello.txt"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "a.tar.gz")
	if err := os.WriteFile(path, tgz.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "names", cfg: Config{Path: path}, want: "dir/\ndir/hello.txt\ndir/link -> hello.txt\n"},
		{name: "count", cfg: Config{Path: path, Count: true}, want: "3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			deps := &cli.OpenerDeps{
				IO:     cli.IO{Out: &out},
				Opener: &act.Opener{Profile: archive.DefaultProfile()},
			}
			if _, err := Handler(context.Background(), tt.cfg, deps); err != nil {
				t.Fatalf("Handler() = %v", err)
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

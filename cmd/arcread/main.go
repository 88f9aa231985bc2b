// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Binary arcread lists, prints, extracts and compares archives.
package main

import (
	"log"

	"github.com/arcread/arcread/cmd/arcread/command/cat"
	"github.com/arcread/arcread/cmd/arcread/command/diff"
	"github.com/arcread/arcread/cmd/arcread/command/extract"
	"github.com/arcread/arcread/cmd/arcread/command/list"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "arcread",
	Short:        "Read tar, zip, 7z, cpio, ar, rar and iso9660 archives",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(list.Command())
	rootCmd.AddCommand(cat.Command())
	rootCmd.AddCommand(extract.Command())
	rootCmd.AddCommand(diff.Command())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

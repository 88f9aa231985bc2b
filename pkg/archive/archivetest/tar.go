// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package archivetest builds archive fixtures in memory.
package archivetest

import (
	"archive/tar"
	"bytes"
	"time"
)

// HelloContent is the body of the hello.txt fixture.
const HelloContent = "hello, world!\n"

// TarEntry is a tar member and its content. Header.Size is derived from Body.
type TarEntry struct {
	Header *tar.Header
	Body   []byte
}

// Hello is a single regular file "hello.txt". Written with TarFile it yields a
// USTAR archive whose end marker starts at offset 1024.
func Hello() []TarEntry {
	return []TarEntry{{
		Header: &tar.Header{
			Name:     "hello.txt",
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			ModTime:  time.Unix(1700000000, 0),
			Format:   tar.FormatUSTAR,
		},
		Body: []byte(HelloContent),
	}}
}

func TarFile(entries []TarEntry) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	for _, entry := range entries {
		h := *entry.Header
		if h.Typeflag == tar.TypeReg {
			h.Size = int64(len(entry.Body))
		}
		if err := tw.WriteHeader(&h); err != nil {
			return nil, err
		}
		if _, err := tw.Write(entry.Body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

func TgzFile(entries []TarEntry) (*bytes.Buffer, error) {
	buf, err := TarFile(entries)
	if err != nil {
		return nil, err
	}
	return Compress("gzip", buf.Bytes())
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archivetest

import (
	"bytes"
	"time"

	"github.com/blakesmith/ar"
	"github.com/cavaliergopher/cpio"
)

// Entry is a member of a cpio or ar fixture. Mode carries the file type bits.
type Entry struct {
	Name string
	Mode int64
	Body []byte
}

// CpioFile writes entries in the SVR4 (newc) format.
func CpioFile(entries []Entry) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := cpio.NewWriter(buf)
	for _, e := range entries {
		h := &cpio.Header{
			Name:    e.Name,
			Mode:    cpio.FileMode(e.Mode),
			ModTime: time.Unix(1700000000, 0),
			Size:    int64(len(e.Body)),
		}
		if err := w.WriteHeader(h); err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Body); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// ArFile writes entries as a common ar archive. Names must fit in 16 bytes.
func ArFile(entries []Entry) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := ar.NewWriter(buf)
	if err := w.WriteGlobalHeader(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		h := &ar.Header{
			Name:    e.Name,
			ModTime: time.Unix(1700000000, 0),
			Mode:    e.Mode,
			Size:    int64(len(e.Body)),
		}
		if err := w.WriteHeader(h); err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Body); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

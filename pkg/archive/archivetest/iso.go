// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archivetest

import (
	"bytes"

	"github.com/kdomanski/iso9660"
	"github.com/pkg/errors"
)

// IsoFile writes regular file entries into an ISO 9660 image. Parent
// directories are implied by the names, and names are lowercased and mapped
// onto the ISO 9660 character set.
func IsoFile(entries []Entry) (*bytes.Buffer, error) {
	w, err := iso9660.NewWriter()
	if err != nil {
		return nil, err
	}
	defer w.Cleanup()
	for _, e := range entries {
		if err := w.AddFile(bytes.NewReader(e.Body), e.Name); err != nil {
			return nil, errors.Wrapf(err, "adding %s", e.Name)
		}
	}
	buf := new(bytes.Buffer)
	if err := w.WriteTo(buf, "ARCREAD"); err != nil {
		return nil, err
	}
	return buf, nil
}

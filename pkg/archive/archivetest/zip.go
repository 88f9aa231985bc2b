// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archivetest

import (
	"archive/zip"
	"bytes"
)

// ZipEntry is a zip member and its content.
type ZipEntry struct {
	*zip.FileHeader
	Body []byte
}

func ZipFile(entries []ZipEntry) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		fw, err := zw.CreateHeader(entry.FileHeader)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(entry.Body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archivetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/pkg/errors"
)

// RAR 1.5 block types and flags used by RarFile.
const (
	rarBlockArchive = 0x73
	rarBlockFile    = 0x74
	rarBlockEnd     = 0x7b
	rarHasData      = 0x8000
	rarDirectory    = 0x00e0
	rarHostUnix     = 3
	rarMethodStore  = 0x30
)

var rarSignature = []byte("Rar!\x1a\x07\x00")

// rarBlock frames body with a RAR 1.5 block header. The header CRC is the low
// half of the CRC32 of everything after the CRC field.
func rarBlock(typ byte, flags uint16, body []byte) []byte {
	b := make([]byte, 7, 7+len(body))
	b[2] = typ
	binary.LittleEndian.PutUint16(b[3:5], flags)
	binary.LittleEndian.PutUint16(b[5:7], uint16(7+len(body)))
	b = append(b, body...)
	binary.LittleEndian.PutUint16(b[0:2], uint16(crc32.ChecksumIEEE(b[2:])))
	return b
}

func dosTime(t time.Time) uint32 {
	t = t.UTC()
	return uint32(t.Year()-1980)<<25 | uint32(t.Month())<<21 | uint32(t.Day())<<16 |
		uint32(t.Hour())<<11 | uint32(t.Minute())<<5 | uint32(t.Second()/2)
}

// RarFile writes entries as a RAR 1.5 archive created on a Unix host with
// every member stored uncompressed. Mode carries the file type bits.
func RarFile(entries []Entry) (*bytes.Buffer, error) {
	buf := bytes.NewBuffer(append([]byte(nil), rarSignature...))
	buf.Write(rarBlock(rarBlockArchive, 0, make([]byte, 6)))
	mtime := dosTime(time.Unix(1700000000, 0))
	for _, e := range entries {
		if len(e.Name) > 0xffff || int64(len(e.Body)) > 0xffffffff {
			return nil, errors.Errorf("rar entry %q too large", e.Name)
		}
		flags := uint16(rarHasData)
		if e.Mode&0o170000 == 0o040000 {
			flags |= rarDirectory
		}
		var body []byte
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.Body)))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.Body)))
		body = append(body, rarHostUnix)
		body = binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(e.Body))
		body = binary.LittleEndian.AppendUint32(body, mtime)
		body = append(body, 20, rarMethodStore)
		body = binary.LittleEndian.AppendUint16(body, uint16(len(e.Name)))
		body = binary.LittleEndian.AppendUint32(body, uint32(e.Mode))
		body = append(body, e.Name...)
		buf.Write(rarBlock(rarBlockFile, flags, body))
		buf.Write(e.Body)
	}
	buf.Write(rarBlock(rarBlockEnd, 0, nil))
	return buf, nil
}

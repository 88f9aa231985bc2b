// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archivetest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compress encodes b with the named filter: gzip, zstd, xz, lzma, lzip, lz4,
// uu or uu-base64.
func Compress(filter string, b []byte) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	var w io.WriteCloser
	var err error
	switch filter {
	case "lzip":
		return LzipMember(b)
	case "uu":
		return uuencode(b), nil
	case "uu-base64":
		return uuencodeBase64(b), nil
	case "gzip":
		w = gzip.NewWriter(buf)
	case "zstd":
		w, err = zstd.NewWriter(buf)
	case "xz":
		w, err = xz.NewWriter(buf)
	case "lzma":
		w, err = lzma.NewWriter(buf)
	case "lz4":
		w = lz4.NewWriter(buf)
	default:
		return nil, errors.Errorf("unsupported filter %q", filter)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// LzipMember encodes b as a single lzip member with a 1 MiB dictionary.
// Members can be concatenated into a multi-member file.
func LzipMember(b []byte) (*bytes.Buffer, error) {
	var raw bytes.Buffer
	w, err := lzma.WriterConfig{DictCap: 1 << 20, EOSMarker: true}.NewWriter(&raw)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	// lzip keeps the raw stream and replaces the classic header with its own.
	stream := raw.Bytes()[lzma.HeaderLen:]
	buf := bytes.NewBuffer([]byte{'L', 'Z', 'I', 'P', 1, 20})
	buf.Write(stream)
	var trailer [20]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(b))
	binary.LittleEndian.PutUint64(trailer[4:12], uint64(len(b)))
	binary.LittleEndian.PutUint64(trailer[12:20], uint64(6+len(stream)+len(trailer)))
	buf.Write(trailer[:])
	return buf, nil
}

func uuencode(b []byte) *bytes.Buffer {
	enc := func(c byte) byte {
		if c == 0 {
			return '`'
		}
		return c + ' '
	}
	buf := bytes.NewBufferString("begin 644 data\n")
	for len(b) > 0 {
		n := min(len(b), 45)
		line := b[:n]
		b = b[n:]
		buf.WriteByte(enc(byte(n)))
		for i := 0; i < n; i += 3 {
			var g [3]byte
			copy(g[:], line[i:min(i+3, n)])
			buf.WriteByte(enc(g[0] >> 2))
			buf.WriteByte(enc((g[0]<<4 | g[1]>>4) & 0x3f))
			buf.WriteByte(enc((g[1]<<2 | g[2]>>6) & 0x3f))
			buf.WriteByte(enc(g[2] & 0x3f))
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("`\nend\n")
	return buf
}

func uuencodeBase64(b []byte) *bytes.Buffer {
	buf := bytes.NewBufferString("begin-base64 644 data\n")
	for len(b) > 0 {
		n := min(len(b), 57)
		fmt.Fprintln(buf, base64.StdEncoding.EncodeToString(b[:n]))
		b = b[n:]
	}
	buf.WriteString("====\n")
	return buf
}

// RpmFile wraps payload in a version 3 rpm lead followed by empty signature
// and header sections, the layout readers skip to reach the payload.
func RpmFile(payload []byte) *bytes.Buffer {
	var lead [96]byte
	copy(lead[:], []byte{0xed, 0xab, 0xee, 0xdb, 3, 0})
	copy(lead[10:], "arcread-fixture")
	binary.BigEndian.PutUint16(lead[78:80], 5)
	buf := bytes.NewBuffer(lead[:])
	// Signature and main headers: magic, version 1, no index entries, no store.
	for range 2 {
		buf.Write([]byte{0x8e, 0xad, 0xe8, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	}
	buf.Write(payload)
	return buf
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"
)

const (
	lzipHeaderSize  = 6
	lzipTrailerSize = 20
)

// lzipReader decodes a sequence of lzip members. Each member is a raw LZMA
// stream with an end marker, preceded by a 6-byte header and followed by a
// trailer holding the CRC32 and size of the decoded data.
type lzipReader struct {
	src  *bufio.Reader
	cur  io.Reader
	crc  hash.Hash32
	size uint64
}

func newLzipReader(r io.Reader) (io.ReadCloser, error) {
	lr := &lzipReader{src: bufio.NewReader(r)}
	if err := lr.startMember(); err != nil {
		return nil, err
	}
	return io.NopCloser(lr), nil
}

func (lr *lzipReader) startMember() error {
	var hdr [lzipHeaderSize]byte
	if _, err := io.ReadFull(lr.src, hdr[:]); err != nil {
		return errors.Wrap(err, "reading lzip header")
	}
	if !bytes.Equal(hdr[:4], lzipMagic) || hdr[4] != 1 {
		return errFileFormat("lzip: bad member header")
	}
	dict := uint32(1) << (hdr[5] & 0x1f)
	dict -= (dict / 16) * uint32((hdr[5]>>5)&7)
	// Rebuild a classic .lzma header (lc=3 lp=0 pb=2, unknown size) so the
	// stock decoder can read the raw stream up to its end marker.
	var classic [13]byte
	classic[0] = 0x5d
	binary.LittleEndian.PutUint32(classic[1:5], dict)
	binary.LittleEndian.PutUint64(classic[5:13], ^uint64(0))
	dec, err := lzma.NewReader(&prefixByteReader{prefix: classic[:], r: lr.src})
	if err != nil {
		return errors.Wrap(err, "initializing lzip member")
	}
	lr.cur = dec
	lr.crc = crc32.NewIEEE()
	lr.size = 0
	return nil
}

func (lr *lzipReader) Read(p []byte) (int, error) {
	for {
		if lr.cur == nil {
			return 0, io.EOF
		}
		n, err := lr.cur.Read(p)
		if n > 0 {
			lr.crc.Write(p[:n])
			lr.size += uint64(n)
			return n, nil
		}
		if err != io.EOF {
			if err == nil {
				continue
			}
			return 0, err
		}
		if err := lr.finishMember(); err != nil {
			return 0, err
		}
	}
}

func (lr *lzipReader) finishMember() error {
	var trailer [lzipTrailerSize]byte
	if _, err := io.ReadFull(lr.src, trailer[:]); err != nil {
		return errors.Wrap(err, "reading lzip trailer")
	}
	if binary.LittleEndian.Uint32(trailer[0:4]) != lr.crc.Sum32() {
		return errFileFormat("lzip: CRC mismatch")
	}
	if binary.LittleEndian.Uint64(trailer[4:12]) != lr.size {
		return errFileFormat("lzip: data size mismatch")
	}
	lr.cur = nil
	if next, err := lr.src.Peek(4); err == nil && bytes.Equal(next, lzipMagic) {
		return lr.startMember()
	}
	return nil
}

// prefixByteReader serves prefix and then r, one byte at a time if asked.
// It implements io.ByteReader so the decoder never reads ahead of the member.
type prefixByteReader struct {
	prefix []byte
	r      *bufio.Reader
}

func (p *prefixByteReader) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.r.Read(b)
}

func (p *prefixByteReader) ReadByte() (byte, error) {
	if len(p.prefix) > 0 {
		c := p.prefix[0]
		p.prefix = p.prefix[1:]
		return c, nil
	}
	return p.r.ReadByte()
}

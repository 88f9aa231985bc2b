// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxUuLine = 1 << 16

func bidUu(peek []byte) int {
	switch {
	case bytes.HasPrefix(peek, []byte("begin-base64 ")):
		return 104
	case bytes.HasPrefix(peek, []byte("begin ")) && len(peek) > 6 && peek[6] >= '0' && peek[6] <= '7':
		return 56
	}
	return 0
}

// uuReader decodes a uuencoded or base64 "begin-base64" body.
type uuReader struct {
	src    *bufio.Reader
	base64 bool
	out    []byte
	done   bool
}

func newUuReader(r io.Reader) (io.ReadCloser, error) {
	ur := &uuReader{src: bufio.NewReaderSize(r, maxUuLine)}
	line, err := ur.line()
	if err != nil {
		return nil, errors.Wrap(err, "reading uu header")
	}
	switch {
	case strings.HasPrefix(line, "begin-base64 "):
		ur.base64 = true
	case strings.HasPrefix(line, "begin "):
	default:
		return nil, errFileFormat("uu: missing begin line")
	}
	return io.NopCloser(ur), nil
}

func (ur *uuReader) line() (string, error) {
	s, err := ur.src.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	return strings.TrimRight(s, "\r\n"), err
}

func (ur *uuReader) Read(p []byte) (int, error) {
	for len(ur.out) == 0 {
		if ur.done {
			return 0, io.EOF
		}
		line, err := ur.line()
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		} else if err != nil {
			return 0, err
		}
		if ur.base64 {
			if line == "====" {
				ur.done = true
				continue
			}
			b, err := base64.StdEncoding.DecodeString(line)
			if err != nil {
				return 0, errFileFormat("uu: invalid base64 line: %v", err)
			}
			ur.out = b
			continue
		}
		if line == "end" {
			ur.done = true
			continue
		}
		b, err := uudecodeLine(line)
		if err != nil {
			return 0, err
		}
		ur.out = b
	}
	n := copy(p, ur.out)
	ur.out = ur.out[n:]
	return n, nil
}

// uudecodeLine decodes one line whose first character encodes its length.
func uudecodeLine(line string) ([]byte, error) {
	if line == "" {
		return nil, nil
	}
	dec := func(c byte) byte { return (c - ' ') & 0x3f }
	n := int(dec(line[0]))
	body := line[1:]
	if len(body) < (n+2)/3*4 {
		return nil, errFileFormat("uu: truncated line")
	}
	out := make([]byte, 0, n+2)
	for i := 0; len(out) < n; i += 4 {
		c0, c1, c2, c3 := dec(body[i]), dec(body[i+1]), dec(body[i+2]), dec(body[i+3])
		out = append(out, c0<<2|c1>>4, c1<<4|c2>>2, c2<<6|c3)
	}
	return out[:n], nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"io"

	"github.com/cavaliergopher/rpm"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// filterPeekSize is the number of leading bytes offered to filter bidders.
const filterPeekSize = 64

// filterBidder recognizes and decodes one stream filter. bid returns the
// number of signature bits matched, 0 meaning no match.
type filterBidder struct {
	name string
	bid  func(peek []byte) int
	open func(r io.Reader) (io.ReadCloser, error)
}

// Magic byte sequences for filter detection
var (
	gzipMagic  = []byte{0x1f, 0x8b, 0x08}
	bzip2Magic = []byte("BZh")
	bzip2Block = []byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic   = []byte{0x04, 0x22, 0x4d, 0x18}
	rpmMagic   = []byte{0xed, 0xab, 0xee, 0xdb}
	lzipMagic  = []byte("LZIP")
)

func prefixBid(magic []byte) func([]byte) int {
	return func(peek []byte) int {
		if bytes.HasPrefix(peek, magic) {
			return len(magic) * 8
		}
		return 0
	}
}

var builtinFilters = map[string]func() *filterBidder{
	"gzip": func() *filterBidder {
		return &filterBidder{name: "gzip", bid: prefixBid(gzipMagic), open: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}}
	},
	"bzip2": func() *filterBidder {
		return &filterBidder{name: "bzip2", bid: bidBzip2, open: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(bzip2.NewReader(r)), nil
		}}
	},
	"xz": func() *filterBidder {
		return &filterBidder{name: "xz", bid: prefixBid(xzMagic), open: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		}}
	},
	"lzma": func() *filterBidder {
		return &filterBidder{name: "lzma", bid: bidLzma, open: func(r io.Reader) (io.ReadCloser, error) {
			lr, err := lzma.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(lr), nil
		}}
	},
	"lzip": func() *filterBidder {
		return &filterBidder{name: "lzip", bid: bidLzip, open: newLzipReader}
	},
	"zstd": func() *filterBidder {
		return &filterBidder{name: "zstd", bid: prefixBid(zstdMagic), open: func(r io.Reader) (io.ReadCloser, error) {
			// Concurrency 1 decodes synchronously on the calling goroutine.
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		}}
	},
	"lz4": func() *filterBidder {
		return &filterBidder{name: "lz4", bid: prefixBid(lz4Magic), open: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		}}
	},
	"rpm": func() *filterBidder {
		return &filterBidder{name: "rpm", bid: prefixBid(rpmMagic), open: func(r io.Reader) (io.ReadCloser, error) {
			// Read consumes the lead and headers, leaving r at the payload.
			if _, err := rpm.Read(r); err != nil {
				return nil, errors.Wrap(err, "reading rpm headers")
			}
			return io.NopCloser(r), nil
		}}
	},
	"uu": func() *filterBidder {
		return &filterBidder{name: "uu", bid: bidUu, open: newUuReader}
	},
}

// programFallbacks are filters without a native decoder; registering them
// installs an external program instead.
var programFallbacks = map[string]struct {
	cmd string
	sig []byte
}{
	"compress": {"gzip -dc", []byte{0x1f, 0x9d}},
	"lzop":     {"lzop -dc", []byte{0x89, 'L', 'Z', 'O', 0x00, 0x0d, 0x0a, 0x1a, 0x0a}},
	"grzip":    {"grzip -d", []byte("GRZipII\x00\x02\x04:)")},
	"lrzip":    {"lrzip -d -q", []byte("LRZI")},
}

// allFilters is the registration order used by SupportFilter("all").
var allFilters = []string{"bzip2", "compress", "gzip", "lzip", "lzma", "xz", "uu", "rpm", "lz4", "zstd", "lzop", "grzip", "lrzip"}

// SupportFilter registers a filter by name. "all" registers every filter;
// "none" is accepted and registers nothing. Filters without a native decoder
// fall back to an external program and return Warn.
func (a *Archive) SupportFilter(name string) Status {
	if !a.checkState("SupportFilter", stateNew) {
		return Fatal
	}
	switch name {
	case "all":
		for _, n := range allFilters {
			if st := a.SupportFilter(n); st < Warn {
				return st
			}
		}
		a.ClearError()
		return OK
	case "none":
		return OK
	}
	if mk, ok := builtinFilters[name]; ok {
		a.addFilter(mk())
		return OK
	}
	if p, ok := programFallbacks[name]; ok {
		a.addFilter(newProgramBidder(name, p.cmd, p.sig))
		a.SetError(ErrnoMisc, "Using external %s program for %s decompression", p.cmd, name)
		return Warn
	}
	a.SetError(ErrnoProgrammer, "Unknown filter %q", name)
	return Failed
}

// SupportFilterProgram registers an external decompression command. With a
// signature, the program bids only on streams starting with it; without one,
// it always decodes the outermost layer of the source.
func (a *Archive) SupportFilterProgram(cmd string, signature []byte) Status {
	if !a.checkState("SupportFilterProgram", stateNew) {
		return Fatal
	}
	if cmd == "" {
		a.SetError(ErrnoProgrammer, "Empty filter program")
		return Failed
	}
	a.addFilter(newProgramBidder("program", cmd, signature))
	return OK
}

func (a *Archive) addFilter(f *filterBidder) {
	for i, existing := range a.filters {
		if existing.name == f.name && existing.name != "program" {
			a.filters[i] = f
			return
		}
	}
	a.filters = append(a.filters, f)
}

func bidBzip2(peek []byte) int {
	if len(peek) < 10 || !bytes.HasPrefix(peek, bzip2Magic) {
		return 0
	}
	if peek[3] < '1' || peek[3] > '9' {
		return 0
	}
	if !bytes.Equal(peek[4:10], bzip2Block) && !bytes.Equal(peek[4:10], []byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}) {
		return 0
	}
	return 80
}

// bidLzma recognizes the classic .lzma header: a properties byte, a
// power-of-two dictionary size and an unknown or plausible size.
func bidLzma(peek []byte) int {
	if len(peek) < 13 || peek[0] != 0x5d {
		return 0
	}
	dict := binary.LittleEndian.Uint32(peek[1:5])
	if dict < 1<<12 || dict&(dict-1) != 0 {
		return 0
	}
	size := binary.LittleEndian.Uint64(peek[5:13])
	if size != ^uint64(0) && size > 1<<40 {
		return 0
	}
	return 40
}

func bidLzip(peek []byte) int {
	if len(peek) < 6 || !bytes.HasPrefix(peek, lzipMagic) || peek[4] != 1 {
		return 0
	}
	return 40
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package archive provides common types for archive reading and extraction.
package archive

// ReadFormat represents an archive container format the engine can detect.
type ReadFormat int

// ReadFormat constants name the container formats a reader may be configured with.
const (
	FormatAll ReadFormat = iota
	FormatSevenZip
	FormatAr
	FormatCab
	FormatCpio
	FormatEmpty
	FormatGnutar
	FormatIso9660
	FormatLha
	FormatMtree
	FormatRar
	FormatRaw
	FormatTar
	FormatXar
	FormatZip
)

var formatNames = map[ReadFormat]string{
	FormatAll:      "all",
	FormatSevenZip: "7zip",
	FormatAr:       "ar",
	FormatCab:      "cab",
	FormatCpio:     "cpio",
	FormatEmpty:    "empty",
	FormatGnutar:   "gnutar",
	FormatIso9660:  "iso9660",
	FormatLha:      "lha",
	FormatMtree:    "mtree",
	FormatRar:      "rar",
	FormatRaw:      "raw",
	FormatTar:      "tar",
	FormatXar:      "xar",
	FormatZip:      "zip",
}

// String returns the engine name of the format.
func (f ReadFormat) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ReadFilter represents a stream filter (usually a compression) applied
// before the container format is decoded.
type ReadFilter int

// ReadFilter constants name the filters a reader may be configured with.
// Program filters are configured separately since they carry a command.
const (
	FilterAll ReadFilter = iota
	FilterBzip2
	FilterCompress
	FilterGrzip
	FilterGzip
	FilterLrzip
	FilterLz4
	FilterLzip
	FilterLzma
	FilterLzop
	FilterNone
	FilterRpm
	FilterUu
	FilterXz
	FilterZstd
)

var filterNames = map[ReadFilter]string{
	FilterAll:      "all",
	FilterBzip2:    "bzip2",
	FilterCompress: "compress",
	FilterGrzip:    "grzip",
	FilterGzip:     "gzip",
	FilterLrzip:    "lrzip",
	FilterLz4:      "lz4",
	FilterLzip:     "lzip",
	FilterLzma:     "lzma",
	FilterLzop:     "lzop",
	FilterNone:     "none",
	FilterRpm:      "rpm",
	FilterUu:       "uu",
	FilterXz:       "xz",
	FilterZstd:     "zstd",
}

func (f ReadFilter) String() string {
	if s, ok := filterNames[f]; ok {
		return s
	}
	return "unknown"
}

// ReadCompression is the legacy name for a subset of the read filters.
type ReadCompression int

// ReadCompression constants.
const (
	CompressionAll ReadCompression = iota
	CompressionBzip2
	CompressionCompress
	CompressionGzip
	CompressionLzip
	CompressionLzma
	CompressionNone
	CompressionRpm
	CompressionUu
	CompressionXz
)

var compressionFilters = map[ReadCompression]ReadFilter{
	CompressionAll:      FilterAll,
	CompressionBzip2:    FilterBzip2,
	CompressionCompress: FilterCompress,
	CompressionGzip:     FilterGzip,
	CompressionLzip:     FilterLzip,
	CompressionLzma:     FilterLzma,
	CompressionNone:     FilterNone,
	CompressionRpm:      FilterRpm,
	CompressionUu:       FilterUu,
	CompressionXz:       FilterXz,
}

// Filter returns the read filter a compression is registered as.
func (c ReadCompression) Filter() (ReadFilter, bool) {
	f, ok := compressionFilters[c]
	return f, ok
}

func (c ReadCompression) String() string {
	if f, ok := c.Filter(); ok {
		return f.String()
	}
	return "unknown"
}

// ParseFormat returns the ReadFormat with the given engine name.
func ParseFormat(name string) (ReadFormat, bool) {
	for f, s := range formatNames {
		if s == name {
			return f, true
		}
	}
	return 0, false
}

// ParseFilter returns the ReadFilter with the given engine name.
func ParseFilter(name string) (ReadFilter, bool) {
	for f, s := range filterNames {
		if s == name {
			return f, true
		}
	}
	return 0, false
}

// Filetype classifies an archive member.
type Filetype int

// Filetype constants.
const (
	Unknown Filetype = iota
	RegularFile
	SymbolicLink
	Socket
	CharacterDevice
	BlockDevice
	Directory
	NamedPipe
)

func (ft Filetype) String() string {
	switch ft {
	case RegularFile:
		return "file"
	case SymbolicLink:
		return "symlink"
	case Socket:
		return "socket"
	case CharacterDevice:
		return "chardev"
	case BlockDevice:
		return "blockdev"
	case Directory:
		return "dir"
	case NamedPipe:
		return "fifo"
	default:
		return "unknown"
	}
}

// ExtractOption modifies how members are written to disk.
type ExtractOption int

// ExtractOption constants.
const (
	// ExtractTime restores member modification times.
	ExtractTime ExtractOption = 1 << iota
	// ExtractPerm restores member permission bits.
	ExtractPerm
	// ExtractNoOverwrite refuses to replace existing files.
	ExtractNoOverwrite
	// ExtractSecureNoDotDot skips members whose path escapes the root.
	ExtractSecureNoDotDot
	// ExtractSecureSymlinks skips symlinks whose target escapes the root.
	ExtractSecureSymlinks
	// ExtractNoAutodir disables creation of missing parent directories.
	ExtractNoAutodir
)

// ExtractOptions is a set of ExtractOption flags.
type ExtractOptions struct {
	flags ExtractOption
}

// NewExtractOptions returns an ExtractOptions with the given options set.
func NewExtractOptions(opts ...ExtractOption) ExtractOptions {
	var o ExtractOptions
	for _, opt := range opts {
		o.Add(opt)
	}
	return o
}

// Add sets an option.
func (o *ExtractOptions) Add(opt ExtractOption) {
	o.flags |= opt
}

// Has reports whether an option is set.
func (o ExtractOptions) Has(opt ExtractOption) bool {
	return o.flags&opt != 0
}

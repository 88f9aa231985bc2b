// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/arcread/arcread/pkg/archive/archivetest"
	"github.com/google/go-cmp/cmp"
)

// sliceSource serves b in chunks of at most n bytes.
type sliceSource struct {
	b []byte
	n int
}

func (s *sliceSource) read(a *Archive, _ any) ([]byte, int) {
	if len(s.b) == 0 {
		return nil, 0
	}
	n := min(s.n, len(s.b))
	chunk := s.b[:n]
	s.b = s.b[n:]
	return chunk, n
}

func openBytes(t *testing.T, b []byte, formats, filters []string) *Archive {
	t.Helper()
	a := NewRead()
	for _, f := range formats {
		if st := a.SupportFormat(f); st != OK {
			t.Fatalf("SupportFormat(%q) = %v: %s", f, st, a.ErrorString())
		}
	}
	for _, f := range filters {
		if st := a.SupportFilter(f); st < Warn {
			t.Fatalf("SupportFilter(%q) = %v: %s", f, st, a.ErrorString())
		}
	}
	src := &sliceSource{b: b, n: 100}
	if st := a.Open(nil, nil, src.read, nil); st != OK {
		t.Fatalf("Open() = %v: %s", st, a.ErrorString())
	}
	t.Cleanup(func() { a.Free() })
	return a
}

type testMember struct {
	Name string
	Type uint32
	Size int64
	Link string
	Body string
}

func readAll(t *testing.T, a *Archive) []testMember {
	t.Helper()
	var got []testMember
	for {
		e, st := a.NextHeader()
		if st == EOF {
			return got
		}
		if st != OK {
			t.Fatalf("NextHeader() = %v: %s", st, a.ErrorString())
		}
		name, _ := e.Pathname()
		m := testMember{Name: name, Type: e.Filetype(), Size: e.Size(), Link: e.Symlink()}
		var body bytes.Buffer
		for {
			b, _, st := a.ReadDataBlock()
			if st == EOF {
				break
			}
			if st != OK {
				t.Fatalf("ReadDataBlock() = %v: %s", st, a.ErrorString())
			}
			body.Write(b)
		}
		m.Body = body.String()
		got = append(got, m)
	}
}

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
}

// sevenZipCopy is a 7-Zip archive with an uncompressed member "large" and an
// empty member "empty".
const sevenZipCopy = "377abcaf271c0004303f84b2150000000000000038000000000000000f8231d7" +
	"487575757567652066696c6520636f6e74656e74730104060001091500070b01" +
	"000101000c15000005020e01400f01801119006c006100720067006500000065" +
	"006d0070007400790000000000"

var hello = []testMember{{Name: "hello.txt", Type: IFREG, Size: 14, Body: archivetest.HelloContent}}

func TestTarHeaderPosition(t *testing.T) {
	tgz := must[*bytes.Buffer](t)(archivetest.TgzFile(archivetest.Hello()))
	a := openBytes(t, tgz.Bytes(), []string{"all"}, []string{"all"})
	if got := a.HeaderPosition(); got != 0 {
		t.Errorf("HeaderPosition() after open = %d, want 0", got)
	}
	e, st := a.NextHeader()
	if st != OK {
		t.Fatalf("NextHeader() = %v: %s", st, a.ErrorString())
	}
	if name, ok := e.Pathname(); !ok || name != "hello.txt" {
		t.Errorf("Pathname() = %q, %v", name, ok)
	}
	if got := a.HeaderPosition(); got != 0 {
		t.Errorf("HeaderPosition() = %d, want 0", got)
	}
	if _, st := a.NextHeader(); st != EOF {
		t.Fatalf("NextHeader() = %v, want EOF", st)
	}
	if got := a.HeaderPosition(); got != 1024 {
		t.Errorf("HeaderPosition() at end = %d, want 1024", got)
	}
	if diff := cmp.Diff([]string{"gzip"}, a.FilterNames()); diff != "" {
		t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
	}
	if a.FormatName() != "tar" {
		t.Errorf("FormatName() = %q, want tar", a.FormatName())
	}
}

func TestNextHeaderAfterEOF(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	a := openBytes(t, tarball.Bytes(), []string{"tar"}, nil)
	readAll(t, a)
	if _, st := a.NextHeader(); st != Fatal {
		t.Fatalf("NextHeader() after EOF = %v, want fatal", st)
	}
	if !strings.Contains(a.ErrorString(), "invalid API usage") {
		t.Errorf("ErrorString() = %q", a.ErrorString())
	}
	if a.Errno() != ErrnoProgrammer {
		t.Errorf("Errno() = %d, want %d", a.Errno(), ErrnoProgrammer)
	}
}

func TestFilters(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	testCases := []struct {
		encoding string
		filter   string
	}{
		{"gzip", "gzip"},
		{"zstd", "zstd"},
		{"xz", "xz"},
		{"lzma", "lzma"},
		{"lzip", "lzip"},
		{"lz4", "lz4"},
		{"uu", "uu"},
		{"uu-base64", "uu"},
	}
	for _, tc := range testCases {
		t.Run(tc.encoding, func(t *testing.T) {
			compressed := must[*bytes.Buffer](t)(archivetest.Compress(tc.encoding, tarball.Bytes()))
			a := openBytes(t, compressed.Bytes(), []string{"all"}, []string{"all"})
			if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{tc.filter}, a.FilterNames()); diff != "" {
				t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStackedFilters(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	inner := must[*bytes.Buffer](t)(archivetest.Compress("zstd", tarball.Bytes()))
	outer := must[*bytes.Buffer](t)(archivetest.Compress("gzip", inner.Bytes()))
	a := openBytes(t, outer.Bytes(), []string{"tar"}, []string{"gzip", "zstd"})
	if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"gzip", "zstd"}, a.FilterNames()); diff != "" {
		t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormats(t *testing.T) {
	testCases := []struct {
		test   string
		format string
		input  func() (*bytes.Buffer, error)
		want   []testMember
	}{
		{
			test:   "tar",
			format: "tar",
			input: func() (*bytes.Buffer, error) {
				return archivetest.TarFile([]archivetest.TarEntry{
					{Header: &tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o755}},
					{Header: &tar.Header{Name: "dir/a", Typeflag: tar.TypeReg, Mode: 0o644}, Body: []byte("aaa")},
					{Header: &tar.Header{Name: "dir/l", Typeflag: tar.TypeSymlink, Linkname: "a"}},
				})
			},
			want: []testMember{
				{Name: "dir/", Type: IFDIR},
				{Name: "dir/a", Type: IFREG, Size: 3, Body: "aaa"},
				{Name: "dir/l", Type: IFLNK, Link: "a"},
			},
		},
		{
			test:   "zip",
			format: "zip",
			input: func() (*bytes.Buffer, error) {
				return archivetest.ZipFile([]archivetest.ZipEntry{
					{FileHeader: &zip.FileHeader{Name: "a.txt", Method: zip.Deflate}, Body: []byte("deflated")},
					{FileHeader: &zip.FileHeader{Name: "b.txt", Method: zip.Store}, Body: []byte("stored")},
				})
			},
			want: []testMember{
				{Name: "a.txt", Type: IFREG, Size: 8, Body: "deflated"},
				{Name: "b.txt", Type: IFREG, Size: 6, Body: "stored"},
			},
		},
		{
			test:   "cpio",
			format: "cpio",
			input: func() (*bytes.Buffer, error) {
				return archivetest.CpioFile([]archivetest.Entry{
					{Name: "d", Mode: IFDIR | 0o755},
					{Name: "d/f", Mode: IFREG | 0o644, Body: []byte("hello")},
					{Name: "d/l", Mode: IFLNK | 0o777, Body: []byte("f")},
				})
			},
			want: []testMember{
				{Name: "d", Type: IFDIR},
				{Name: "d/f", Type: IFREG, Size: 5, Body: "hello"},
				{Name: "d/l", Type: IFLNK, Link: "f"},
			},
		},
		{
			test:   "ar",
			format: "ar",
			input: func() (*bytes.Buffer, error) {
				return archivetest.ArFile([]archivetest.Entry{
					{Name: "odd.o", Mode: 0o644, Body: []byte("odd")},
					{Name: "even.o", Mode: 0o644, Body: []byte("even")},
				})
			},
			want: []testMember{
				{Name: "odd.o", Type: IFREG, Size: 3, Body: "odd"},
				{Name: "even.o", Type: IFREG, Size: 4, Body: "even"},
			},
		},
		{
			test:   "rar",
			format: "rar",
			input: func() (*bytes.Buffer, error) {
				return archivetest.RarFile([]archivetest.Entry{
					{Name: "dir", Mode: IFDIR | 0o755},
					{Name: "dir/hello.txt", Mode: IFREG | 0o644, Body: []byte(archivetest.HelloContent)},
				})
			},
			want: []testMember{
				{Name: "dir", Type: IFDIR},
				{Name: "dir/hello.txt", Type: IFREG, Size: 14, Body: archivetest.HelloContent},
			},
		},
		{
			test:   "iso9660",
			format: "iso9660",
			input: func() (*bytes.Buffer, error) {
				return archivetest.IsoFile([]archivetest.Entry{
					{Name: "dir/a.txt", Body: []byte("aaa")},
					{Name: "hello.txt", Body: []byte(archivetest.HelloContent)},
				})
			},
			want: []testMember{
				{Name: "dir", Type: IFDIR},
				{Name: "dir/a.txt", Type: IFREG, Size: 3, Body: "aaa"},
				{Name: "hello.txt", Type: IFREG, Size: 14, Body: archivetest.HelloContent},
			},
		},
		{
			test:   "7zip",
			format: "7zip",
			input: func() (*bytes.Buffer, error) {
				b, err := hex.DecodeString(sevenZipCopy)
				return bytes.NewBuffer(b), err
			},
			want: []testMember{
				{Name: "large", Type: IFREG, Size: 21, Body: "Huuuuge file contents"},
				{Name: "empty", Type: IFREG},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.test, func(t *testing.T) {
			input := must[*bytes.Buffer](t)(tc.input())
			a := openBytes(t, input.Bytes(), []string{"all"}, []string{"all"})
			if diff := cmp.Diff(tc.want, readAll(t, a)); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
			if a.FormatName() != tc.format {
				t.Errorf("FormatName() = %q, want %q", a.FormatName(), tc.format)
			}
		})
	}
}

func TestArHeaderPositions(t *testing.T) {
	input := must[*bytes.Buffer](t)(archivetest.ArFile([]archivetest.Entry{
		{Name: "odd.o", Mode: 0o644, Body: []byte("odd")},
		{Name: "even.o", Mode: 0o644, Body: []byte("even")},
	}))
	a := openBytes(t, input.Bytes(), []string{"ar"}, nil)
	var got []int64
	for {
		_, st := a.NextHeader()
		got = append(got, a.HeaderPosition())
		if st != OK {
			break
		}
	}
	// Global header, then 60-byte member headers with bodies padded to even.
	want := []int64{8, 8 + 60 + 4, 8 + 60 + 4 + 60 + 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestRawAndEmpty(t *testing.T) {
	t.Run("raw", func(t *testing.T) {
		gz := must[*bytes.Buffer](t)(archivetest.Compress("gzip", []byte("plain text")))
		a := openBytes(t, gz.Bytes(), []string{"raw"}, []string{"gzip"})
		e, st := a.NextHeader()
		if st != OK {
			t.Fatalf("NextHeader() = %v: %s", st, a.ErrorString())
		}
		if name, _ := e.Pathname(); name != "data" {
			t.Errorf("Pathname() = %q, want data", name)
		}
		if e.SizeIsSet() || e.Size() != -1 {
			t.Errorf("Size() = %d, %v; want unset", e.Size(), e.SizeIsSet())
		}
		buf := make([]byte, 64)
		n, st := a.ReadData(buf)
		if st != OK || string(buf[:n]) != "plain text" {
			t.Errorf("ReadData() = %q, %v", buf[:n], st)
		}
		if _, st := a.NextHeader(); st != EOF {
			t.Errorf("NextHeader() = %v, want EOF", st)
		}
	})
	t.Run("empty", func(t *testing.T) {
		a := openBytes(t, nil, []string{"all"}, []string{"all"})
		if _, st := a.NextHeader(); st != EOF {
			t.Errorf("NextHeader() = %v, want EOF: %s", st, a.ErrorString())
		}
		if a.FormatName() != "empty" {
			t.Errorf("FormatName() = %q, want empty", a.FormatName())
		}
	})
}

func TestSupportErrors(t *testing.T) {
	testCases := []struct {
		test   string
		call   func(a *Archive) Status
		want   Status
		errno  int
		substr string
	}{
		{"unbuilt format", func(a *Archive) Status { return a.SupportFormat("cab") }, Failed, ErrnoMisc, "not supported"},
		{"unknown format", func(a *Archive) Status { return a.SupportFormat("nope") }, Failed, ErrnoProgrammer, "Unknown format"},
		{"unknown filter", func(a *Archive) Status { return a.SupportFilter("nope") }, Failed, ErrnoProgrammer, "Unknown filter"},
		{"program fallback", func(a *Archive) Status { return a.SupportFilter("lzop") }, Warn, ErrnoMisc, "lzop -dc"},
		{"empty program", func(a *Archive) Status { return a.SupportFilterProgram("", nil) }, Failed, ErrnoProgrammer, "Empty"},
		{"all filters", func(a *Archive) Status { return a.SupportFilter("all") }, OK, 0, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.test, func(t *testing.T) {
			a := NewRead()
			defer a.Free()
			if got := tc.call(a); got != tc.want {
				t.Fatalf("status = %v, want %v", got, tc.want)
			}
			if a.Errno() != tc.errno {
				t.Errorf("Errno() = %d, want %d", a.Errno(), tc.errno)
			}
			if !strings.Contains(a.ErrorString(), tc.substr) {
				t.Errorf("ErrorString() = %q, want substring %q", a.ErrorString(), tc.substr)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("no formats", func(t *testing.T) {
		a := NewRead()
		defer a.Free()
		src := &sliceSource{b: []byte("x"), n: 1}
		if st := a.Open(nil, nil, src.read, nil); st != Fatal {
			t.Errorf("Open() = %v, want fatal", st)
		}
	})
	t.Run("missing file", func(t *testing.T) {
		a := NewRead()
		defer a.Free()
		a.SupportFormat("all")
		path := filepath.Join(t.TempDir(), "missing.tar")
		if st := a.OpenFilename(path, 10240); st != Failed {
			t.Fatalf("OpenFilename() = %v, want failed", st)
		}
		if a.Errno() != int(syscall.ENOENT) {
			t.Errorf("Errno() = %d, want ENOENT", a.Errno())
		}
	})
	t.Run("source failure", func(t *testing.T) {
		a := NewRead()
		defer a.Free()
		a.SupportFormat("all")
		read := func(a *Archive, _ any) ([]byte, int) {
			a.SetError(int(syscall.EIO), "source broke")
			return nil, -1
		}
		if st := a.Open(nil, nil, read, nil); st != Fatal {
			t.Fatalf("Open() = %v, want fatal", st)
		}
		if a.Errno() != int(syscall.EIO) || a.ErrorString() != "source broke" {
			t.Errorf("error = %d %q", a.Errno(), a.ErrorString())
		}
	})
	t.Run("unrecognized", func(t *testing.T) {
		a := openBytes(t, bytes.Repeat([]byte("junk"), 200), []string{"tar", "zip"}, []string{"all"})
		if _, st := a.NextHeader(); st != Fatal {
			t.Fatalf("NextHeader() = %v, want fatal", st)
		}
		if a.Errno() != ErrnoFileFormat {
			t.Errorf("Errno() = %d, want %d", a.Errno(), ErrnoFileFormat)
		}
	})
}

func TestOpenFilename(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	zipped := must[*bytes.Buffer](t)(archivetest.ZipFile([]archivetest.ZipEntry{
		{FileHeader: &zip.FileHeader{Name: "hello.txt", Method: zip.Deflate}, Body: []byte(archivetest.HelloContent)},
	}))
	for name, b := range map[string][]byte{"hello.tar": tarball.Bytes(), "hello.zip": zipped.Bytes()} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, b, 0o644); err != nil {
				t.Fatal(err)
			}
			a := NewRead()
			defer a.Free()
			a.SupportFormat("all")
			a.SupportFilter("all")
			if st := a.OpenFilename(path, 10240); st != OK {
				t.Fatalf("OpenFilename() = %v: %s", st, a.ErrorString())
			}
			if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFree(t *testing.T) {
	closed := 0
	a := NewRead()
	a.SupportFormat("tar")
	src := &sliceSource{b: must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello())).Bytes(), n: 512}
	closeCB := func(*Archive, any) Status { closed++; return OK }
	if st := a.Open(nil, nil, src.read, closeCB); st != OK {
		t.Fatalf("Open() = %v: %s", st, a.ErrorString())
	}
	if st := a.Free(); st != OK {
		t.Errorf("Free() = %v", st)
	}
	if closed != 1 {
		t.Errorf("close callback ran %d times, want 1", closed)
	}
	if st := a.Free(); st != Fatal {
		t.Errorf("second Free() = %v, want fatal", st)
	}
	if _, st := a.NextHeader(); st != Fatal || !strings.Contains(a.ErrorString(), "closed") {
		t.Errorf("NextHeader() after Free = %v %q", st, a.ErrorString())
	}
	if closed != 1 {
		t.Errorf("close callback ran %d times, want 1", closed)
	}
}

func TestReadDataBlockOffsets(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 3000)
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile([]archivetest.TarEntry{
		{Header: &tar.Header{Name: "big", Typeflag: tar.TypeReg, Mode: 0o644}, Body: body},
	}))
	a := openBytes(t, tarball.Bytes(), []string{"tar"}, nil)
	if _, st := a.NextHeader(); st != OK {
		t.Fatalf("NextHeader() = %v", st)
	}
	var got bytes.Buffer
	for {
		b, off, st := a.ReadDataBlock()
		if st == EOF {
			break
		}
		if st != OK {
			t.Fatalf("ReadDataBlock() = %v", st)
		}
		if off != int64(got.Len()) {
			t.Fatalf("offset = %d, want %d", off, got.Len())
		}
		if len(b) > defaultBlockSize {
			t.Fatalf("block of %d bytes exceeds %d", len(b), defaultBlockSize)
		}
		got.Write(b)
	}
	if !bytes.Equal(got.Bytes(), body) {
		t.Errorf("content mismatch: got %d bytes, want %d", got.Len(), len(body))
	}
}

// drain walks every remaining member and returns the first status that is
// neither OK nor a member's EOF.
func drain(a *Archive) Status {
	for {
		if _, st := a.NextHeader(); st != OK {
			return st
		}
		for {
			_, _, st := a.ReadDataBlock()
			if st == EOF {
				break
			}
			if st != OK {
				return st
			}
		}
	}
}

func TestLzip(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello())).Bytes()
	half := len(tarball) / 2
	first := must[*bytes.Buffer](t)(archivetest.LzipMember(tarball[:half])).Bytes()
	second := must[*bytes.Buffer](t)(archivetest.LzipMember(tarball[half:])).Bytes()
	t.Run("members", func(t *testing.T) {
		a := openBytes(t, append(append([]byte(nil), first...), second...), []string{"all"}, []string{"lzip"})
		if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
			t.Errorf("members mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"lzip"}, a.FilterNames()); diff != "" {
			t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
		}
	})
	whole := must[*bytes.Buffer](t)(archivetest.LzipMember(tarball)).Bytes()
	testCases := []struct {
		test   string
		offset int // within the 20-byte trailer
		substr string
	}{
		{"crc", 0, "CRC mismatch"},
		{"size", 4, "data size mismatch"},
	}
	for _, tc := range testCases {
		t.Run(tc.test, func(t *testing.T) {
			corrupt := append([]byte(nil), whole...)
			corrupt[len(corrupt)-20+tc.offset] ^= 0xff
			a := NewRead()
			defer a.Free()
			a.SupportFormat("all")
			a.SupportFilter("lzip")
			src := &sliceSource{b: corrupt, n: 100}
			st := a.Open(nil, nil, src.read, nil)
			if st == OK {
				st = drain(a)
			}
			if st != Fatal {
				t.Fatalf("status = %v, want fatal", st)
			}
			if !strings.Contains(a.ErrorString(), tc.substr) || a.Errno() != ErrnoFileFormat {
				t.Errorf("error = %d %q, want %q", a.Errno(), a.ErrorString(), tc.substr)
			}
		})
	}
}

func TestRpmFilter(t *testing.T) {
	payload := must[*bytes.Buffer](t)(archivetest.CpioFile([]archivetest.Entry{
		{Name: "d/f", Mode: IFREG | 0o644, Body: []byte("hello")},
	}))
	gz := must[*bytes.Buffer](t)(archivetest.Compress("gzip", payload.Bytes()))
	a := openBytes(t, archivetest.RpmFile(gz.Bytes()).Bytes(), []string{"all"}, []string{"all"})
	want := []testMember{{Name: "d/f", Type: IFREG, Size: 5, Body: "hello"}}
	if diff := cmp.Diff(want, readAll(t, a)); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rpm", "gzip"}, a.FilterNames()); diff != "" {
		t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
	}
	if a.FormatName() != "cpio" {
		t.Errorf("FormatName() = %q, want cpio", a.FormatName())
	}
}

// runTool pipes in through an external command, skipping when it is absent.
func runTool(t *testing.T, in []byte, name string, args ...string) []byte {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not installed", name)
	}
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(in)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out
}

func TestBzip2Filter(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	compressed := runTool(t, tarball.Bytes(), "bzip2", "-c")
	a := openBytes(t, compressed, []string{"all"}, []string{"all"})
	if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bzip2"}, a.FilterNames()); diff != "" {
		t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
	}
}

func requireShell(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range append([]string{"sh"}, tools...) {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not installed", tool)
		}
	}
}

func openProgram(t *testing.T, read ReadCallback, cmd string, signature []byte) *Archive {
	t.Helper()
	a := NewRead()
	t.Cleanup(func() { a.Free() })
	a.SupportFormat("all")
	if st := a.SupportFilterProgram(cmd, signature); st != OK {
		t.Fatalf("SupportFilterProgram() = %v: %s", st, a.ErrorString())
	}
	if st := a.Open(nil, nil, read, nil); st != OK {
		t.Fatalf("Open() = %v: %s", st, a.ErrorString())
	}
	return a
}

func TestProgramFilter(t *testing.T) {
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile(archivetest.Hello()))
	tgz := must[*bytes.Buffer](t)(archivetest.TgzFile(archivetest.Hello()))
	testCases := []struct {
		test      string
		tool      string
		cmd       string
		signature []byte
		input     []byte
	}{
		{"signature", "gzip", "gzip -dc", gzipMagic, tgz.Bytes()},
		{"first layer", "cat", "cat", nil, tarball.Bytes()},
	}
	for _, tc := range testCases {
		t.Run(tc.test, func(t *testing.T) {
			requireShell(t, tc.tool)
			src := &sliceSource{b: tc.input, n: 100}
			a := openProgram(t, src.read, tc.cmd, tc.signature)
			if diff := cmp.Diff(hello, readAll(t, a)); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"program"}, a.FilterNames()); diff != "" {
				t.Errorf("FilterNames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
	t.Run("program fails", func(t *testing.T) {
		requireShell(t)
		src := &sliceSource{b: tarball.Bytes(), n: 100}
		a := NewRead()
		defer a.Free()
		a.SupportFormat("all")
		a.SupportFilterProgram("echo oops >&2; exit 3", nil)
		st := a.Open(nil, nil, src.read, nil)
		if st == OK {
			st = drain(a)
		}
		if st != Fatal {
			t.Fatalf("status = %v, want fatal", st)
		}
		if !strings.Contains(a.ErrorString(), "oops") {
			t.Errorf("ErrorString() = %q, want the program's stderr", a.ErrorString())
		}
	})
}

// countingSource serves b in n-byte chunks, counts callback invocations and
// fails with EIO once failAfter chunks were served, if failAfter > 0.
type countingSource struct {
	sliceSource
	calls     int
	failAfter int
}

func (c *countingSource) read(a *Archive, data any) ([]byte, int) {
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		a.SetError(int(syscall.EIO), "source broke")
		return nil, -1
	}
	return c.sliceSource.read(a, data)
}

func bigTar(t *testing.T, size int) ([]byte, []byte) {
	t.Helper()
	body := bytes.Repeat([]byte("0123456789abcdef"), size/16)
	tarball := must[*bytes.Buffer](t)(archivetest.TarFile([]archivetest.TarEntry{
		{Header: &tar.Header{Name: "big", Typeflag: tar.TypeReg, Mode: 0o644}, Body: body},
	}))
	return tarball.Bytes(), body
}

func TestProgramFilterReadsOnDemand(t *testing.T) {
	requireShell(t, "cat")
	tarball, body := bigTar(t, 1<<20)
	src := &countingSource{sliceSource: sliceSource{b: tarball, n: 32 << 10}}
	a := openProgram(t, src.read, "cat", nil)
	calls := src.calls
	time.Sleep(100 * time.Millisecond)
	if src.calls != calls {
		t.Fatalf("source read %d times while no call was in progress", src.calls-calls)
	}
	if len(src.b) == 0 {
		t.Fatal("source fully consumed by Open")
	}
	got := readAll(t, a)
	if len(got) != 1 || got[0].Body != string(body) {
		t.Fatalf("got %d members, want big with its %d byte body", len(got), len(body))
	}
	if st := a.Free(); st != OK {
		t.Errorf("Free() = %v", st)
	}
	calls = src.calls
	time.Sleep(50 * time.Millisecond)
	if src.calls != calls {
		t.Errorf("source read after Free")
	}
}

func TestProgramFilterSourceFailure(t *testing.T) {
	requireShell(t, "cat")
	tarball, _ := bigTar(t, 1<<20)
	src := &countingSource{sliceSource: sliceSource{b: tarball, n: 8 << 10}, failAfter: 40}
	a := openProgram(t, src.read, "cat", nil)
	if st := drain(a); st != Fatal {
		t.Fatalf("status = %v, want fatal", st)
	}
	if a.Errno() != int(syscall.EIO) || a.ErrorString() != "source broke" {
		t.Errorf("error = %d %q, want EIO %q", a.Errno(), a.ErrorString(), "source broke")
	}
	calls := src.calls
	if st := a.Free(); st != OK {
		t.Errorf("Free() = %v", st)
	}
	if src.calls != calls {
		t.Errorf("source read during Free")
	}
}

func TestBufferedLimit(t *testing.T) {
	zipped := must[*bytes.Buffer](t)(archivetest.ZipFile([]archivetest.ZipEntry{
		{FileHeader: &zip.FileHeader{Name: "a.txt", Method: zip.Store}, Body: bytes.Repeat([]byte("a"), 4096)},
	}))
	old := maxBuffered
	maxBuffered = 1024
	t.Cleanup(func() { maxBuffered = old })
	a := openBytes(t, zipped.Bytes(), []string{"zip"}, nil)
	if _, st := a.NextHeader(); st != Fatal {
		t.Fatalf("NextHeader() = %v, want fatal", st)
	}
	if !strings.Contains(a.ErrorString(), "1024 byte limit") {
		t.Errorf("ErrorString() = %q", a.ErrorString())
	}
}

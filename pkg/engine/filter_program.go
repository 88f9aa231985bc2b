// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"io"
	"math"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	// programPoll bounds each wait on the program's stdout or stdin before
	// control goes back to the other direction.
	programPoll = 10 * time.Millisecond
	// programChunk is the most source data pulled per feeding step.
	programChunk = 32 << 10
)

func newProgramBidder(name, cmd string, signature []byte) *filterBidder {
	sig := append([]byte(nil), signature...)
	used := false
	return &filterBidder{
		name: name,
		bid: func(peek []byte) int {
			if len(sig) == 0 {
				// Without a signature the program claims the first layer only.
				if used || len(peek) == 0 {
					return 0
				}
				return math.MaxInt32
			}
			if bytes.HasPrefix(peek, sig) {
				return len(sig) * 8
			}
			return 0
		},
		open: func(r io.Reader) (io.ReadCloser, error) {
			used = true
			return startProgram(cmd, r)
		},
	}
}

// programReader streams the stdout of a decompression command. The command's
// stdin is fed from src inside Read, on the caller's goroutine: every Read
// alternates between draining stdout and writing one pending chunk of src to
// stdin, each bounded by programPoll. The source is never read outside Read.
type programReader struct {
	cmd     *exec.Cmd
	command string
	src     io.Reader
	in      *os.File
	out     *os.File
	stderr  bytes.Buffer

	buf     []byte
	pending []byte
	srcEOF  bool
	waited  bool
	err     error
}

func startProgram(command string, r io.Reader) (*programReader, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "creating stdin pipe")
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, errors.Wrap(err, "creating stdout pipe")
	}
	p := &programReader{
		cmd:     exec.Command("/bin/sh", "-c", command),
		command: command,
		src:     r,
		in:      inW,
		out:     outR,
		buf:     make([]byte, programChunk),
	}
	p.cmd.Stdin = inR
	p.cmd.Stdout = outW
	p.cmd.Stderr = &p.stderr
	err = p.cmd.Start()
	// The child holds its own copies of these ends.
	inR.Close()
	outW.Close()
	if err == nil {
		err = p.out.SetReadDeadline(time.Time{})
	}
	if err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "starting %q", command)
	}
	return p, nil
}

func (p *programReader) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if len(b) == 0 {
		return 0, nil
	}
	for {
		deadline := time.Time{}
		if p.in != nil {
			deadline = time.Now().Add(programPoll)
		}
		if err := p.out.SetReadDeadline(deadline); err != nil {
			p.err = err
			return 0, err
		}
		n, err := p.out.Read(b)
		if n > 0 {
			return n, nil
		}
		switch {
		case err == io.EOF:
			p.err = io.EOF
			if werr := p.wait(); werr != nil {
				p.err = werr
			}
			return 0, p.err
		case errors.Is(err, os.ErrDeadlineExceeded):
		case err != nil:
			p.err = err
			return 0, err
		}
		if err := p.feed(); err != nil {
			p.err = err
			return 0, err
		}
	}
}

// feed pulls at most one chunk from the source and writes as much of it to
// the program's stdin as fits within programPoll.
func (p *programReader) feed() error {
	if p.in == nil {
		return nil
	}
	if len(p.pending) == 0 {
		if p.srcEOF {
			return p.closeStdin()
		}
		n, err := p.src.Read(p.buf)
		p.pending = p.buf[:n]
		if err == io.EOF {
			p.srcEOF = true
		} else if err != nil {
			return err
		}
		if len(p.pending) == 0 {
			if p.srcEOF {
				return p.closeStdin()
			}
			return nil
		}
	}
	if err := p.in.SetWriteDeadline(time.Now().Add(programPoll)); err != nil {
		return err
	}
	n, err := p.in.Write(p.pending)
	p.pending = p.pending[n:]
	switch {
	case err == nil, errors.Is(err, os.ErrDeadlineExceeded):
	case errors.Is(err, syscall.EPIPE):
		// The program stopped reading input; its exit status decides.
		p.pending = nil
		p.srcEOF = true
		return p.closeStdin()
	default:
		return err
	}
	if len(p.pending) == 0 && p.srcEOF {
		return p.closeStdin()
	}
	return nil
}

func (p *programReader) closeStdin() error {
	if p.in == nil {
		return nil
	}
	err := p.in.Close()
	p.in = nil
	return err
}

func (p *programReader) wait() error {
	p.closeStdin()
	p.waited = true
	if err := p.cmd.Wait(); err != nil {
		if p.stderr.Len() > 0 {
			return errors.Errorf("%s: %v: %s", p.command, err, bytes.TrimSpace(p.stderr.Bytes()))
		}
		return errors.Wrapf(err, "%s", p.command)
	}
	return nil
}

// Close stops the program if it has not finished on its own and reaps it.
func (p *programReader) Close() error {
	p.closeStdin()
	p.out.Close()
	if p.waited {
		return nil
	}
	p.waited = true
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	return nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Profile is a serializable reader configuration.
//
// Example:
//
//	formats: [tar, zip]
//	filters: [gzip, xz]
//	programs:
//	  - command: "zstd -dc"
//	    signature: "28b52ffd"
type Profile struct {
	Formats  []string        `yaml:"formats"`
	Filters  []string        `yaml:"filters"`
	Programs []ProgramFilter `yaml:"programs,omitempty"`
}

// ProgramFilter is an external decompression command.
type ProgramFilter struct {
	Command string `yaml:"command"`
	// Signature is the hex-encoded magic the stream must start with.
	Signature string `yaml:"signature,omitempty"`
}

// SignatureBytes decodes the hex signature.
func (p ProgramFilter) SignatureBytes() ([]byte, error) {
	return hex.DecodeString(p.Signature)
}

// DefaultProfile enables every built-in format and filter.
func DefaultProfile() *Profile {
	return &Profile{Formats: []string{FormatAll.String()}, Filters: []string{FilterAll.String()}}
}

// ReadFormats resolves the configured format names.
func (p *Profile) ReadFormats() ([]ReadFormat, error) {
	var out []ReadFormat
	for _, name := range p.Formats {
		f, ok := ParseFormat(name)
		if !ok {
			return nil, errors.Errorf("unknown format %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// ReadFilters resolves the configured filter names.
func (p *Profile) ReadFilters() ([]ReadFilter, error) {
	var out []ReadFilter
	for _, name := range p.Filters {
		f, ok := ParseFilter(name)
		if !ok {
			return nil, errors.Errorf("unknown filter %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// Validate checks that every name resolves and every program is well formed.
func (p *Profile) Validate() error {
	if len(p.Formats) == 0 {
		return errors.New("at least one format is required")
	}
	if _, err := p.ReadFormats(); err != nil {
		return err
	}
	if _, err := p.ReadFilters(); err != nil {
		return err
	}
	for i, prog := range p.Programs {
		if prog.Command == "" {
			return errors.Errorf("programs[%d]: command is required", i)
		}
		if _, err := prog.SignatureBytes(); err != nil {
			return errors.Wrapf(err, "programs[%d]: decoding signature", i)
		}
	}
	return nil
}

// LoadProfile decodes and validates a YAML profile.
func LoadProfile(r io.Reader) (*Profile, error) {
	var p Profile
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decoding profile")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating profile")
	}
	return &p, nil
}

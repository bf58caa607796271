// HiCLift: a high-performance tool for converting chromatin contact data
// between genome assemblies and between contact-data formats.
// Copyright (c) 2024-2026 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/vhfsantos/HiCLift/blob/master/LICENSE.txt>.

package pairs

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/vhfsantos/HiCLift/genome"
)

type (
	// InputFile represents a pairs or allValidPairs file for input,
	// plain or gzip-compressed.
	InputFile struct {
		rc  io.ReadCloser
		gz  *gzip.Reader
		buf *bufio.Reader
	}

	// OutputFile represents a pairs file for output, plain or
	// gzip-compressed.
	OutputFile struct {
		wc  io.WriteCloser
		gz  *gzip.Writer
		buf *bufio.Writer
	}
)

// Open a pairs file for input. Files with a .gz extension are
// decompressed transparently. If the name is "/dev/stdin", then the
// input is read from os.Stdin.
func Open(name string) (*InputFile, error) {
	var rc io.ReadCloser
	if name == "/dev/stdin" {
		rc = os.Stdin
	} else {
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		rc = file
	}
	if filepath.Ext(name) == ".gz" {
		gz, err := gzip.NewReader(bufio.NewReader(rc))
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &InputFile{rc: rc, gz: gz, buf: bufio.NewReader(gz)}, nil
	}
	return &InputFile{rc: rc, buf: bufio.NewReader(rc)}, nil
}

// Reader returns the buffered reader positioned at the current offset
// of the input file. After ParseHeader or SkipHeader it is positioned
// at the first record line, ready to be wrapped by a pipeline scanner.
func (f *InputFile) Reader() *bufio.Reader {
	return f.buf
}

// Close closes the pairs input file.
func (f *InputFile) Close() error {
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			return err
		}
	}
	if f.rc != os.Stdin {
		return f.rc.Close()
	}
	return nil
}

// ParseHeader parses the header section of a pairs file: all leading
// lines that start with #. HiC-Pro allValidPairs files have no header,
// which parses as an empty one.
func (f *InputFile) ParseHeader() (*Header, error) {
	hdr := NewHeader()
	for {
		data, err := f.buf.Peek(1)
		if err == io.EOF {
			return hdr, nil
		}
		if err != nil {
			return nil, err
		}
		if data[0] != '#' {
			return hdr, nil
		}
		line, err := f.buf.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		parseHeaderLine(hdr, strings.TrimRight(line, "\n"))
	}
}

// SkipHeader skips the header section of a pairs file.
func (f *InputFile) SkipHeader() error {
	for {
		data, err := f.buf.Peek(1)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if data[0] != '#' {
			return nil
		}
		if _, err := f.buf.ReadString('\n'); err != nil && err != io.EOF {
			return err
		}
	}
}

func parseHeaderLine(hdr *Header, line string) {
	if strings.HasPrefix(line, "##") {
		// version line, rewritten on output
		return
	}
	key, value, found := strings.Cut(strings.TrimPrefix(line, "#"), ":")
	if !found {
		hdr.Misc = append(hdr.Misc, line)
		return
	}
	value = strings.TrimSpace(value)
	switch key {
	case "chromsize":
		fields := strings.Fields(value)
		if len(fields) == 2 {
			if size, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				hdr.ChromSizes = append(hdr.ChromSizes, genome.Chromosome{Name: fields[0], Size: size})
				return
			}
		}
		hdr.Misc = append(hdr.Misc, line)
	case "columns":
		hdr.Columns = strings.Fields(value)
	default:
		if !hdr.Fields.SetUniqueEntry(key, value) {
			hdr.Misc = append(hdr.Misc, line)
		}
	}
}

// Create a pairs file for output. Files with a .gz extension are
// compressed transparently. If the name is "/dev/stdout", then the
// output is written to os.Stdout.
func Create(name string) (*OutputFile, error) {
	var wc io.WriteCloser
	if name == "/dev/stdout" {
		wc = os.Stdout
	} else {
		file, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		wc = file
	}
	if filepath.Ext(name) == ".gz" {
		gz := gzip.NewWriter(wc)
		return &OutputFile{wc: wc, gz: gz, buf: bufio.NewWriter(gz)}, nil
	}
	return &OutputFile{wc: wc, buf: bufio.NewWriter(wc)}, nil
}

// FormatHeader writes the header section: the version line, the
// single-valued fields, the chromosome sizes, preserved miscellaneous
// lines, and the columns line last.
func (f *OutputFile) FormatHeader(hdr *Header) error {
	var buf []byte
	buf = append(buf, FormatVersionLine...)
	buf = append(buf, '\n')
	for _, key := range []string{"sorted", "shape", "genome_assembly"} {
		if value, found := hdr.Fields[key]; found {
			buf = append(buf, '#')
			buf = append(buf, key...)
			buf = append(buf, ": "...)
			buf = append(buf, value...)
			buf = append(buf, '\n')
		}
	}
	var rest []string
	for key := range hdr.Fields {
		switch key {
		case "sorted", "shape", "genome_assembly":
		default:
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		buf = append(buf, '#')
		buf = append(buf, key...)
		buf = append(buf, ": "...)
		buf = append(buf, hdr.Fields[key]...)
		buf = append(buf, '\n')
	}
	for _, chrom := range hdr.ChromSizes {
		buf = append(buf, "#chromsize: "...)
		buf = append(buf, chrom.Name...)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, chrom.Size, 10)
		buf = append(buf, '\n')
	}
	for _, line := range hdr.Misc {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if len(hdr.Columns) > 0 {
		buf = append(buf, "#columns: "...)
		buf = append(buf, strings.Join(hdr.Columns, " ")...)
		buf = append(buf, '\n')
	}
	_, err := f.buf.Write(buf)
	return err
}

// FormatRecord formats a record into a block of bytes, appending to
// out: the seven standard columns, the fragment columns when present,
// and the auxiliary columns verbatim.
func FormatRecord(r *Record, out []byte) []byte {
	out = append(out, r.ID...)
	out = append(out, '\t')
	out = append(out, r.Chrom1...)
	out = append(out, '\t')
	out = strconv.AppendInt(out, r.Pos1, 10)
	out = append(out, '\t')
	out = append(out, r.Chrom2...)
	out = append(out, '\t')
	out = strconv.AppendInt(out, r.Pos2, 10)
	out = append(out, '\t', r.Strand1, '\t', r.Strand2)
	if r.Frag1 != "" || r.Frag2 != "" {
		out = append(out, '\t')
		out = append(out, r.Frag1...)
		out = append(out, '\t')
		out = append(out, r.Frag2...)
	}
	for _, aux := range r.Aux {
		out = append(out, '\t')
		out = append(out, aux...)
	}
	return append(out, '\n')
}

// Write can be used to write the blocks of bytes from FormatRecord to
// the underlying pairs file.
func (f *OutputFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

// Close flushes and closes a pairs output file. Write errors that were
// deferred by the buffered writer surface here.
func (f *OutputFile) Close() error {
	if err := f.buf.Flush(); err != nil {
		return err
	}
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			return err
		}
	}
	if f.wc != os.Stdout {
		return f.wc.Close()
	}
	return nil
}

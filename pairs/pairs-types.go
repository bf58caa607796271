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

// Package pairs implements the canonical contact-pair record shape and
// the text-based contact-pair file formats (4DN pairs and HiC-Pro
// allValidPairs).
package pairs

import (
	"fmt"

	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/utils"
)

// A RecordError reports a single input line that cannot be parsed as a
// contact-pair record. It is recovered per record: the orchestrator
// counts it and skips the record, and only aborts the run when the
// malformed fraction exceeds the configured tolerance.
type RecordError struct {
	Format string
	Line   string
	Msg    string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed %v record %q: %v", e.Format, e.Line, e.Msg)
}

// A Record is one contact pair in canonical shape: two point endpoints
// with 1-based positions and strands, optional endpoint-scoped
// restriction-fragment fields from HiC-Pro input, a count weight, and
// shared auxiliary fields that are preserved verbatim across liftover.
//
// Readers never reorder the two endpoints; intra-pair ordering is
// assigned downstream against the target assembly's chromosome order.
type Record struct {
	ID      string
	Chrom1  string
	Pos1    int64
	Strand1 byte
	Chrom2  string
	Pos2    int64
	Strand2 byte
	// Frag1 and Frag2 are endpoint-scoped and swap together with the
	// endpoints; both empty when the input format has no fragment
	// columns.
	Frag1, Frag2 string
	// Count is the pair weight: 1 for read-level formats, the pixel
	// count for binned container input.
	Count float64
	// Aux holds the remaining input columns, shared between the two
	// endpoints and never swapped.
	Aux []string
}

// Flip swaps the two endpoints, including strands and the
// endpoint-scoped fragment fields, leaving shared fields untouched.
func (r *Record) Flip() {
	r.Chrom1, r.Chrom2 = r.Chrom2, r.Chrom1
	r.Pos1, r.Pos2 = r.Pos2, r.Pos1
	r.Strand1, r.Strand2 = r.Strand2, r.Strand1
	r.Frag1, r.Frag2 = r.Frag2, r.Frag1
}

// The version line that every pairs file starts with. See
// https://github.com/4dn-dcic/pairix/blob/master/pairs_format_specification.md
const FormatVersionLine = "## pairs format v1.0"

// A Header holds the parsed header section of a pairs file. Fields
// collects the single-valued "#key: value" lines; Misc preserves all
// other header lines verbatim so that unknown annotations survive a
// pairs-to-pairs conversion.
type Header struct {
	Fields     utils.StringMap
	ChromSizes []genome.Chromosome
	Columns    []string
	Misc       []string
}

// NewHeader allocates an empty pairs file header.
func NewHeader() *Header {
	return &Header{Fields: make(utils.StringMap)}
}

// DefaultColumns is the column layout this tool writes.
var DefaultColumns = []string{"readID", "chrom1", "pos1", "chrom2", "pos2", "strand1", "strand2"}

// ParseRecord parses one line of the alignment section of a pairs
// file: readID chrom1 pos1 chrom2 pos2 strand1 strand2, plus any
// number of trailing auxiliary columns.
func ParseRecord(line string) (*Record, error) {
	var sc StringScanner
	sc.Reset(line)
	r := &Record{Count: 1}
	r.ID = sc.ParseString()
	r.Chrom1 = sc.ParseString()
	r.Pos1 = sc.ParseInt()
	r.Chrom2 = sc.ParseString()
	r.Pos2 = sc.ParseInt()
	r.Strand1 = sc.ParseStrand()
	r.Strand2 = sc.ParseStrand()
	r.Aux = sc.ParseRest()
	if err := sc.Err(); err != nil {
		return nil, &RecordError{Format: "pairs", Line: line, Msg: err.Error()}
	}
	if r.Pos1 <= 0 || r.Pos2 <= 0 {
		return nil, &RecordError{Format: "pairs", Line: line, Msg: "positions must be positive"}
	}
	return r, nil
}

// ParseHiCProRecord parses one line of a HiC-Pro allValidPairs file:
// readID chr1 pos1 strand1 chr2 pos2 strand2 [size frag1 frag2 ...].
// Note the column order differs from the pairs format: strand1 comes
// right after pos1.
func ParseHiCProRecord(line string) (*Record, error) {
	var sc StringScanner
	sc.Reset(line)
	r := &Record{Count: 1}
	r.ID = sc.ParseString()
	r.Chrom1 = sc.ParseString()
	r.Pos1 = sc.ParseInt()
	r.Strand1 = sc.ParseStrand()
	r.Chrom2 = sc.ParseString()
	r.Pos2 = sc.ParseInt()
	r.Strand2 = sc.ParseStrand()
	if err := sc.Err(); err != nil {
		return nil, &RecordError{Format: "hic-pro", Line: line, Msg: err.Error()}
	}
	if rest := sc.ParseRest(); len(rest) > 0 {
		r.Aux = rest[:1]
		if len(rest) >= 3 {
			r.Frag1 = rest[1]
			r.Frag2 = rest[2]
			r.Aux = append(r.Aux, rest[3:]...)
		} else {
			r.Aux = append(r.Aux, rest[1:]...)
		}
	}
	if r.Pos1 <= 0 || r.Pos2 <= 0 {
		return nil, &RecordError{Format: "hic-pro", Line: line, Msg: "positions must be positive"}
	}
	return r, nil
}

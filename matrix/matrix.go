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

// Package matrix defines the collaborator contracts for the binary
// matrix container formats (cooler and juicer/hic). The container
// layouts themselves are out of scope: decoding and encoding are
// delegated to the reference tools through these interfaces, the same
// way BAM and CRAM access is commonly delegated to samtools.
package matrix

import (
	"strconv"

	"github.com/vhfsantos/HiCLift/pairs"
)

// A Row is one decoded bin pair of a binned contact matrix, with bin
// start coordinates in both dimensions and the pair count.
type Row struct {
	Chrom1 string
	Start1 int64
	Chrom2 string
	Start2 int64
	Count  float64
}

// A Decoder streams the base-resolution bin pairs of a matrix
// container. Implementations call emit for every row; a non-nil error
// from emit aborts the decode and is returned unchanged.
type Decoder interface {
	Rows(emit func(Row) error) error
}

// An EncodeJob points an encoder at the staging files materialized by
// the resolution binner: one bins table and one sorted pixels table
// per requested resolution, laid out as described in staging.go.
type EncodeJob struct {
	StagingDir     string
	ChromSizesPath string
	Resolutions    []int64
	OutPath        string
}

// An Encoder materializes a matrix container from binned staging
// files. Encoder failures are fatal to the run and surface the
// originating error.
type Encoder interface {
	Encode(job EncodeJob) error
}

// RecordFromRow projects a decoded bin pair onto the canonical record
// shape, placing both endpoints at their bin midpoints with the pixel
// count as the record weight. Strands are unknown for binned input.
func RecordFromRow(row Row, resolution int64) *pairs.Record {
	return &pairs.Record{
		ID:      ".",
		Chrom1:  row.Chrom1,
		Pos1:    row.Start1 + resolution/2 + 1,
		Strand1: '.',
		Chrom2:  row.Chrom2,
		Pos2:    row.Start2 + resolution/2 + 1,
		Strand2: '.',
		Count:   row.Count,
	}
}

// FormatCount renders a pixel count the way the staging and dump
// formats expect: integral counts without a decimal point.
func FormatCount(count float64) string {
	if count == float64(int64(count)) {
		return strconv.FormatInt(int64(count), 10)
	}
	return strconv.FormatFloat(count, 'g', -1, 64)
}

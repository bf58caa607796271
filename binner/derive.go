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

package binner

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/vhfsantos/HiCLift/matrix"
)

// binLookup maps every global bin id at a finer resolution to its
// global bin id at a coarser resolution. The coarser resolution must
// be a multiple of the finer one.
func (b *Binner) binLookup(fine, coarse int64) []int64 {
	fineOffsets := matrix.BinOffsets(b.assembly, fine)
	coarseOffsets := matrix.BinOffsets(b.assembly, coarse)
	ratio := coarse / fine
	last := b.assembly.Chromosomes[b.nchrom-1]
	totalBins := fineOffsets[b.nchrom-1] + matrix.NumBins(last.Size, fine)
	lookup := make([]int64, totalBins)
	for i, chrom := range b.assembly.Chromosomes {
		nbins := matrix.NumBins(chrom.Size, fine)
		for local := int64(0); local < nbins; local++ {
			lookup[fineOffsets[i]+local] = coarseOffsets[i] + local/ratio
		}
	}
	return lookup
}

// derive builds the pixels table at a coarser resolution from the one
// at a finer resolution that divides it. The finer table must be
// strictly sorted by (bin1, bin2), so all fine rows feeding one coarse
// row are adjacent and a single coarse row of accumulators suffices;
// derive fails rather than emit corrupt output when the precondition
// does not hold.
func (b *Binner) derive(fine, coarse int64) (err error) {
	lookup := b.binLookup(fine, coarse)
	file, err := os.Create(matrix.PixelsFile(b.stagingDir, coarse))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	row := make(map[int64]float64)
	currentBin1 := int64(-1)
	var buf []byte
	flushRow := func() error {
		if len(row) == 0 {
			return nil
		}
		bins := make([]int64, 0, len(row))
		for bin2 := range row {
			bins = append(bins, bin2)
		}
		sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })
		for _, bin2 := range bins {
			buf = matrix.AppendPixelLine(buf[:0], currentBin1, bin2, row[bin2])
			if _, err := out.Write(buf); err != nil {
				return err
			}
			delete(row, bin2)
		}
		return nil
	}
	prev1, prev2 := int64(-1), int64(-1)
	err = matrix.EachPixel(b.stagingDir, fine, func(bin1, bin2 int64, count float64) error {
		if bin1 < prev1 || (bin1 == prev1 && bin2 <= prev2) {
			return fmt.Errorf("pixels table at resolution %v is not sorted: (%v, %v) after (%v, %v)",
				fine, bin1, bin2, prev1, prev2)
		}
		prev1, prev2 = bin1, bin2
		coarse1 := lookup[bin1]
		if coarse1 != currentBin1 {
			if err := flushRow(); err != nil {
				return err
			}
			currentBin1 = coarse1
		}
		row[lookup[bin2]] += count
		return nil
	})
	if err != nil {
		return err
	}
	if err := flushRow(); err != nil {
		return err
	}
	return out.Flush()
}

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

package matrix

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vhfsantos/HiCLift/genome"
	"github.com/vhfsantos/HiCLift/internal"
)

// Staging layout, one pair of files per resolution under the run's
// staging directory:
//
//	bins-<res>.txt    chrom <tab> start <tab> end, one line per bin,
//	                  chromosomes in assembly order; the line number
//	                  (0-based) is the global bin id
//	pixels-<res>.txt  bin1 <tab> bin2 <tab> count, sorted by
//	                  (bin1, bin2), upper triangle
//
// The binner materializes these files; encoders and the zoomify step
// consume them.

// BinsFile returns the staging path of the bins table at a resolution.
func BinsFile(dir string, resolution int64) string {
	return filepath.Join(dir, fmt.Sprintf("bins-%v.txt", resolution))
}

// PixelsFile returns the staging path of the pixels table at a
// resolution.
func PixelsFile(dir string, resolution int64) string {
	return filepath.Join(dir, fmt.Sprintf("pixels-%v.txt", resolution))
}

// NumBins returns the number of bins a chromosome of the given size
// has at a resolution.
func NumBins(size, resolution int64) int64 {
	return (size + resolution - 1) / resolution
}

// BinOffsets returns, for every chromosome rank of the assembly, the
// global bin id of that chromosome's first bin at the given
// resolution.
func BinOffsets(assembly *genome.Assembly, resolution int64) []int64 {
	offsets := make([]int64, assembly.Count())
	var total int64
	for i, chrom := range assembly.Chromosomes {
		offsets[i] = total
		total += NumBins(chrom.Size, resolution)
	}
	return offsets
}

// WriteBins materializes the bins table for the given assembly and
// resolution under the staging directory.
func WriteBins(dir string, assembly *genome.Assembly, resolution int64) (err error) {
	file, err := os.Create(BinsFile(dir, resolution))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	var buf []byte
	for _, chrom := range assembly.Chromosomes {
		for start := int64(0); start < chrom.Size; start += resolution {
			end := start + resolution
			if end > chrom.Size {
				end = chrom.Size
			}
			buf = buf[:0]
			buf = append(buf, chrom.Name...)
			buf = append(buf, '\t')
			buf = strconv.AppendInt(buf, start, 10)
			buf = append(buf, '\t')
			buf = strconv.AppendInt(buf, end, 10)
			buf = append(buf, '\n')
			if _, err := out.Write(buf); err != nil {
				return err
			}
		}
	}
	return out.Flush()
}

// EachPixel streams the pixels table at a resolution in order. The
// staging files are written by this program, so a parse failure panics
// rather than returning an error.
func EachPixel(dir string, resolution int64, emit func(bin1, bin2 int64, count float64) error) (err error) {
	file, err := os.Open(PixelsFile(dir, resolution))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	scanner := bufio.NewScanner(bufio.NewReader(file))
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.IndexByte(line, '\t')
		j := strings.LastIndexByte(line, '\t')
		bin1 := internal.ParseInt(line[:i], 10, 64)
		bin2 := internal.ParseInt(line[i+1:j], 10, 64)
		count := internal.ParseFloat(line[j+1:], 64)
		if err := emit(bin1, bin2, count); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// A BinCoord is the genomic location of one global bin.
type BinCoord struct {
	Chrom string
	Start int64
}

// ReadBinCoords loads the bins table at a resolution, indexed by
// global bin id.
func ReadBinCoords(dir string, resolution int64) (coords []BinCoord, err error) {
	file, err := os.Open(BinsFile(dir, resolution))
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	scanner := bufio.NewScanner(bufio.NewReader(file))
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.IndexByte(line, '\t')
		j := strings.LastIndexByte(line, '\t')
		coords = append(coords, BinCoord{
			Chrom: line[:i],
			Start: internal.ParseInt(line[i+1:j], 10, 64),
		})
	}
	return coords, scanner.Err()
}

// AppendPixelLine appends one pixels-table line to buf.
func AppendPixelLine(buf []byte, bin1, bin2 int64, count float64) []byte {
	buf = strconv.AppendInt(buf, bin1, 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, bin2, 10)
	buf = append(buf, '\t')
	buf = append(buf, FormatCount(count)...)
	buf = append(buf, '\n')
	return buf
}
